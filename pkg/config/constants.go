package config

// EnvPrefix scopes every environment variable read by Load.
const EnvPrefix = ""

// Application environments.
const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Environment variable names referenced outside struct tags.
const (
	EnvDBDSN  = "CHOWHUB_DB_DSN"
	EnvDBHost = "CHOWHUB_DB_HOST"
	EnvDBUser = "CHOWHUB_DB_USER"
	EnvDBName = "CHOWHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
