package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
)

// SecurityIncident captures security-relevant anomalies such as amount
// mismatches and rejected verification attempts.
type SecurityIncident struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Severity    enums.IncidentSeverity `gorm:"column:severity;type:text;not null"`
	Kind        string                 `gorm:"column:kind;type:text;not null"`
	OrderID     *uuid.UUID             `gorm:"column:order_id;type:uuid"`
	Description string                 `gorm:"column:description;type:text;not null"`
	Details     types.JSONMap          `gorm:"column:details;type:jsonb;serializer:json"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements the gorm naming override.
func (SecurityIncident) TableName() string {
	return "security_incidents"
}
