package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
)

// PaymentTransaction is the append-only ledger of provider callbacks, unique
// on the provider reference so webhook replays collapse into one row.
type PaymentTransaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Provider          enums.PaymentProvider   `gorm:"column:provider;type:text;not null"`
	ProviderReference string                  `gorm:"column:provider_reference;type:text;not null;uniqueIndex:ux_payment_transactions_provider_reference"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string                  `gorm:"column:currency;type:text;not null;default:'NGN'"`
	Status            enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'pending'"`
	RawPayload        types.JSONMap           `gorm:"column:raw_payload;type:jsonb;serializer:json"`
	ProcessedAt       *time.Time              `gorm:"column:processed_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements the gorm naming override.
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
