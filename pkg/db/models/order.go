package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
)

// Order is the primary contended row: mutated only by the state machine and
// the payment verification path, always under the order lock.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderRef          string              `gorm:"column:order_ref;type:text;not null;uniqueIndex:ux_orders_order_ref"`
	CustomerID        uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	CustomerEmail     string              `gorm:"column:customer_email;type:text;not null"`
	Status            enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	TotalAmount       decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency          string              `gorm:"column:currency;type:text;not null;default:'NGN'"`
	AssignedCourierID *uuid.UUID          `gorm:"column:assigned_courier_id;type:uuid"`
	PaymentReference  *string             `gorm:"column:payment_reference;type:text"`
	Items             []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements the gorm naming override.
func (Order) TableName() string {
	return "orders"
}
