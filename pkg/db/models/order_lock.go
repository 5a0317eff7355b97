package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLock is the advisory lease guarding read-modify-write on an order.
// One row per lock key; expired rows may be taken over by a new holder.
type OrderLock struct {
	LockKey    string    `gorm:"column:lock_key;type:text;primaryKey"`
	HolderID   uuid.UUID `gorm:"column:holder_id;type:uuid;not null"`
	AcquiredAt time.Time `gorm:"column:acquired_at;not null"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null"`
}

// TableName implements the gorm naming override.
func (OrderLock) TableName() string {
	return "order_locks"
}
