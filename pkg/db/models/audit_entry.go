package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adeyemiloye/chowhub-backend/pkg/types"
)

// AuditEntry is the append-only record of a state change and who drove it.
type AuditEntry struct {
	ID        uuid.UUID     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   *uuid.UUID    `gorm:"column:order_id;type:uuid"`
	ActorID   uuid.UUID     `gorm:"column:actor_id;type:uuid;not null"`
	Action    string        `gorm:"column:action;type:text;not null"`
	OldStatus *string       `gorm:"column:old_status;type:text"`
	NewStatus *string       `gorm:"column:new_status;type:text"`
	Metadata  types.JSONMap `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt time.Time     `gorm:"column:created_at;autoCreateTime"`
}

// TableName implements the gorm naming override.
func (AuditEntry) TableName() string {
	return "audit_entries"
}
