package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks remaining stock per menu item.
type InventoryItem struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string    `gorm:"column:name;type:text;not null"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements the gorm naming override.
func (InventoryItem) TableName() string {
	return "inventory_items"
}
