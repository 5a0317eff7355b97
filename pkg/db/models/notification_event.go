package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/adeyemiloye/chowhub-backend/pkg/types"
)

// NotificationEvent is one queued transactional message. The dedupe key is
// unique so bursts collapse into a single row per hour bucket.
type NotificationEvent struct {
	ID          uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID                   `gorm:"column:order_id;type:uuid;not null"`
	EventType   enums.NotificationEventType `gorm:"column:event_type;type:text;not null"`
	Recipient   string                      `gorm:"column:recipient;type:text;not null"`
	TemplateKey string                      `gorm:"column:template_key;type:text;not null"`
	Variables   types.JSONMap               `gorm:"column:variables;type:jsonb;serializer:json"`
	Status      enums.NotificationStatus    `gorm:"column:status;type:notification_status;not null;default:'queued'"`
	DedupeKey   string                      `gorm:"column:dedupe_key;type:text;not null;uniqueIndex:ux_notification_events_dedupe_key"`
	Priority    enums.NotificationPriority  `gorm:"column:priority;not null;default:5"`
	RetryCount  int                         `gorm:"column:retry_count;not null;default:0"`
	LastError   *string                     `gorm:"column:last_error;type:text"`
	ClaimedAt   *time.Time                  `gorm:"column:claimed_at"`
	SentAt      *time.Time                  `gorm:"column:sent_at"`
	FailedAt    *time.Time                  `gorm:"column:failed_at"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName implements the gorm naming override.
func (NotificationEvent) TableName() string {
	return "notification_events"
}
