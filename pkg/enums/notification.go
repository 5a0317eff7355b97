package enums

import "fmt"

// NotificationStatus maps to the notification_status enum in Postgres.
type NotificationStatus string

const (
	NotificationStatusQueued     NotificationStatus = "queued"
	NotificationStatusProcessing NotificationStatus = "processing"
	NotificationStatusSent       NotificationStatus = "sent"
	NotificationStatusFailed     NotificationStatus = "failed"
)

var validNotificationStatuses = []NotificationStatus{
	NotificationStatusQueued,
	NotificationStatusProcessing,
	NotificationStatusSent,
	NotificationStatusFailed,
}

// IsValid reports whether the value is a known NotificationStatus.
func (n NotificationStatus) IsValid() bool {
	for _, candidate := range validNotificationStatuses {
		if candidate == n {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the row may no longer change status.
func (n NotificationStatus) IsTerminal() bool {
	return n == NotificationStatusSent || n == NotificationStatusFailed
}

// ParseNotificationStatus converts raw input into a NotificationStatus.
func ParseNotificationStatus(value string) (NotificationStatus, error) {
	for _, candidate := range validNotificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification status %q", value)
}

// NotificationEventType names the transactional message being sent.
type NotificationEventType string

const (
	NotificationEventPaymentConfirmed NotificationEventType = "payment_confirmed"
	NotificationEventPaymentFailed    NotificationEventType = "payment_failed"
	NotificationEventOrderConfirmed   NotificationEventType = "order_confirmed"
	NotificationEventOrderPreparing   NotificationEventType = "order_preparing"
	NotificationEventOrderReady       NotificationEventType = "order_ready"
	NotificationEventOutForDelivery   NotificationEventType = "order_out_for_delivery"
	NotificationEventOrderDelivered   NotificationEventType = "order_delivered"
	NotificationEventOrderCompleted   NotificationEventType = "order_completed"
	NotificationEventOrderCancelled   NotificationEventType = "order_cancelled"
	NotificationEventOrderRefunded    NotificationEventType = "order_refunded"
)

var validNotificationEventTypes = []NotificationEventType{
	NotificationEventPaymentConfirmed,
	NotificationEventPaymentFailed,
	NotificationEventOrderConfirmed,
	NotificationEventOrderPreparing,
	NotificationEventOrderReady,
	NotificationEventOutForDelivery,
	NotificationEventOrderDelivered,
	NotificationEventOrderCompleted,
	NotificationEventOrderCancelled,
	NotificationEventOrderRefunded,
}

// IsValid reports whether the value is a known NotificationEventType.
func (n NotificationEventType) IsValid() bool {
	for _, candidate := range validNotificationEventTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationEventType converts raw input into a NotificationEventType.
func ParseNotificationEventType(value string) (NotificationEventType, error) {
	for _, candidate := range validNotificationEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification event type %q", value)
}

// NotificationPriority orders claim batches ahead of age. Zero is reserved
// as the unset sentinel so callers that leave it blank get the default.
type NotificationPriority int

const (
	NotificationPriorityLow    NotificationPriority = 1
	NotificationPriorityNormal NotificationPriority = 5
	NotificationPriorityHigh   NotificationPriority = 9
)
