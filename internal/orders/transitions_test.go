package orders

import (
	"testing"

	"github.com/adeyemiloye/chowhub-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name    string
		from    enums.OrderStatus
		to      enums.OrderStatus
		allowed bool
	}{
		{"pending to confirmed", enums.OrderStatusPending, enums.OrderStatusConfirmed, true},
		{"pending to cancelled", enums.OrderStatusPending, enums.OrderStatusCancelled, true},
		{"pending to failed", enums.OrderStatusPending, enums.OrderStatusFailed, true},
		{"pending skips to preparing", enums.OrderStatusPending, enums.OrderStatusPreparing, false},
		{"pending skips to delivered", enums.OrderStatusPending, enums.OrderStatusDelivered, false},
		{"confirmed to preparing", enums.OrderStatusConfirmed, enums.OrderStatusPreparing, true},
		{"confirmed back to pending", enums.OrderStatusConfirmed, enums.OrderStatusPending, false},
		{"preparing to ready", enums.OrderStatusPreparing, enums.OrderStatusReady, true},
		{"preparing to refunded", enums.OrderStatusPreparing, enums.OrderStatusRefunded, false},
		{"ready to out_for_delivery", enums.OrderStatusReady, enums.OrderStatusOutForDelivery, true},
		{"ready to delivered pickup", enums.OrderStatusReady, enums.OrderStatusDelivered, true},
		{"out_for_delivery to delivered", enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered, true},
		{"out_for_delivery to failed", enums.OrderStatusOutForDelivery, enums.OrderStatusFailed, true},
		{"out_for_delivery to cancelled", enums.OrderStatusOutForDelivery, enums.OrderStatusCancelled, false},
		{"delivered to completed", enums.OrderStatusDelivered, enums.OrderStatusCompleted, true},
		{"completed to refunded", enums.OrderStatusCompleted, enums.OrderStatusRefunded, true},
		{"completed to delivered", enums.OrderStatusCompleted, enums.OrderStatusDelivered, false},
		{"cancelled to refunded", enums.OrderStatusCancelled, enums.OrderStatusRefunded, true},
		{"refunded is terminal", enums.OrderStatusRefunded, enums.OrderStatusPending, false},
		{"failed is terminal", enums.OrderStatusFailed, enums.OrderStatusPending, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestRequiresCourier(t *testing.T) {
	assert.True(t, RequiresCourier(enums.OrderStatusOutForDelivery))
	assert.True(t, RequiresCourier(enums.OrderStatusDelivered))
	assert.True(t, RequiresCourier(enums.OrderStatusCompleted))

	assert.False(t, RequiresCourier(enums.OrderStatusConfirmed))
	assert.False(t, RequiresCourier(enums.OrderStatusPreparing))
	assert.False(t, RequiresCourier(enums.OrderStatusCancelled))
}

func TestNotificationForStatus(t *testing.T) {
	eventType, ok := NotificationForStatus(enums.OrderStatusConfirmed)
	assert.True(t, ok)
	assert.Equal(t, enums.NotificationEventOrderConfirmed, eventType)

	eventType, ok = NotificationForStatus(enums.OrderStatusOutForDelivery)
	assert.True(t, ok)
	assert.Equal(t, enums.NotificationEventOutForDelivery, eventType)

	// Entering pending never notifies: orders are created there.
	_, ok = NotificationForStatus(enums.OrderStatusPending)
	assert.False(t, ok)

	_, ok = NotificationForStatus(enums.OrderStatusFailed)
	assert.False(t, ok)
}
