package orders

import "github.com/adeyemiloye/chowhub-backend/pkg/enums"

// allowedTransitions is the explicit, directional transition table. A pair
// absent from the table is rejected outright.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusPreparing,
		enums.OrderStatusCancelled,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusPreparing: {
		enums.OrderStatusReady,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusReady: {
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered,
		enums.OrderStatusFailed,
	},
	enums.OrderStatusDelivered: {
		enums.OrderStatusCompleted,
		enums.OrderStatusRefunded,
	},
	// Terminal for the delivery path; refund remains possible.
	enums.OrderStatusCompleted: {
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusCancelled: {
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusRefunded: {},
	enums.OrderStatusFailed:   {},
}

// courierRequired lists the target states that need a courier assigned first.
var courierRequired = map[enums.OrderStatus]bool{
	enums.OrderStatusOutForDelivery: true,
	enums.OrderStatusDelivered:      true,
	enums.OrderStatusCompleted:      true,
}

// CanTransition reports whether the (old, new) pair appears in the table.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// RequiresCourier reports whether entering the target status needs a courier.
func RequiresCourier(to enums.OrderStatus) bool {
	return courierRequired[to]
}

// eventTypeForStatus maps an applied transition to the customer notification
// it raises. Statuses without an entry raise nothing.
var eventTypeForStatus = map[enums.OrderStatus]enums.NotificationEventType{
	enums.OrderStatusConfirmed:      enums.NotificationEventOrderConfirmed,
	enums.OrderStatusPreparing:      enums.NotificationEventOrderPreparing,
	enums.OrderStatusReady:          enums.NotificationEventOrderReady,
	enums.OrderStatusOutForDelivery: enums.NotificationEventOutForDelivery,
	enums.OrderStatusDelivered:      enums.NotificationEventOrderDelivered,
	enums.OrderStatusCompleted:      enums.NotificationEventOrderCompleted,
	enums.OrderStatusCancelled:      enums.NotificationEventOrderCancelled,
	enums.OrderStatusRefunded:       enums.NotificationEventOrderRefunded,
}

// NotificationForStatus returns the event type raised when entering status.
func NotificationForStatus(to enums.OrderStatus) (enums.NotificationEventType, bool) {
	eventType, ok := eventTypeForStatus[to]
	return eventType, ok
}
