package kafka

import "time"

// EventType определяет тип события платёжного цикла.
type EventType string

const (
	// Переход статуса применён реконсилером.
	EventTypePaymentUpdated EventType = "payment.updated"
	// Оплата подтверждена шлюзом.
	EventTypePaymentCompleted EventType = "payment.completed"
	// Получено push-уведомление шлюза.
	EventTypePaymentPushReceived EventType = "payment.push_received"
)

// Topics для Kafka
const (
	TopicPaymentEvents = "psp.payment.events"
)

// PaymentEvent — событие платёжного цикла заказа.
type PaymentEvent struct {
	EventType   EventType              `json:"event_type"`
	OrderID     string                 `json:"order_id"`
	ServiceCode string                 `json:"service_code,omitempty"`
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewPaymentEvent создаёт событие с текущей меткой времени.
func NewPaymentEvent(eventType EventType, orderID, serviceCode, status string, metadata map[string]interface{}) PaymentEvent {
	return PaymentEvent{
		EventType:   eventType,
		OrderID:     orderID,
		ServiceCode: serviceCode,
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Metadata:    metadata,
	}
}
