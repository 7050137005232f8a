package usecase

import "time"

// OutboxStatus — состояние события в outbox.
// pending → processing → processed, либо pending → processing → retrying → ... → dead_lettered.
type OutboxStatus string

const (
	Pending      OutboxStatus = "pending"
	Processing   OutboxStatus = "processing"
	Retrying     OutboxStatus = "retrying"
	Processed    OutboxStatus = "processed"
	DeadLettered OutboxStatus = "dead_lettered"
)

type OutboxEventType string

const (
	ProductCreated OutboxEventType = "product.created"
	ProductUpdated OutboxEventType = "product.updated"
	ProductDeleted OutboxEventType = "product.deleted"
)

// OutboxEvent — событие изменения товара, записанное в одной транзакции с самим изменением.
// EventID стабилен между повторными доставками, потребители дедуплицируют по нему.
// Sequence равен версии товара на момент мутации.
type OutboxEvent struct {
	ID            int64
	EventID       string
	EventType     OutboxEventType
	ProductID     int64
	Sequence      int64
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

func NewOutboxEvent(eventID string, eventType OutboxEventType, productID, sequence int64, payload []byte) *OutboxEvent {
	return &OutboxEvent{
		EventID:   eventID,
		EventType: eventType,
		ProductID: productID,
		Sequence:  sequence,
		Payload:   payload,
		Status:    Pending,
		CreatedAt: time.Now().UTC(),
	}
}
