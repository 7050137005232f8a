package converter

import "time"

// ProductModel представляет запись таблицы products в PostgreSQL.
type ProductModel struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	PriceCents int64     `db:"price_cents"`
	Version    int64     `db:"version"`
	IsArchived bool      `db:"is_archived"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// OutboxEventModel представляет запись таблицы outbox_events в PostgreSQL.
type OutboxEventModel struct {
	ID            int64      `db:"id"`
	EventID       string     `db:"event_id"`
	EventType     string     `db:"event_type"`
	ProductID     int64      `db:"product_id"`
	Sequence      int64      `db:"sequence"`
	Payload       []byte     `db:"payload"`
	Status        string     `db:"status"`
	Attempts      int        `db:"attempts"`
	NextAttemptAt time.Time  `db:"next_attempt_at"`
	LastError     *string    `db:"last_error"`
	CreatedAt     time.Time  `db:"created_at"`
	ProcessedAt   *time.Time `db:"processed_at"`
}
