package pgdb

import (
	"context"
	"fmt"
	"time"

	"github.com/DRSN-tech/product-service/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/product-service/internal/usecase"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/DRSN-tech/product-service/pkg/tr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

type OutboxEventRepo struct {
	pool *pgxpool.Pool
	conv converter.OutboxEventConverter
}

func NewOutboxEventRepo(pool *pgxpool.Pool, conv converter.OutboxEventConverter) *OutboxEventRepo {
	return &OutboxEventRepo{
		pool: pool,
		conv: conv,
	}
}

// Create пишет событие в outbox в транзакции текущей мутации каталога
// и будит диспетчер через NOTIFY.
func (o *OutboxEventRepo) Create(ctx context.Context, event *usecase.OutboxEvent) (*usecase.OutboxEvent, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	model := o.conv.ToModel(event)
	query := `
		INSERT INTO outbox_events (
			event_id,
			event_type,
			product_id,
			sequence,
			payload,
			status,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, next_attempt_at, created_at;
	`

	if err := tx.QueryRow(ctx, query,
		model.EventID,
		model.EventType,
		model.ProductID,
		model.Sequence,
		model.Payload,
		model.Status,
		model.CreatedAt,
	).Scan(&model.ID, &model.NextAttemptAt, &model.CreatedAt); err != nil {
		if postgresDuplicate(err) {
			return nil, fmt.Errorf("%s: event with id %s already exists", whereami.WhereAmI(), event.EventID)
		}

		return nil, fmt.Errorf("%s: failed to insert event: %w", whereami.WhereAmI(), err)
	}

	_, err = tx.Exec(ctx, "NOTIFY outbox_pending;")
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return o.conv.ToEntity(model), nil
}

// ClaimBatch атомарно переводит в processing не более limit событий.
// Голова очереди товара выбирается среди ВСЕХ недоставленных событий,
// без фильтра по next_attempt_at: событие в окне отступления остаётся головой
// и блокирует последующие sequence своего товара, иначе повтор seq N
// пропустил бы вперёд seq N+1. Проверка срока идёт по самой голове во внешнем
// WHERE, товары с событием в полёте пропускаются. Повторная проверка статуса
// защищает от двойного захвата конкурентным UPDATE.
func (o *OutboxEventRepo) ClaimBatch(ctx context.Context, limit int) ([]*usecase.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = attempts + 1, processing_started_at = NOW()
		WHERE id IN (
			SELECT head.id FROM (
				SELECT DISTINCT ON (product_id) id, product_id, sequence, next_attempt_at
				FROM outbox_events
				WHERE status IN ($2, $3)
				ORDER BY product_id, sequence
			) AS head
			WHERE head.next_attempt_at <= NOW()
			AND NOT EXISTS (
				SELECT 1 FROM outbox_events inflight
				WHERE inflight.product_id = head.product_id AND inflight.status = $1
			)
			ORDER BY head.sequence
			LIMIT $4
		)
		AND status IN ($2, $3)
		RETURNING id, event_id, event_type, product_id, sequence, payload,
			status, attempts, next_attempt_at, last_error, created_at, processed_at;
	`

	rows, err := o.pool.Query(ctx, query, usecase.Processing, usecase.Pending, usecase.Retrying, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to claim pending events: %w", whereami.WhereAmI(), err)
	}
	defer rows.Close()

	var models []*converter.OutboxEventModel
	for rows.Next() {
		var model converter.OutboxEventModel

		err := rows.Scan(
			&model.ID,
			&model.EventID,
			&model.EventType,
			&model.ProductID,
			&model.Sequence,
			&model.Payload,
			&model.Status,
			&model.Attempts,
			&model.NextAttemptAt,
			&model.LastError,
			&model.CreatedAt,
			&model.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to scan event: %w", whereami.WhereAmI(), err)
		}

		models = append(models, &model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows iterator error: %w", whereami.WhereAmI(), err)
	}

	return o.conv.ToArrEntity(models), nil
}

// MarkProcessed финализирует доставленное событие.
func (o *OutboxEventRepo) MarkProcessed(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_events
		SET status = $1, processed_at = NOW()
		WHERE id = $2 AND status = $3;
	`

	_, err := o.pool.Exec(ctx, query, usecase.Processed, id, usecase.Processing)
	if err != nil {
		return fmt.Errorf("%s: failed to mark event %d as processed: %w", whereami.WhereAmI(), id, err)
	}

	return nil
}

// Reschedule возвращает событие в очередь с отложенной следующей попыткой.
func (o *OutboxEventRepo) Reschedule(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, next_attempt_at = $2, last_error = $3
		WHERE id = $4 AND status = $5;
	`

	_, err := o.pool.Exec(ctx, query, usecase.Retrying, nextAttemptAt, lastError, id, usecase.Processing)
	if err != nil {
		return fmt.Errorf("%s: failed to reschedule event %d: %w", whereami.WhereAmI(), id, err)
	}

	return nil
}

// MarkDeadLettered выводит событие из ротации после исчерпания попыток.
// Событие остаётся в таблице для ручного разбора.
func (o *OutboxEventRepo) MarkDeadLettered(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, last_error = $2
		WHERE id = $3 AND status = $4;
	`

	_, err := o.pool.Exec(ctx, query, usecase.DeadLettered, lastError, id, usecase.Processing)
	if err != nil {
		return fmt.Errorf("%s: failed to dead-letter event %d: %w", whereami.WhereAmI(), id, err)
	}

	return nil
}

// ResetStale возвращает в очередь события, чей захват не завершился вовремя
// (процесс диспетчера умер между ClaimBatch и MarkProcessed).
func (o *OutboxEventRepo) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		UPDATE outbox_events
		SET status = $1
		WHERE status = $2 AND processing_started_at < $3;
	`

	result, err := o.pool.Exec(ctx, query, usecase.Pending, usecase.Processing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to reset stale events: %w", whereami.WhereAmI(), err)
	}

	return result.RowsAffected(), nil
}
