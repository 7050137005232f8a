package kafka

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/product-service/internal/cfg"
	"github.com/DRSN-tech/product-service/internal/usecase"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/DRSN-tech/product-service/pkg/jitter"
	"github.com/DRSN-tech/product-service/pkg/logger"
	"github.com/jackc/pgx/v5"
)

const (
	backoffBase = 100 * time.Millisecond
	backoffMax  = 5 * time.Second

	deliverTimeout = 10 * time.Second
)

// OutboxWorker — диспетчер outbox: забирает недоставленные события из базы,
// отдаёт их продюсеру и помечает доставленными только после подтверждения брокера.
// Просыпается по таймеру и по NOTIFY от записи нового события.
type OutboxWorker struct {
	repo      usecase.OutboxRepository
	producer  usecase.MessageProducer
	logger    logger.Logger
	cfg       *cfg.OutboxCfg
	dbConnStr    string
	stop         chan struct{}
	stopOnce     sync.Once
	listenCancel context.CancelFunc
	wake         chan struct{}
	wg           sync.WaitGroup
}

func NewOutboxWorker(
	repo usecase.OutboxRepository,
	producer usecase.MessageProducer,
	logger logger.Logger,
	cfg *cfg.OutboxCfg,
	dbConnStr string,
) *OutboxWorker {
	return &OutboxWorker{
		repo:      repo,
		producer:  producer,
		logger:    logger,
		cfg:       cfg,
		dbConnStr: dbConnStr,
		stop:      make(chan struct{}),
		wake:      make(chan struct{}, 1),
	}
}

func (w *OutboxWorker) Start(ctx context.Context) {
	// У слушателя свой контекст: Stop снимает его с блокировки в LISTEN,
	// не трогая контекст доставок текущей пачки
	listenCtx, listenCancel := context.WithCancel(ctx)
	w.listenCancel = listenCancel

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()

	// Запускаем слушатель уведомлений
	go func() {
		defer w.wg.Done()
		w.listenOutboxNotifications(listenCtx)
	}()
}

// Stop останавливает диспетчер, дожидаясь завершения текущей пачки доставок.
func (w *OutboxWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.listenCancel != nil {
			w.listenCancel()
		}
	})
	w.wg.Wait()
}

func (w *OutboxWorker) run(ctx context.Context) {
	// После рестарта возвращаем в очередь события, захваченные умершим процессом
	if reset, err := w.repo.ResetStale(ctx, w.cfg.StaleAfter); err != nil {
		w.logger.Warnf("Failed to reset stale outbox claims: %v", err)
	} else if reset > 0 {
		w.logger.Infof("Requeued %d stale outbox events", reset)
	}

	w.logger.Infof("Draining pending outbox events on startup...")
	w.drain(ctx)

	ticker := time.NewTicker(w.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Infof("Outbox dispatcher stopped by context cancellation")
			return
		case <-w.stop:
			w.logger.Infof("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-w.wake:
			w.drain(ctx)
		}
	}
}

// drain обрабатывает пачки, пока очередь не опустеет.
func (w *OutboxWorker) drain(ctx context.Context) {
	for {
		hasMore, err := w.processBatch(ctx)
		if err != nil {
			w.logger.Warnf("Batch processing failed: %v", err)
			return
		}
		if !hasMore {
			return
		}
	}
}

func (w *OutboxWorker) processBatch(ctx context.Context) (bool, error) {
	events, err := w.repo.ClaimBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		return false, err
	}

	if len(events) == 0 {
		return false, nil
	}

	for _, event := range events {
		if err := w.deliver(ctx, event); err != nil {
			w.handleFailure(ctx, event, err)
			continue
		}

		if err := w.repo.MarkProcessed(ctx, event.ID); err != nil {
			w.logger.Warnf("mark processed failed: %v", err)
		}
	}

	return true, nil
}

func (w *OutboxWorker) deliver(ctx context.Context, event *usecase.OutboxEvent) error {
	deliverCtx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()

	return w.producer.WriteRawMessage(deliverCtx, usecase.NewWriteRawMessageReq(event.ProductID, event.Payload))
}

// handleFailure либо планирует повтор с экспоненциальным отступлением,
// либо после исчерпания попыток выводит событие в dead letter.
// Событие никогда не выбрасывается молча.
func (w *OutboxWorker) handleFailure(ctx context.Context, event *usecase.OutboxEvent, deliverErr error) {
	if event.Attempts >= w.cfg.MaxAttempts {
		w.logger.Errorf(e.ErrEventDeadLettered,
			"Event %s (product %d, seq %d) exhausted %d delivery attempts: %v",
			event.EventID, event.ProductID, event.Sequence, event.Attempts, deliverErr,
		)

		if err := w.repo.MarkDeadLettered(ctx, event.ID, deliverErr.Error()); err != nil {
			w.logger.Warnf("mark dead-lettered failed: %v", err)
		}
		return
	}

	// Attempts уже увеличен при захвате, нумерация попыток с нуля
	backoff := jitter.ExponentialBackoff(backoffBase, backoffMax, event.Attempts-1, jitter.DefaultJitter)
	nextAttemptAt := time.Now().Add(backoff)

	if !isRetryableError(deliverErr) {
		w.logger.Warnf("Non-transient delivery error for event %s, retrying anyway: %v", event.EventID, deliverErr)
	}

	if err := w.repo.Reschedule(ctx, event.ID, nextAttemptAt, deliverErr.Error()); err != nil {
		w.logger.Warnf("reschedule failed: %v", err)
	}
}

// listenOutboxNotifications держит выделенное соединение в LISTEN
// и будит диспетчер при появлении новых событий, не дожидаясь таймера.
func (w *OutboxWorker) listenOutboxNotifications(ctx context.Context) {
	var conn *pgx.Conn
	var err error

	connect := func() error {
		conn, err = pgx.Connect(ctx, w.dbConnStr)
		if err != nil {
			return e.Wrap("failed to connect for LISTEN", err)
		}

		_, err = conn.Exec(ctx, "LISTEN outbox_pending")
		if err != nil {
			conn.Close(ctx)
			return e.Wrap("failed to LISTEN", err)
		}

		w.logger.Infof("Subscribed to 'outbox_pending' channel")
		return nil
	}

	if err := connect(); err != nil {
		w.logger.Warnf("Initial connect failed: %v", err)
		return
	}
	defer conn.Close(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
			ctxWithTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
			notif, err := conn.WaitForNotification(ctxWithTimeout)
			cancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					continue
				}
				w.logger.Warnf("Connection lost: %v. Reconnecting...", err)
				conn.Close(ctx)

				time.Sleep(2 * time.Second)
				if err := connect(); err != nil {
					w.logger.Warnf("Reconnect failed: %v", err)
					time.Sleep(5 * time.Second)
				}
				continue
			}

			if notif != nil && notif.Channel == "outbox_pending" {
				w.logger.Debugf("Received outbox notification, waking dispatcher")
				select {
				case w.wake <- struct{}{}:
				default: // диспетчер и так проснётся
				}
			}
		}
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"i/o timeout",
		"network is unreachable",
		"broker not available",
		"connection reset",
		"broken pipe",
		"no such host",
		"context deadline exceeded",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(errStr, phrase) {
			return true
		}
	}
	return false
}
