package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/product-service/internal/domain"
)

type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) (*domain.Product, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Update(ctx context.Context, id, expectedVersion int64, fields *UpdateProductFields) (*domain.Product, error)
	Archive(ctx context.Context, id, expectedVersion int64) (*domain.Product, error)
	List(ctx context.Context, req *ListProductsReq) (*ListProductsRes, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *OutboxEvent) (*OutboxEvent, error)
	// ClaimBatch атомарно забирает в работу не более limit событий,
	// по одному (самому раннему) на товар, пропуская товары с событием в полёте.
	ClaimBatch(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id int64) error
	Reschedule(ctx context.Context, id int64, nextAttemptAt time.Time, lastError string) error
	MarkDeadLettered(ctx context.Context, id int64, lastError string) error
	// ResetStale возвращает в очередь события, зависшие в processing дольше olderThan
	// (например, после аварийного завершения процесса).
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type CacheRepository interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]ProductInfo, error)
	SetProducts(ctx context.Context, products []ProductInfo) error
	DeleteProducts(ctx context.Context, ids []int64) error
}
