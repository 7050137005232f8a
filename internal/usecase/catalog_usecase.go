package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/DRSN-tech/product-service/internal/domain"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/DRSN-tech/product-service/pkg/logger"
	"github.com/google/uuid"
)

// CatalogUseCase реализует бизнес-логику каталога товаров.
// Каждая мутация пишет товар и событие в outbox одной транзакцией,
// доставкой событий занимается фоновый диспетчер.
type CatalogUseCase struct {
	productRepo ProductRepository
	outboxRepo  OutboxRepository
	cacheRepo   CacheRepository
	txManager   TxManager
	conn        ConnMonitor
	logger      logger.Logger
	opTimeout   time.Duration
}

func NewCatalogUC(
	productRepo ProductRepository,
	outboxRepo OutboxRepository,
	cacheRepo CacheRepository,
	txManager TxManager,
	conn ConnMonitor,
	logger logger.Logger,
	opTimeout time.Duration,
) *CatalogUseCase {
	return &CatalogUseCase{
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		cacheRepo:   cacheRepo,
		txManager:   txManager,
		conn:        conn,
		logger:      logger,
		opTimeout:   opTimeout,
	}
}

// eventPayload — сериализованное представление события для брокера.
type eventPayload struct {
	EventID    string           `json:"event_id"`
	EventType  OutboxEventType  `json:"event_type"`
	ProductID  int64            `json:"product_id"`
	Sequence   int64            `json:"sequence"`
	OccurredAt time.Time        `json:"occurred_at"`
	Product    *productSnapshot `json:"product,omitempty"` // отсутствует для product.deleted
}

type productSnapshot struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	PriceCents int64     `json:"price_cents"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateProduct создаёт товар с version=1 и ставит событие product.created в outbox.
func (c *CatalogUseCase) CreateProduct(ctx context.Context, req *CreateProductReq) (*ProductInfo, error) {
	const op = "CatalogUseCase.CreateProduct"

	if err := validateCreate(req); err != nil {
		return nil, e.Wrap(op, err)
	}

	if !c.conn.StoreHealthy() {
		return nil, e.Wrap(op, e.ErrConnection)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	var created *domain.Product
	err := c.txManager.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = c.productRepo.Create(ctx, domain.NewProduct(req.Name, req.PriceCents))
		if err != nil {
			return err
		}

		return c.stageEvent(ctx, ProductCreated, created)
	})
	if err != nil {
		return nil, e.Wrap(op, c.mapCtxErr(err))
	}

	info := toProductInfo(created)
	return &info, nil
}

// GetProduct возвращает товар, сперва заглядывая в кэш.
func (c *CatalogUseCase) GetProduct(ctx context.Context, id int64) (*ProductInfo, error) {
	const op = "CatalogUseCase.GetProduct"

	cached, err := c.cacheRepo.GetProducts(ctx, []int64{id})
	if err == nil {
		if info, ok := cached[id]; ok {
			return &info, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	product, err := c.productRepo.Get(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, c.mapCtxErr(err))
	}

	info := toProductInfo(product)

	// Фоновое добавление товара в кэш
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		if err := c.cacheRepo.SetProducts(bgCtx, []ProductInfo{info}); err != nil {
			c.logger.Warnf("Failed to cache product in background: %v", e.Wrap(op, err))
		}
	}()

	return &info, nil
}

// UpdateProduct изменяет товар с проверкой ожидаемой версии и ставит событие product.updated.
// При несовпадении версии возвращает ErrVersionConflict, вызывающий перечитывает и повторяет сам.
func (c *CatalogUseCase) UpdateProduct(ctx context.Context, req *UpdateProductReq) (*ProductInfo, error) {
	const op = "CatalogUseCase.UpdateProduct"

	if err := validateUpdate(req); err != nil {
		return nil, e.Wrap(op, err)
	}

	if !c.conn.StoreHealthy() {
		return nil, e.Wrap(op, e.ErrConnection)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	var updated *domain.Product
	err := c.txManager.Do(ctx, func(ctx context.Context) error {
		var err error
		updated, err = c.productRepo.Update(ctx, req.ID, req.ExpectedVersion, &UpdateProductFields{
			Name:       req.Name,
			PriceCents: req.PriceCents,
		})
		if err != nil {
			return err
		}

		return c.stageEvent(ctx, ProductUpdated, updated)
	})
	if err != nil {
		return nil, e.Wrap(op, c.mapCtxErr(err))
	}

	c.invalidateCache(ctx, op, req.ID)

	info := toProductInfo(updated)
	return &info, nil
}

// DeleteProduct помечает товар удалённым (tombstone) и ставит событие product.deleted.
func (c *CatalogUseCase) DeleteProduct(ctx context.Context, req *DeleteProductReq) error {
	const op = "CatalogUseCase.DeleteProduct"

	if !c.conn.StoreHealthy() {
		return e.Wrap(op, e.ErrConnection)
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	err := c.txManager.Do(ctx, func(ctx context.Context) error {
		archived, err := c.productRepo.Archive(ctx, req.ID, req.ExpectedVersion)
		if err != nil {
			return err
		}

		return c.stageEvent(ctx, ProductDeleted, archived)
	})
	if err != nil {
		return e.Wrap(op, c.mapCtxErr(err))
	}

	c.invalidateCache(ctx, op, req.ID)

	return nil
}

// ListProducts возвращает страницу каталога в стабильном порядке по id.
func (c *CatalogUseCase) ListProducts(ctx context.Context, req *ListProductsReq) (*ListProductsRes, error) {
	const (
		op              = "CatalogUseCase.ListProducts"
		defaultPageSize = 50
		maxPageSize     = 200
	)

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	res, err := c.productRepo.List(ctx, req)
	if err != nil {
		return nil, e.Wrap(op, c.mapCtxErr(err))
	}

	return res, nil
}

// stageEvent сериализует снимок товара и пишет событие в outbox в текущей транзакции.
// Sequence события равен новой версии товара.
func (c *CatalogUseCase) stageEvent(ctx context.Context, eventType OutboxEventType, product *domain.Product) error {
	payload := eventPayload{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		ProductID:  product.ID,
		Sequence:   product.Version,
		OccurredAt: time.Now().UTC(),
	}

	if eventType != ProductDeleted {
		payload.Product = &productSnapshot{
			ID:         product.ID,
			Name:       product.Name,
			PriceCents: product.PriceCents,
			Version:    product.Version,
			CreatedAt:  product.CreatedAt,
			UpdatedAt:  product.UpdatedAt,
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = c.outboxRepo.Create(ctx, NewOutboxEvent(payload.EventID, eventType, product.ID, product.Version, data))
	return err
}

// invalidateCache удаляет товар из кэша после коммита; промахи не фатальны.
func (c *CatalogUseCase) invalidateCache(ctx context.Context, op string, id int64) {
	if err := c.cacheRepo.DeleteProducts(ctx, []int64{id}); err != nil {
		c.logger.Warnf("Failed to invalidate product cache: %v", e.Wrap(op, err))
	}
}

// mapCtxErr приводит истечение дедлайна к ошибке таксономии сервиса.
func (c *CatalogUseCase) mapCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return e.ErrTimeout
	}
	return err
}

func validateCreate(req *CreateProductReq) error {
	if strings.TrimSpace(req.Name) == "" {
		return e.ErrProductNameRequired
	}

	if req.PriceCents < 0 {
		return e.ErrPriceMustBeNonNegative
	}

	return nil
}

func validateUpdate(req *UpdateProductReq) error {
	if req.Name == nil && req.PriceCents == nil {
		return e.ErrMissingFields
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return e.ErrProductNameRequired
	}

	if req.PriceCents != nil && *req.PriceCents < 0 {
		return e.ErrPriceMustBeNonNegative
	}

	return nil
}

func toProductInfo(p *domain.Product) ProductInfo {
	return NewProductInfo(p.ID, p.Name, p.PriceCents, p.Version, p.CreatedAt, p.UpdatedAt)
}
