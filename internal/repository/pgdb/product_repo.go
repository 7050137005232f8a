package pgdb

import (
	"context"
	"errors"

	"github.com/DRSN-tech/product-service/internal/domain"
	"github.com/DRSN-tech/product-service/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/product-service/internal/usecase"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/DRSN-tech/product-service/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// ProductRepo реализует репозиторий товаров поверх PostgreSQL.
// Мутации выполняются в транзакции из контекста, чтение — напрямую через пул.
type ProductRepo struct {
	pool *pgxpool.Pool
	conv converter.ProductConverter
}

func NewProductRepo(pool *pgxpool.Pool, conv converter.ProductConverter) *ProductRepo {
	return &ProductRepo{
		pool: pool,
		conv: conv,
	}
}

// Create вставляет новый товар с version=1; id и метки времени назначает база.
func (p *ProductRepo) Create(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		INSERT INTO products (name, price_cents)
		VALUES ($1, $2)
		RETURNING id, name, price_cents, version, is_archived, created_at, updated_at;
	`

	var model converter.ProductModel
	err = tx.QueryRow(ctx, query, product.Name, product.PriceCents).
		Scan(
			&model.ID, &model.Name, &model.PriceCents, &model.Version,
			&model.IsArchived, &model.CreatedAt, &model.UpdatedAt,
		)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(&model), nil
}

// Get возвращает товар по идентификатору, исключая удалённые (tombstone).
func (p *ProductRepo) Get(ctx context.Context, id int64) (*domain.Product, error) {
	query := `
		SELECT id, name, price_cents, version, is_archived, created_at, updated_at
		FROM products
		WHERE id = $1 AND NOT is_archived;
	`

	var model converter.ProductModel
	err := p.pool.QueryRow(ctx, query, id).
		Scan(
			&model.ID, &model.Name, &model.PriceCents, &model.Version,
			&model.IsArchived, &model.CreatedAt, &model.UpdatedAt,
		)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}

		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(&model), nil
}

// Update атомарно изменяет товар: проверка версии и запись — одна команда UPDATE,
// окна между чтением и записью нет. Nil-поля остаются без изменений.
func (p *ProductRepo) Update(ctx context.Context, id, expectedVersion int64, fields *usecase.UpdateProductFields) (*domain.Product, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		UPDATE products
		SET name = COALESCE($3::TEXT, name),
			price_cents = COALESCE($4::BIGINT, price_cents),
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2 AND NOT is_archived
		RETURNING id, name, price_cents, version, is_archived, created_at, updated_at;
	`

	var model converter.ProductModel
	err = tx.QueryRow(ctx, query, id, expectedVersion, fields.Name, fields.PriceCents).
		Scan(
			&model.ID, &model.Name, &model.PriceCents, &model.Version,
			&model.IsArchived, &model.CreatedAt, &model.UpdatedAt,
		)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, p.classifyMissedWrite(ctx, tx, id)
		}

		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(&model), nil
}

// Archive помечает товар удалённым с той же проверкой версии, что и Update.
// Версия увеличивается, чтобы событие product.deleted получило свой sequence.
func (p *ProductRepo) Archive(ctx context.Context, id, expectedVersion int64) (*domain.Product, error) {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		UPDATE products
		SET is_archived = TRUE,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2 AND NOT is_archived
		RETURNING id, name, price_cents, version, is_archived, created_at, updated_at;
	`

	var model converter.ProductModel
	err = tx.QueryRow(ctx, query, id, expectedVersion).
		Scan(
			&model.ID, &model.Name, &model.PriceCents, &model.Version,
			&model.IsArchived, &model.CreatedAt, &model.UpdatedAt,
		)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, p.classifyMissedWrite(ctx, tx, id)
		}

		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(&model), nil
}

// List возвращает страницу товаров в порядке id (keyset-пагинация).
// Токен страницы кодирует последний выданный id, поэтому конкурентные записи
// в другие товары не приводят к пропускам и дублям.
func (p *ProductRepo) List(ctx context.Context, req *usecase.ListProductsReq) (*usecase.ListProductsRes, error) {
	afterID, err := decodePageToken(req.PageToken)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		SELECT id, name, price_cents, version, is_archived, created_at, updated_at
		FROM products
		WHERE NOT is_archived
		  AND id > $1
		  AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY id
		LIMIT $3;
	`

	// Запрашивается на одну строку больше, чтобы понять, есть ли следующая страница
	rows, err := p.pool.Query(ctx, query, afterID, req.NameQuery, req.PageSize+1)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	models := make([]converter.ProductModel, 0, req.PageSize+1)
	for rows.Next() {
		var model converter.ProductModel
		if err := rows.Scan(
			&model.ID, &model.Name, &model.PriceCents, &model.Version,
			&model.IsArchived, &model.CreatedAt, &model.UpdatedAt,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		models = append(models, model)
	}

	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var nextPageToken string
	if len(models) > req.PageSize {
		models = models[:req.PageSize]
		nextPageToken = encodePageToken(models[len(models)-1].ID)
	}

	products := make([]usecase.ProductInfo, 0, len(models))
	for i := range models {
		entity := p.conv.ToEntity(&models[i])
		products = append(products, usecase.NewProductInfo(
			entity.ID, entity.Name, entity.PriceCents, entity.Version, entity.CreatedAt, entity.UpdatedAt,
		))
	}

	return usecase.NewListProductsRes(products, nextPageToken), nil
}

// classifyMissedWrite различает «товара нет» и «версия устарела» после пустого UPDATE.
// Чтение идёт в той же транзакции и служит только для выбора ошибки,
// точкой сериализации остаётся сам UPDATE.
func (p *ProductRepo) classifyMissedWrite(ctx context.Context, tx pgx.Tx, id int64) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND NOT is_archived);`, id,
	).Scan(&exists)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if !exists {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	return e.Wrap(whereami.WhereAmI(), e.ErrVersionConflict)
}
