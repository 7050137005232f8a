package usecase

import "time"

// CATALOG USECASE

// CreateProductReq — запрос на создание товара.
type CreateProductReq struct {
	Name       string
	PriceCents int64
}

// UpdateProductReq — запрос на изменение товара с проверкой версии (optimistic concurrency).
// Nil-поля не изменяются.
type UpdateProductReq struct {
	ID              int64
	ExpectedVersion int64
	Name            *string
	PriceCents      *int64
}

// DeleteProductReq — запрос на удаление товара (tombstone) с проверкой версии.
type DeleteProductReq struct {
	ID              int64
	ExpectedVersion int64
}

// ListProductsReq — запрос страницы каталога.
// PageToken непрозрачен и возвращается предыдущим вызовом ListProducts.
type ListProductsReq struct {
	NameQuery string
	PageSize  int
	PageToken string
}

// ListProductsRes — страница каталога; пустой NextPageToken означает конец выборки.
type ListProductsRes struct {
	Products      []ProductInfo
	NextPageToken string
}

// ProductInfo — DTO с информацией о товаре для внешнего использования.
type ProductInfo struct {
	ID         int64
	Name       string
	PriceCents int64
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UpdateProductFields — изменяемые поля, передаваемые репозиторию.
type UpdateProductFields struct {
	Name       *string
	PriceCents *int64
}

// INFRASTRUCTURE

type WriteRawMessageReq struct {
	ProductID int64
	Payload   []byte
}

// MAPPERS

func NewCreateProductReq(name string, priceCents int64) *CreateProductReq {
	return &CreateProductReq{
		Name:       name,
		PriceCents: priceCents,
	}
}

func NewUpdateProductReq(id, expectedVersion int64, name *string, priceCents *int64) *UpdateProductReq {
	return &UpdateProductReq{
		ID:              id,
		ExpectedVersion: expectedVersion,
		Name:            name,
		PriceCents:      priceCents,
	}
}

func NewDeleteProductReq(id, expectedVersion int64) *DeleteProductReq {
	return &DeleteProductReq{
		ID:              id,
		ExpectedVersion: expectedVersion,
	}
}

func NewListProductsReq(nameQuery string, pageSize int, pageToken string) *ListProductsReq {
	return &ListProductsReq{
		NameQuery: nameQuery,
		PageSize:  pageSize,
		PageToken: pageToken,
	}
}

func NewListProductsRes(products []ProductInfo, nextPageToken string) *ListProductsRes {
	return &ListProductsRes{
		Products:      products,
		NextPageToken: nextPageToken,
	}
}

func NewProductInfo(id int64, name string, priceCents, version int64, createdAt, updatedAt time.Time) ProductInfo {
	return ProductInfo{
		ID:         id,
		Name:       name,
		PriceCents: priceCents,
		Version:    version,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}
}

func NewWriteRawMessageReq(productID int64, payload []byte) *WriteRawMessageReq {
	return &WriteRawMessageReq{
		ProductID: productID,
		Payload:   payload,
	}
}
