package usecase

import "context"

type CatalogUC interface {
	CreateProduct(ctx context.Context, req *CreateProductReq) (*ProductInfo, error)
	GetProduct(ctx context.Context, id int64) (*ProductInfo, error)
	UpdateProduct(ctx context.Context, req *UpdateProductReq) (*ProductInfo, error)
	DeleteProduct(ctx context.Context, req *DeleteProductReq) error
	ListProducts(ctx context.Context, req *ListProductsReq) (*ListProductsRes, error)
}
