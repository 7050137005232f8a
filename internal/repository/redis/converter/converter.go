package converter

import (
	"github.com/DRSN-tech/product-service/internal/usecase"
)

type ProductInfoConverter interface {
	ToRedisModel(entity *usecase.ProductInfo) *ProductInfoRedisModel
	ToUseCase(model *ProductInfoRedisModel) *usecase.ProductInfo
	ToArrRedisModel(entities []usecase.ProductInfo) []ProductInfoRedisModel
}

type ProductInfoConverterImpl struct{}

func NewProductInfoConverterImpl() *ProductInfoConverterImpl {
	return &ProductInfoConverterImpl{}
}

func (c *ProductInfoConverterImpl) ToRedisModel(entity *usecase.ProductInfo) *ProductInfoRedisModel {
	return &ProductInfoRedisModel{
		ID:         entity.ID,
		Name:       entity.Name,
		PriceCents: entity.PriceCents,
		Version:    entity.Version,
		CreatedAt:  entity.CreatedAt,
		UpdatedAt:  entity.UpdatedAt,
	}
}

func (c *ProductInfoConverterImpl) ToUseCase(model *ProductInfoRedisModel) *usecase.ProductInfo {
	return &usecase.ProductInfo{
		ID:         model.ID,
		Name:       model.Name,
		PriceCents: model.PriceCents,
		Version:    model.Version,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

func (c *ProductInfoConverterImpl) ToArrRedisModel(entities []usecase.ProductInfo) []ProductInfoRedisModel {
	models := make([]ProductInfoRedisModel, 0, len(entities))
	for i := range entities {
		models = append(models, *c.ToRedisModel(&entities[i]))
	}

	return models
}
