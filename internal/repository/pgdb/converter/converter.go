package converter

import (
	"github.com/DRSN-tech/product-service/internal/domain"
	"github.com/DRSN-tech/product-service/internal/usecase"
)

// ProductConverter преобразует сущности Product между domain и моделью PostgreSQL.
type ProductConverter interface {
	ToModel(entity *domain.Product) *ProductModel
	ToEntity(model *ProductModel) *domain.Product
}

// OutboxEventConverter преобразует сущности OutboxEvent между usecase и моделью PostgreSQL.
type OutboxEventConverter interface {
	ToModel(entity *usecase.OutboxEvent) *OutboxEventModel
	ToEntity(model *OutboxEventModel) *usecase.OutboxEvent
	ToArrEntity(models []*OutboxEventModel) []*usecase.OutboxEvent
}

type ProductConverterImpl struct{}

func NewProductConverterImpl() *ProductConverterImpl {
	return &ProductConverterImpl{}
}

func (c *ProductConverterImpl) ToModel(entity *domain.Product) *ProductModel {
	return &ProductModel{
		ID:         entity.ID,
		Name:       entity.Name,
		PriceCents: entity.PriceCents,
		Version:    entity.Version,
		IsArchived: entity.IsArchived,
		CreatedAt:  entity.CreatedAt,
		UpdatedAt:  entity.UpdatedAt,
	}
}

func (c *ProductConverterImpl) ToEntity(model *ProductModel) *domain.Product {
	return &domain.Product{
		ID:         model.ID,
		Name:       model.Name,
		PriceCents: model.PriceCents,
		Version:    model.Version,
		IsArchived: model.IsArchived,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}

type OutboxEventConverterImpl struct{}

func NewOutboxEventConverterImpl() *OutboxEventConverterImpl {
	return &OutboxEventConverterImpl{}
}

func (c *OutboxEventConverterImpl) ToModel(entity *usecase.OutboxEvent) *OutboxEventModel {
	model := &OutboxEventModel{
		ID:            entity.ID,
		EventID:       entity.EventID,
		EventType:     string(entity.EventType),
		ProductID:     entity.ProductID,
		Sequence:      entity.Sequence,
		Payload:       entity.Payload,
		Status:        string(entity.Status),
		Attempts:      entity.Attempts,
		NextAttemptAt: entity.NextAttemptAt,
		CreatedAt:     entity.CreatedAt,
		ProcessedAt:   entity.ProcessedAt,
	}

	if entity.LastError != "" {
		lastError := entity.LastError
		model.LastError = &lastError
	}

	return model
}

func (c *OutboxEventConverterImpl) ToEntity(model *OutboxEventModel) *usecase.OutboxEvent {
	entity := &usecase.OutboxEvent{
		ID:            model.ID,
		EventID:       model.EventID,
		EventType:     usecase.OutboxEventType(model.EventType),
		ProductID:     model.ProductID,
		Sequence:      model.Sequence,
		Payload:       model.Payload,
		Status:        usecase.OutboxStatus(model.Status),
		Attempts:      model.Attempts,
		NextAttemptAt: model.NextAttemptAt,
		CreatedAt:     model.CreatedAt,
		ProcessedAt:   model.ProcessedAt,
	}

	if model.LastError != nil {
		entity.LastError = *model.LastError
	}

	return entity
}

func (c *OutboxEventConverterImpl) ToArrEntity(models []*OutboxEventModel) []*usecase.OutboxEvent {
	result := make([]*usecase.OutboxEvent, 0, len(models))
	for _, model := range models {
		result = append(result, c.ToEntity(model))
	}

	return result
}
