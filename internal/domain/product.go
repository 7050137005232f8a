package domain

import "time"

// Product описывает товар каталога
type Product struct {
	ID         int64
	Name       string
	PriceCents int64 // Цена хранится в копейках
	Version    int64 // монотонно растёт при каждой успешной мутации
	IsArchived bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewProduct(name string, priceCents int64) *Product {
	return &Product{
		Name:       name,
		PriceCents: priceCents,
	}
}
