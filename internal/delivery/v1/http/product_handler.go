package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/DRSN-tech/product-service/internal/usecase"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/DRSN-tech/product-service/pkg/logger"
	"github.com/go-chi/chi/v5"
)

const maxBodySize = 1 << 20

type ProductHandler struct {
	catalogUsecase usecase.CatalogUC
	logger         logger.Logger
}

func NewProductHandler(catalogUsecase usecase.CatalogUC, logger logger.Logger) *ProductHandler {
	return &ProductHandler{catalogUsecase: catalogUsecase, logger: logger}
}

type CreateProductRequest struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type UpdateProductRequest struct {
	ExpectedVersion int64   `json:"expected_version"`
	Name            *string `json:"name,omitempty"`
	Price           *string `json:"price,omitempty"`
}

type ProductResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Price     string    `json:"price"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ListProductsResponse struct {
	Products      []*ProductResponse `json:"products"`
	NextPageToken string             `json:"next_page_token,omitempty"`
}

func (p *ProductHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, e.ErrStatusBadRequest)
		return
	}

	priceCents, err := parsePriceToCents(req.Price)
	if err != nil {
		p.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, err)
		return
	}

	info, err := p.catalogUsecase.CreateProduct(r.Context(), usecase.NewCreateProductReq(req.Name, priceCents))
	if err != nil {
		p.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusCreated, toProductResponse(info))
}

func (p *ProductHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	info, err := p.catalogUsecase.GetProduct(r.Context(), id)
	if err != nil {
		p.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toProductResponse(info))
}

func (p *ProductHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	id, err := parseProductID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		p.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, e.ErrStatusBadRequest)
		return
	}

	var priceCents *int64
	if req.Price != nil {
		cents, err := parsePriceToCents(*req.Price)
		if err != nil {
			p.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
			WriteError(w, err)
			return
		}
		priceCents = &cents
	}

	info, err := p.catalogUsecase.UpdateProduct(r.Context(), usecase.NewUpdateProductReq(id, req.ExpectedVersion, req.Name, priceCents))
	if err != nil {
		p.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toProductResponse(info))
}

func (p *ProductHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	expectedVersion, err := strconv.ParseInt(r.URL.Query().Get("expected_version"), 10, 64)
	if err != nil {
		p.logger.Warnf("%d %s: invalid expected_version", http.StatusBadRequest, e.ErrStatusBadRequest.Error())
		WriteError(w, e.ErrStatusBadRequest)
		return
	}

	if err := p.catalogUsecase.DeleteProduct(r.Context(), usecase.NewDeleteProductReq(id, expectedVersion)); err != nil {
		p.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (p *ProductHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	pageSize := 0
	if v := q.Get("page_size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			p.logger.Warnf("%d %s: invalid page_size", http.StatusBadRequest, e.ErrStatusBadRequest.Error())
			WriteError(w, e.ErrStatusBadRequest)
			return
		}
		pageSize = parsed
	}

	res, err := p.catalogUsecase.ListProducts(r.Context(), usecase.NewListProductsReq(q.Get("name"), pageSize, q.Get("page_token")))
	if err != nil {
		p.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	products := make([]*ProductResponse, 0, len(res.Products))
	for i := range res.Products {
		products = append(products, toProductResponse(&res.Products[i]))
	}

	WriteSuccess(w, http.StatusOK, &ListProductsResponse{
		Products:      products,
		NextPageToken: res.NextPageToken,
	})
}

func parseProductID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, e.ErrStatusBadRequest
	}

	return id, nil
}
