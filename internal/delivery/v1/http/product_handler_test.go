package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DRSN-tech/product-service/internal/usecase"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/go-chi/chi/v5"
)

type fakeCatalogUC struct {
	createFn func(ctx context.Context, req *usecase.CreateProductReq) (*usecase.ProductInfo, error)
	getFn    func(ctx context.Context, id int64) (*usecase.ProductInfo, error)
	updateFn func(ctx context.Context, req *usecase.UpdateProductReq) (*usecase.ProductInfo, error)
	deleteFn func(ctx context.Context, req *usecase.DeleteProductReq) error
	listFn   func(ctx context.Context, req *usecase.ListProductsReq) (*usecase.ListProductsRes, error)
}

func (f *fakeCatalogUC) CreateProduct(ctx context.Context, req *usecase.CreateProductReq) (*usecase.ProductInfo, error) {
	return f.createFn(ctx, req)
}

func (f *fakeCatalogUC) GetProduct(ctx context.Context, id int64) (*usecase.ProductInfo, error) {
	return f.getFn(ctx, id)
}

func (f *fakeCatalogUC) UpdateProduct(ctx context.Context, req *usecase.UpdateProductReq) (*usecase.ProductInfo, error) {
	return f.updateFn(ctx, req)
}

func (f *fakeCatalogUC) DeleteProduct(ctx context.Context, req *usecase.DeleteProductReq) error {
	return f.deleteFn(ctx, req)
}

func (f *fakeCatalogUC) ListProducts(ctx context.Context, req *usecase.ListProductsReq) (*usecase.ListProductsRes, error) {
	return f.listFn(ctx, req)
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{})            {}
func (noopLogger) Infof(format string, args ...interface{})             {}
func (noopLogger) Warnf(format string, args ...interface{})             {}
func (noopLogger) Errorf(err error, format string, args ...interface{}) {}

type fakeHealth struct {
	store  bool
	broker bool
}

func (f *fakeHealth) StoreHealthy() bool  { return f.store }
func (f *fakeHealth) BrokerHealthy() bool { return f.broker }

func newTestRouter(uc usecase.CatalogUC, health HealthReporter) *chi.Mux {
	mux := chi.NewRouter()
	if health == nil {
		health = &fakeHealth{store: true, broker: true}
	}
	NewRouter(mux, noopLogger{}).Init("/api/v1", uc, health)
	return mux
}

func sampleProduct() *usecase.ProductInfo {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &usecase.ProductInfo{
		ID:         42,
		Name:       "widget",
		PriceCents: 59999,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateProduct(t *testing.T) {
	uc := &fakeCatalogUC{
		createFn: func(_ context.Context, req *usecase.CreateProductReq) (*usecase.ProductInfo, error) {
			if req.Name != "widget" || req.PriceCents != 59999 {
				t.Errorf("unexpected request: %+v", req)
			}
			return sampleProduct(), nil
		},
	}
	router := newTestRouter(uc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/", strings.NewReader(`{"name":"widget","price":"599.99"}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var resp ProductResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 42 || resp.Price != "599.99" || resp.Version != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestCreateProductBadPrice(t *testing.T) {
	uc := &fakeCatalogUC{
		createFn: func(_ context.Context, _ *usecase.CreateProductReq) (*usecase.ProductInfo, error) {
			t.Fatal("usecase must not be called on invalid price")
			return nil, nil
		},
	}
	router := newTestRouter(uc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/products/", strings.NewReader(`{"name":"widget","price":"1.999"}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGetProductNotFound(t *testing.T) {
	uc := &fakeCatalogUC{
		getFn: func(_ context.Context, id int64) (*usecase.ProductInfo, error) {
			return nil, e.Wrap("CatalogUseCase.GetProduct", e.ErrProductNotFound)
		},
	}
	router := newTestRouter(uc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/42", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetProductInvalidID(t *testing.T) {
	uc := &fakeCatalogUC{
		getFn: func(_ context.Context, _ int64) (*usecase.ProductInfo, error) {
			t.Fatal("usecase must not be called on invalid id")
			return nil, nil
		},
	}
	router := newTestRouter(uc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/abc", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUpdateProductVersionConflict(t *testing.T) {
	uc := &fakeCatalogUC{
		updateFn: func(_ context.Context, req *usecase.UpdateProductReq) (*usecase.ProductInfo, error) {
			if req.ID != 42 || req.ExpectedVersion != 3 {
				t.Errorf("unexpected request: %+v", req)
			}
			if req.Name == nil || *req.Name != "gadget" {
				t.Errorf("name not forwarded: %+v", req.Name)
			}
			if req.PriceCents != nil {
				t.Errorf("price must stay nil when omitted")
			}
			return nil, e.ErrVersionConflict
		},
	}
	router := newTestRouter(uc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/products/42", strings.NewReader(`{"expected_version":3,"name":"gadget"}`))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestDeleteProduct(t *testing.T) {
	uc := &fakeCatalogUC{
		deleteFn: func(_ context.Context, req *usecase.DeleteProductReq) error {
			if req.ID != 42 || req.ExpectedVersion != 2 {
				t.Errorf("unexpected request: %+v", req)
			}
			return nil
		},
	}
	router := newTestRouter(uc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/42?expected_version=2", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestDeleteProductMissingVersion(t *testing.T) {
	uc := &fakeCatalogUC{
		deleteFn: func(_ context.Context, _ *usecase.DeleteProductReq) error {
			t.Fatal("usecase must not be called without expected_version")
			return nil
		},
	}
	router := newTestRouter(uc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/products/42", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListProducts(t *testing.T) {
	uc := &fakeCatalogUC{
		listFn: func(_ context.Context, req *usecase.ListProductsReq) (*usecase.ListProductsRes, error) {
			if req.NameQuery != "wid" || req.PageSize != 2 || req.PageToken != "aWQ6NDE" {
				t.Errorf("unexpected request: %+v", req)
			}
			return usecase.NewListProductsRes([]usecase.ProductInfo{*sampleProduct()}, "aWQ6NDI"), nil
		},
	}
	router := newTestRouter(uc, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/?name=wid&page_size=2&page_token=aWQ6NDE", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp ListProductsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Products) != 1 || resp.NextPageToken != "aWQ6NDI" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&fakeCatalogUC{}, &fakeHealth{store: true, broker: false})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
