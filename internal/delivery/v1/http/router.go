package http

import (
	"net/http"

	"github.com/DRSN-tech/product-service/internal/usecase"
	"github.com/DRSN-tech/product-service/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// HealthReporter отдаёт текущие состояния соединений для health-эндпоинта.
type HealthReporter interface {
	StoreHealthy() bool
	BrokerHealthy() bool
}

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(apiPrefix string, catalogUC usecase.CatalogUC, health HealthReporter) {
	r.router.Get("/health", healthHandler(health))

	r.router.Route(apiPrefix, func(v1 chi.Router) {
		prHandler := NewProductHandler(catalogUC, r.logger)
		registerProductRoutes(v1, prHandler)
	})
}

func registerProductRoutes(router chi.Router, prHandler *ProductHandler) {
	router.Route("/products", func(pr chi.Router) {
		pr.Post("/", prHandler.createProduct)
		pr.Get("/", prHandler.listProducts)
		pr.Get("/{id}", prHandler.getProduct)
		pr.Put("/{id}", prHandler.updateProduct)
		pr.Delete("/{id}", prHandler.deleteProduct)
	})
}

func healthHandler(health HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeOK := health.StoreHealthy()
		brokerOK := health.BrokerHealthy()

		status := http.StatusOK
		if !storeOK || !brokerOK {
			status = http.StatusServiceUnavailable
		}

		WriteSuccess(w, status, map[string]bool{
			"store":  storeOK,
			"broker": brokerOK,
		})
	}
}
