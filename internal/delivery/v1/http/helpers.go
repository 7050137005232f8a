package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/DRSN-tech/product-service/internal/usecase"
	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrMissingFields):
		return http.StatusBadRequest, e.ErrMissingFields.Error()
	case errors.Is(err, e.ErrProductNameRequired):
		return http.StatusBadRequest, e.ErrProductNameRequired.Error()
	case errors.Is(err, e.ErrPriceMustBeNonNegative):
		return http.StatusBadRequest, e.ErrPriceMustBeNonNegative.Error()
	case errors.Is(err, e.ErrInvalidPrice):
		return http.StatusBadRequest, e.ErrInvalidPrice.Error()
	case errors.Is(err, e.ErrPricePrecision):
		return http.StatusBadRequest, e.ErrPricePrecision.Error()
	case errors.Is(err, e.ErrInvalidPageToken):
		return http.StatusBadRequest, e.ErrInvalidPageToken.Error()
	case errors.Is(err, e.ErrProductNotFound):
		return http.StatusNotFound, e.ErrProductNotFound.Error()
	case errors.Is(err, e.ErrVersionConflict):
		return http.StatusConflict, e.ErrVersionConflict.Error()
	case errors.Is(err, e.ErrConnection):
		return http.StatusServiceUnavailable, e.ErrConnection.Error()
	case errors.Is(err, e.ErrTimeout):
		return http.StatusGatewayTimeout, e.ErrTimeout.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parsePriceToCents конвертирует строку вида "599.99" или "600" в int64 копеек.
// Ошибка, если формат некорректен, больше двух знаков после запятой,
// отрицательное значение или превышен разумный потолок.
func parsePriceToCents(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, e.ErrMissingFields
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, e.ErrInvalidPrice
	}

	if d.LessThan(decimal.Zero) {
		return 0, e.ErrPriceMustBeNonNegative
	}

	maxPrice := decimal.NewFromInt(1_000_000_000).Mul(decimal.NewFromInt(100))
	if d.GreaterThan(maxPrice) {
		return 0, e.ErrInvalidPrice
	}

	if d.Exponent() < -2 {
		return 0, e.ErrPricePrecision
	}

	cents := d.Mul(decimal.NewFromInt(100)).Round(0)

	return cents.IntPart(), nil
}

// formatPrice рендерит копейки обратно в десятичную строку: 59999 -> "599.99".
func formatPrice(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func toProductResponse(info *usecase.ProductInfo) *ProductResponse {
	return &ProductResponse{
		ID:        info.ID,
		Name:      info.Name,
		Price:     formatPrice(info.PriceCents),
		Version:   info.Version,
		CreatedAt: info.CreatedAt,
		UpdatedAt: info.UpdatedAt,
	}
}
