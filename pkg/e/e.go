package e

import "fmt"

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// 400 Bad Request
	ErrProductNameRequired    = fmt.Errorf("product name is required")
	ErrPriceMustBeNonNegative = fmt.Errorf("price must be non-negative")
	ErrInvalidPrice           = fmt.Errorf("invalid price")
	ErrPricePrecision         = fmt.Errorf("price must have at most 2 decimal places")
	ErrMissingFields          = fmt.Errorf("missing required fields")
	ErrInvalidPageToken       = fmt.Errorf("invalid page token")
	ErrStatusBadRequest       = fmt.Errorf("bad request")

	// 404 Not Found / 409 Conflict
	ErrProductNotFound = fmt.Errorf("product not found")
	ErrVersionConflict = fmt.Errorf("product version conflict")

	// Инфраструктурные ошибки
	ErrConnection        = fmt.Errorf("store or broker unreachable")
	ErrTimeout           = fmt.Errorf("operation deadline exceeded")
	ErrEventDeadLettered = fmt.Errorf("event moved to dead letter set")

	// 500 Internal Server Error
	ErrInternalServerError = fmt.Errorf("internal server error")

	// Конфигурация
	ErrIncorrectEnvVariable = fmt.Errorf("incorrect environment variable")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
