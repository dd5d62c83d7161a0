package domain

import "errors"

// Kind классифицирует ошибку для вызывающего слоя.
// Транспортный маппинг (HTTP-коды и т.п.) — ответственность внешнего слоя.
type Kind string

const (
	KindBadRequest        Kind = "BAD_REQUEST"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindInsufficientPoint Kind = "INSUFFICIENT_POINT"
	KindInvalidState      Kind = "INVALID_STATE"
	KindUpstreamTimeout   Kind = "UPSTREAM_TIMEOUT"
	KindUpstreamFailure   Kind = "UPSTREAM_FAILURE"
	KindCircuitOpen       Kind = "CIRCUIT_OPEN"
	KindInternal          Kind = "INTERNAL"
)

var (
	// Ошибки валидации входных данных.
	ErrUserIDInvalid      = errors.New("user_id must be 1-10 alphanumeric characters")
	ErrEmailInvalid       = errors.New("email format is invalid")
	ErrProductNameEmpty   = errors.New("product name must not be empty")
	ErrPriceNegative      = errors.New("price must be non-negative")
	ErrStockNegative      = errors.New("stock must be non-negative")
	ErrQuantityInvalid    = errors.New("quantity must be greater than zero")
	ErrOrderItemsRequired = errors.New("order must contain at least one item")
	ErrAmountNegative     = errors.New("amount must be non-negative")
	ErrReasonRequired     = errors.New("failure reason must not be empty")
	ErrMissingCard        = errors.New("card type and card number are required for card payment")

	// Ошибки поиска агрегатов.
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrBrandNotFound   = errors.New("brand not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrMetricsNotFound = errors.New("product metrics not found")

	// Конфликты уникальности.
	ErrDuplicateUser = errors.New("user_id already taken")
	ErrDuplicateLike = errors.New("like already exists")

	// Бизнес-ошибки резервирования ресурсов.
	ErrInsufficientStock = errors.New("insufficient product stock")
	ErrInsufficientPoint = errors.New("insufficient point balance")

	// ErrInvalidState возвращается при попытке мутировать терминальное состояние.
	ErrInvalidState = errors.New("aggregate is in a terminal state")
	// ErrCouponAlreadyUsed — купон можно применить не более одного раза.
	ErrCouponAlreadyUsed = errors.New("coupon already used")

	// ErrVersionConflict сигнализирует о гонке при назначении версии outbox.
	ErrVersionConflict = errors.New("outbox version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки взаимодействия с платёжным шлюзом.
	ErrUpstreamTimeout = errors.New("payment gateway call timed out")
	ErrUpstreamFailure = errors.New("payment gateway returned an error")
	ErrCircuitOpen     = errors.New("payment gateway circuit breaker is open")
)

// KindOf сопоставляет ошибку с категорией для структурированного ответа
// {errorType, message} на стороне вызывающего.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrInsufficientPoint):
		return KindInsufficientPoint
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrBrandNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrCouponNotFound),
		errors.Is(err, ErrMetricsNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateUser), errors.Is(err, ErrDuplicateLike):
		return KindConflict
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrCouponAlreadyUsed):
		return KindInvalidState
	case errors.Is(err, ErrUpstreamTimeout):
		return KindUpstreamTimeout
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrUpstreamFailure):
		return KindUpstreamFailure
	case errors.Is(err, ErrUserIDInvalid),
		errors.Is(err, ErrEmailInvalid),
		errors.Is(err, ErrProductNameEmpty),
		errors.Is(err, ErrPriceNegative),
		errors.Is(err, ErrStockNegative),
		errors.Is(err, ErrQuantityInvalid),
		errors.Is(err, ErrOrderItemsRequired),
		errors.Is(err, ErrAmountNegative),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrMissingCard):
		return KindBadRequest
	default:
		return KindInternal
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий outbox.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
