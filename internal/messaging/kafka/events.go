package kafka

// Топики внешней шины. Партиций >= 3, min.insync.replicas = 1.
const (
	TopicOrderEvents     = "order-events"
	TopicLikeEvents      = "like-events"
	TopicProductEvents   = "product-events"
	TopicPaymentEvents   = "payment-events"
	TopicCouponEvents    = "coupon-events"
	TopicUserEvents      = "user-events" // производит внешний auth-сервис
	TopicDeadLetterQueue = "commerce-dlq"
)

// Типы событий. Значение попадает в заголовок eventType.
const (
	EventTypeOrderCreated     = "OrderCreated"
	EventTypeOrderCompleted   = "OrderCompleted"
	EventTypeOrderCanceled    = "OrderCanceled"
	EventTypePaymentRequested = "PaymentRequested"
	EventTypePaymentCompleted = "PaymentCompleted"
	EventTypePaymentFailed    = "PaymentFailed"
	EventTypeCouponApplied    = "CouponApplied"
	EventTypeLikeAdded        = "LikeAdded"
	EventTypeLikeRemoved      = "LikeRemoved"
	EventTypeProductViewed    = "ProductViewed"
	EventTypeUserRegistered   = "UserRegistered"
)

// Заголовки сообщений: eventId (UUID), eventType (ASCII),
// version (десятичный Long) — всё в UTF-8.
const (
	HeaderEventID   = "eventId"
	HeaderEventType = "eventType"
	HeaderVersion   = "version"
)

// OrderItemPayload — позиция заказа в payload события.
type OrderItemPayload struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

// OrderCreatedEvent публикуется в order-events с ключом orderId.
type OrderCreatedEvent struct {
	OrderID         int64              `json:"orderId"`
	UserID          int64              `json:"userId"`
	Subtotal        int64              `json:"subtotal"`
	UsedPointAmount int64              `json:"usedPointAmount"`
	Items           []OrderItemPayload `json:"items"`
}

// OrderCompletedEvent публикуется после успешной оплаты.
type OrderCompletedEvent struct {
	OrderID int64 `json:"orderId"`
	UserID  int64 `json:"userId"`
}

// OrderCanceledEvent публикуется при отмене (компенсация резервов выполнена).
type OrderCanceledEvent struct {
	OrderID           int64  `json:"orderId"`
	UserID            int64  `json:"userId"`
	RefundPointAmount int64  `json:"refundPointAmount"`
	Reason            string `json:"reason,omitempty"`
}

// PaymentRequestedEvent запускает обработку платежа.
type PaymentRequestedEvent struct {
	OrderID         int64  `json:"orderId"`
	UserID          int64  `json:"userId"`
	TotalAmount     int64  `json:"totalAmount"`
	UsedPointAmount int64  `json:"usedPointAmount"`
	CardType        string `json:"cardType,omitempty"`
	CardNo          string `json:"cardNo,omitempty"`
}

// PaymentCompletedEvent — платёж подтверждён.
type PaymentCompletedEvent struct {
	OrderID        int64  `json:"orderId"`
	PaymentID      int64  `json:"paymentId"`
	TransactionKey string `json:"transactionKey,omitempty"`
	PaidAmount     int64  `json:"paidAmount"`
}

// PaymentFailedEvent — платёж отклонён; refundPointAmount возвращается пользователю.
type PaymentFailedEvent struct {
	OrderID           int64  `json:"orderId"`
	PaymentID         int64  `json:"paymentId"`
	Reason            string `json:"reason"`
	RefundPointAmount int64  `json:"refundPointAmount"`
}

// CouponAppliedEvent — скидка рассчитана и должна быть применена к заказу и платежу.
type CouponAppliedEvent struct {
	OrderID        int64  `json:"orderId"`
	CouponCode     string `json:"couponCode"`
	DiscountAmount int64  `json:"discountAmount"`
}

// LikeAddedEvent публикуется в like-events с ключом productId.
type LikeAddedEvent struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
}

// LikeRemovedEvent публикуется при снятии лайка.
type LikeRemovedEvent struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
}

// ProductViewedEvent публикуется в product-events с ключом productId.
type ProductViewedEvent struct {
	ProductID int64 `json:"productId"`
	UserID    int64 `json:"userId,omitempty"`
}

// UserRegisteredEvent — контракт топика user-events. Регистрацией владеет
// внешний auth-сервис, этот репозиторий событие не производит и не
// потребляет; тип задаёт схему payload для будущих подписчиков.
type UserRegisteredEvent struct {
	UserID int64  `json:"userId"`
	Login  string `json:"login"`
}
