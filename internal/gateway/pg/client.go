package pg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

// Умолчания retry-политики и breaker-а клиента PG.
const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultInitialDelay   = 100 * time.Millisecond
	defaultMaxDelay       = 2 * time.Second
	defaultBackoffFactor  = 2.0

	defaultBreakerFailures = 5
	defaultBreakerReset    = 30 * time.Second

	headerUserID = "X-USER-ID"
)

// RetryConfig — ограниченный экспоненциальный retry для вызовов PG.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   defaultMaxAttempts,
		InitialDelay:  defaultInitialDelay,
		MaxDelay:      defaultMaxDelay,
		BackoffFactor: defaultBackoffFactor,
	}
}

// Конверт ответа PG: meta описывает исход, data — транзакцию.
type metaPayload struct {
	Result    string `json:"result"`
	ErrorCode string `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

type transactionPayload struct {
	TransactionKey string `json:"transactionKey"`
	Status         string `json:"status"`
}

type envelope struct {
	Meta metaPayload        `json:"meta"`
	Data transactionPayload `json:"data"`
}

type paymentRequestBody struct {
	OrderID     int64  `json:"orderId"`
	CardType    string `json:"cardType"`
	CardNo      string `json:"cardNo"`
	Amount      int64  `json:"amount"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Client — HTTP-клиент платёжного шлюза. Транспортные сбои (таймауты, 5xx)
// ретраятся и считаются breaker-ом; бизнес-отказы приходят как
// GatewayResult со статусом FAILED и не размыкают контур.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *CircuitBreaker
	retry      RetryConfig
	logger     *log.Entry
}

// ClientOption настраивает Client.
type ClientOption func(*Client)

// WithHTTPClient задаёт http.Client (таймауты, транспорт).
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithBreaker задаёт circuit breaker.
func WithBreaker(breaker *CircuitBreaker) ClientOption {
	return func(c *Client) { c.breaker = breaker }
}

// WithRetry задаёт retry-политику.
func WithRetry(retry RetryConfig) ClientOption {
	return func(c *Client) { c.retry = retry }
}

// WithClientLogger задаёт логгер.
func WithClientLogger(logger *log.Entry) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient создаёт клиент PG для baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
		retry:  DefaultRetryConfig(),
		logger: log.WithField("component", "pg-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewCircuitBreaker(defaultBreakerFailures, defaultBreakerReset, c.logger)
	}
	return c
}

// RequestPayment отправляет POST /payments.
func (c *Client) RequestPayment(ctx context.Context, req domain.GatewayRequest) (domain.GatewayResult, error) {
	body, err := json.Marshal(paymentRequestBody{
		OrderID:     req.OrderID,
		CardType:    req.CardType,
		CardNo:      req.CardNo,
		Amount:      req.Amount,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return domain.GatewayResult{}, fmt.Errorf("marshal payment request: %w", err)
	}

	c.logger.WithFields(log.Fields{
		"order_id":  req.OrderID,
		"user_id":   req.UserID,
		"card_type": req.CardType,
		"card_no":   MaskCardNo(req.CardNo),
		"amount":    req.Amount,
	}).Info("requesting payment from gateway")

	var result domain.GatewayResult
	err = c.breaker.Execute("request_payment", func() error {
		var callErr error
		result, callErr = c.callWithRetry(ctx, http.MethodPost, c.baseURL+"/payments", req.UserID, body)
		return callErr
	})
	if err != nil {
		return domain.GatewayResult{}, err
	}
	return result, nil
}

// GetTransaction отправляет GET /payments/{transactionKey} для reconciliation.
func (c *Client) GetTransaction(ctx context.Context, userID int64, transactionKey string) (domain.GatewayResult, error) {
	url := c.baseURL + "/payments/" + transactionKey

	var result domain.GatewayResult
	err := c.breaker.Execute("get_transaction", func() error {
		var callErr error
		result, callErr = c.callWithRetry(ctx, http.MethodGet, url, userID, nil)
		return callErr
	})
	if err != nil {
		return domain.GatewayResult{}, err
	}
	return result, nil
}

func (c *Client) callWithRetry(ctx context.Context, method, url string, userID int64, body []byte) (domain.GatewayResult, error) {
	var lastErr error
	delay := c.retry.InitialDelay

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		result, retryable, err := c.call(ctx, method, url, userID, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable || attempt >= c.retry.MaxAttempts {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"method":  method,
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("gateway call failed, retrying")

		select {
		case <-ctx.Done():
			return domain.GatewayResult{}, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * c.retry.BackoffFactor)
		if delay > c.retry.MaxDelay {
			delay = c.retry.MaxDelay
		}
	}
	return domain.GatewayResult{}, lastErr
}

// call выполняет один HTTP-вызов. Второй результат — признак того, что
// ошибку имеет смысл повторять (сеть/таймаут/5xx).
func (c *Client) call(ctx context.Context, method, url string, userID int64, body []byte) (domain.GatewayResult, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return domain.GatewayResult{}, false, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerUserID, strconv.FormatInt(userID, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GatewayResult{}, true, fmt.Errorf("call gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.GatewayResult{}, true, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return domain.GatewayResult{}, true, fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.GatewayResult{}, false, fmt.Errorf("decode gateway response (%d): %w", resp.StatusCode, err)
	}

	result := domain.GatewayResult{
		TransactionKey: env.Data.TransactionKey,
		ErrorCode:      env.Meta.ErrorCode,
		Message:        env.Meta.Message,
	}

	// 4xx с конвертом — бизнес-отказ шлюза: транзакция отклонена,
	// ретраить и размыкать контур не нужно.
	if resp.StatusCode >= http.StatusBadRequest {
		result.Status = domain.PaymentStatusFailed
		return result, false, nil
	}

	switch strings.ToUpper(env.Data.Status) {
	case "SUCCESS", "APPROVED":
		result.Status = domain.PaymentStatusSuccess
	case "FAILED", "DECLINED":
		result.Status = domain.PaymentStatusFailed
	default:
		result.Status = domain.PaymentStatusPending
	}
	return result, false, nil
}

// MaskCardNo скрывает номер карты в логах, оставляя последние четыре цифры.
func MaskCardNo(cardNo string) string {
	digits := 0
	for _, r := range cardNo {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 4 {
		return strings.Repeat("*", len(cardNo))
	}

	keepFrom := digits - 4
	var b strings.Builder
	seen := 0
	for _, r := range cardNo {
		switch {
		case r < '0' || r > '9':
			b.WriteRune(r)
		case seen >= keepFrom:
			b.WriteRune(r)
			seen++
		default:
			b.WriteRune('*')
			seen++
		}
	}
	return b.String()
}

var _ domain.PaymentGateway = (*Client)(nil)
