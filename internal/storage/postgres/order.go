package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/commerce-core/internal/domain"
)

type orderRepository struct{ q querier }

const orderColumns = `id, user_id, coupon_code, discount_amount, total_amount, used_point, status, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, coupon_code, discount_amount, total_amount, used_point, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`, order.UserID, order.CouponCode, order.DiscountAmount, order.TotalAmount, order.UsedPoint,
		string(order.Status), order.CreatedAt).Scan(&order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, name, price, quantity)
			VALUES ($1, $2, $3, $4, $5)
		`, order.ID, item.ProductID, item.Name, item.Price, item.Quantity); err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}
	return order, nil
}

func (r *orderRepository) get(ctx context.Context, id int64, forUpdate bool) (domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var o domain.Order
	var status string
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.UserID, &o.CouponCode, &o.DiscountAmount, &o.TotalAmount,
		&o.UsedPoint, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.OrderStatus(status)

	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, name, price, quantity FROM order_items WHERE order_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return domain.Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("iterate order items: %w", err)
	}
	return o, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	return r.get(ctx, id, false)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id int64) (domain.Order, error) {
	return r.get(ctx, id, true)
}

// Save обновляет только мутируемые поля заказа: позиции неизменяемы.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET coupon_code = $2, discount_amount = $3, total_amount = $4, status = $5, updated_at = $6
		WHERE id = $1
	`, order.ID, order.CouponCode, order.DiscountAmount, order.TotalAmount, string(order.Status), order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

type paymentRepository struct{ q querier }

const paymentColumns = `id, order_id, user_id, total_amount, used_point, paid_amount, card_type, card_no, status, transaction_key, failure_reason, created_at, updated_at`

func scanPayment(row *sql.Row) (domain.Payment, error) {
	var p domain.Payment
	var status string
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.TotalAmount, &p.UsedPoint, &p.PaidAmount,
		&p.CardType, &p.CardNo, &status, &p.TransactionKey, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	p.Status = domain.PaymentStatus(status)
	return p, nil
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, user_id, total_amount, used_point, paid_amount,
		                      card_type, card_no, status, transaction_key, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id
	`, payment.OrderID, payment.UserID, payment.TotalAmount, payment.UsedPoint, payment.PaidAmount,
		payment.CardType, payment.CardNo, string(payment.Status), payment.TransactionKey,
		payment.FailureReason, payment.CreatedAt).Scan(&payment.ID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	return payment, nil
}

func (r *paymentRepository) Get(ctx context.Context, id int64) (domain.Payment, error) {
	return scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID int64) (domain.Payment, error) {
	return scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID))
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id int64) (domain.Payment, error) {
	return scanPayment(r.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE payments
		SET total_amount = $2, paid_amount = $3, status = $4, transaction_key = $5,
		    failure_reason = $6, updated_at = $7
		WHERE id = $1
	`, payment.ID, payment.TotalAmount, payment.PaidAmount, string(payment.Status),
		payment.TransactionKey, payment.FailureReason, payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment %d: %w", payment.ID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *paymentRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = $1 AND paid_amount > 0 AND updated_at < $2
		ORDER BY id
		LIMIT $3
	`, string(domain.PaymentStatusPending), olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, limit)
	for rows.Next() {
		var p domain.Payment
		var status string
		if err := rows.Scan(&p.ID, &p.OrderID, &p.UserID, &p.TotalAmount, &p.UsedPoint, &p.PaidAmount,
			&p.CardType, &p.CardNo, &status, &p.TransactionKey, &p.FailureReason, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		p.Status = domain.PaymentStatus(status)
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

type couponRepository struct{ q querier }

func (r *couponRepository) GetByCode(ctx context.Context, code string) (domain.Coupon, error) {
	var c domain.Coupon
	var couponType string
	err := r.q.QueryRowContext(ctx, `
		SELECT id, code, user_id, coupon_type, discount_value, used, used_at, created_at
		FROM coupons
		WHERE code = $1
		FOR UPDATE
	`, code).Scan(&c.ID, &c.Code, &c.UserID, &couponType, &c.DiscountValue, &c.Used, &c.UsedAt, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("scan coupon: %w", err)
	}
	c.Type = domain.CouponType(couponType)
	return c, nil
}

func (r *couponRepository) Save(ctx context.Context, coupon domain.Coupon) error {
	if coupon.ID == 0 {
		return r.q.QueryRowContext(ctx, `
			INSERT INTO coupons (code, user_id, coupon_type, discount_value, used, used_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, coupon.Code, coupon.UserID, string(coupon.Type), coupon.DiscountValue,
			coupon.Used, coupon.UsedAt, coupon.CreatedAt).Scan(&coupon.ID)
	}

	_, err := r.q.ExecContext(ctx, `
		UPDATE coupons SET used = $2, used_at = $3 WHERE id = $1
	`, coupon.ID, coupon.Used, coupon.UsedAt)
	if err != nil {
		return fmt.Errorf("update coupon %d: %w", coupon.ID, err)
	}
	return nil
}

var (
	_ domain.OrderRepository   = (*orderRepository)(nil)
	_ domain.PaymentRepository = (*paymentRepository)(nil)
	_ domain.CouponRepository  = (*couponRepository)(nil)
)
