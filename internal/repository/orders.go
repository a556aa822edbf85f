package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, customer_email, customer_name, total_amount, currency, status,
	shipping, payment_intent_id, failure_reason, tracking, created_at, updated_at`

// CreateOrder writes the order and its items in one transaction.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	shippingJSON, err := json.Marshal(order.Shipping)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping: %w", err)
	}
	trackingJSON, err := json.Marshal(order.Tracking)
	if err != nil {
		return fmt.Errorf("failed to marshal tracking: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (id, user_id, customer_email, customer_name, total_amount, currency, status, shipping, tracking)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		order.ID,
		order.UserID,
		order.CustomerEmail,
		order.CustomerName,
		order.TotalAmount,
		order.Currency,
		order.Status,
		string(shippingJSON),
		string(trackingJSON),
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_items (order_id, position, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("prepare insert order item: %w", err)
	}
	defer stmt.Close()

	for i, item := range order.Items {
		if _, err := stmt.ExecContext(ctx, order.ID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceAtPurchase); err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Repository) ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1 = 1`
	var args []any
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(` AND user_id = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// AttachPaymentIntent stores the processor intent id. Re-attaching the same id
// is a no-op; a different id is rejected so an order never has two intents.
func (r *Repository) AttachPaymentIntent(ctx context.Context, id uuid.UUID, intentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_intent_id = $1, updated_at = NOW()
		WHERE id = $2 AND (payment_intent_id IS NULL OR payment_intent_id = $1)`,
		intentID, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIntentAlreadyAttached
		}
		return fmt.Errorf("attach payment intent: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach payment intent: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrIntentAlreadyAttached
}

// ApplyStatusChange performs a compare-and-set on the order status. It returns
// false without error when the order is no longer in c.From.
func (r *Repository) ApplyStatusChange(ctx context.Context, c StatusChange) (bool, error) {
	var tracking any
	if c.Tracking != nil {
		b, err := json.Marshal(c.Tracking)
		if err != nil {
			return false, fmt.Errorf("marshal tracking: %w", err)
		}
		tracking = string(b)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    failure_reason = COALESCE(NULLIF($2, ''), failure_reason),
		    tracking = COALESCE($3::jsonb, tracking),
		    updated_at = NOW()
		WHERE id = $4 AND status = $5`,
		c.To, c.FailureReason, tracking, c.OrderID, c.From)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if c.Event != nil {
		if err := insertOutbox(ctx, tx, *c.Event, true); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit status change: %w", err)
	}
	return true, nil
}

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var (
		o            domain.Order
		shippingJSON []byte
		trackingJSON []byte
		intentID     sql.NullString
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.CustomerEmail,
		&o.CustomerName,
		&o.TotalAmount,
		&o.Currency,
		&o.Status,
		&shippingJSON,
		&intentID,
		&o.FailureReason,
		&trackingJSON,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.PaymentIntentID = intentID.String

	if err := json.Unmarshal(shippingJSON, &o.Shipping); err != nil {
		return nil, fmt.Errorf("unmarshal shipping: %w", err)
	}
	if err := json.Unmarshal(trackingJSON, &o.Tracking); err != nil {
		return nil, fmt.Errorf("unmarshal tracking: %w", err)
	}
	return &o, nil
}

func (r *Repository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var it domain.OrderItem
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPriceAtPurchase); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}
