package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// ErrOrderNotFound is returned when no order has the requested id
var ErrOrderNotFound = errors.New("order not found")

// ErrDuplicateOrder is returned when the order id is already in the history
var ErrDuplicateOrder = errors.New("order id already exists")

type orderRow struct {
	ID                 string          `db:"id"`
	SessionID          string          `db:"session_id"`
	Customer           types.JSONText  `db:"customer"`
	Items              types.JSONText  `db:"items"`
	CouponCode         string          `db:"coupon_code"`
	Subtotal           decimal.Decimal `db:"subtotal"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage"`
	DiscountAmount     decimal.Decimal `db:"discount_amount"`
	CourierFee         decimal.Decimal `db:"courier_fee"`
	Total              decimal.Decimal `db:"total"`
	OrderDate          string          `db:"order_date"`
	CreatedAt          time.Time       `db:"created_at"`
}

func newOrderRow(o *models.Order) (*orderRow, error) {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal customer: %w", err)
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal items: %w", err)
	}
	return &orderRow{
		ID:                 o.ID,
		SessionID:          o.SessionID,
		Customer:           customer,
		Items:              items,
		CouponCode:         o.CouponCode,
		Subtotal:           o.Subtotal,
		DiscountPercentage: o.DiscountPercentage,
		DiscountAmount:     o.DiscountAmount,
		CourierFee:         o.CourierFee,
		Total:              o.Total,
		OrderDate:          o.OrderDate,
		CreatedAt:          o.CreatedAt,
	}, nil
}

func (r *orderRow) toModel() (*models.Order, error) {
	o := &models.Order{
		ID:                 r.ID,
		SessionID:          r.SessionID,
		CouponCode:         r.CouponCode,
		Subtotal:           r.Subtotal,
		DiscountPercentage: r.DiscountPercentage,
		DiscountAmount:     r.DiscountAmount,
		CourierFee:         r.CourierFee,
		Total:              r.Total,
		OrderDate:          r.OrderDate,
		CreatedAt:          r.CreatedAt,
	}
	if err := r.Customer.Unmarshal(&o.Customer); err != nil {
		return nil, fmt.Errorf("failed to decode customer of %s: %w", r.ID, err)
	}
	if err := r.Items.Unmarshal(&o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of %s: %w", r.ID, err)
	}
	return o, nil
}

// SaveOrder appends an order to the history. An existing id is left untouched
// and reported as ErrDuplicateOrder.
func (s *Store) SaveOrder(ctx context.Context, order *models.Order) error {
	row, err := newOrderRow(order)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (id, session_id, customer, items, coupon_code, subtotal,
			discount_percentage, discount_amount, courier_fee, total, order_date, created_at)
		VALUES (:id, :session_id, :customer, :items, :coupon_code, :subtotal,
			:discount_percentage, :discount_amount, :courier_fee, :total, :order_date, :created_at)
		ON CONFLICT (id) DO NOTHING`

	res, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ID)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// GetOrdersBySession returns a session's order history, newest first
func (s *Store) GetOrdersBySession(ctx context.Context, sessionID string) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM orders WHERE session_id = $1 ORDER BY created_at DESC", sessionID)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}
