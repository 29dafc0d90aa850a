package orders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/shopdash/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const selectOrders = `
	SELECT id, subtotal, tax, grand_total, status, external_transaction_id, payment_method, paid_at, created_at, updated_at
	FROM orders
`

// Create writes the order and all of its items in one transaction and
// assigns the order id. Nothing is visible unless every item is stored.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if len(order.Items) == 0 {
		return domain.NewValidationError("items", "at least one item is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin order transaction", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, subtotal, tax, grand_total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, order.ID, order.Subtotal, order.Tax, order.GrandTotal, order.Status, order.CreatedAt)
	if err != nil {
		return &domain.PersistenceError{Op: "insert order", Err: err}
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, line_no, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New().String(), order.ID, i, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return &domain.PersistenceError{Op: "insert order item", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit order", Err: err}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order         domain.Order
		externalID    sql.NullString
		paymentMethod sql.NullString
		paidAt        sql.NullTime
	)
	err := row.Scan(&order.ID, &order.Subtotal, &order.Tax, &order.GrandTotal, &order.Status,
		&externalID, &paymentMethod, &paidAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}

	if externalID.Valid {
		order.ExternalTransactionID = &externalID.String
	}
	if paymentMethod.Valid {
		order.PaymentMethod = &paymentMethod.String
	}
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		order.PaidAt = &t
	}
	order.Items = []domain.OrderItem{}
	return order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrders+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.PersistenceError{Op: "get order", Err: err}
	}

	byID := map[string]*domain.Order{order.ID: &order}
	if err := r.loadItems(ctx, byID, []string{order.ID}); err != nil {
		return nil, err
	}

	return &order, nil
}

func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrders+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list orders", Err: err}
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scan order", Err: err}
		}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "list orders", Err: err}
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.loadItems(ctx, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders map[string]*domain.Order, ids []string) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.product_id, COALESCE(p.name, ''), oi.quantity, oi.price
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.line_no
	`, pq.Array(ids))
	if err != nil {
		return &domain.PersistenceError{Op: "load order items", Err: err}
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Quantity, &item.Price); err != nil {
			return &domain.PersistenceError{Op: "scan order item", Err: err}
		}
		if order, ok := orders[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return &domain.PersistenceError{Op: "load order items", Err: err}
	}
	return nil
}

// AttachPaymentReference stores the gateway's ids and moves the order to
// PROCESSING. It may be repeated while the order is not terminal, so a
// request whose response was lost can be retried.
func (r *OrderRepository) AttachPaymentReference(ctx context.Context, id, externalTransactionID, paymentMethodID string) (*domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET external_transaction_id = $2, payment_method = $3, status = $4, updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`, id, externalTransactionID, paymentMethodID, domain.OrderStatusProcessing)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "attach payment reference", Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, &domain.PersistenceError{Op: "attach payment reference", Err: err}
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, domain.ErrOrderFinalized
	}

	return order, nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, *domain.Order, error) {
	return r.transition(ctx, id, domain.OrderStatusSucceeded, &paidAt)
}

func (r *OrderRepository) MarkFailed(ctx context.Context, id string) (bool, *domain.Order, error) {
	return r.transition(ctx, id, domain.OrderStatusFailed, nil)
}

// transition moves a non-terminal order to a terminal status. It reports
// false without error when the order had already left the non-terminal
// states, so replayed notifications are harmless.
func (r *OrderRepository) transition(ctx context.Context, id string, to domain.OrderStatus, paidAt *time.Time) (bool, *domain.Order, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, paid_at = COALESCE($3, paid_at), updated_at = NOW()
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`, id, to, paidAt)
	if err != nil {
		return false, nil, &domain.PersistenceError{Op: "transition order to " + string(to), Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, nil, &domain.PersistenceError{Op: "transition order to " + string(to), Err: err}
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return false, nil, err
	}

	return rowsAffected == 1, order, nil
}
