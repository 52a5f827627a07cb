package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

const orderColumns = `id, customer_id, status, version, created_at, updated_at`

// rowScanner покрывает *sql.Row и *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository хранит заказы в orders, позиции в order_items.
// Позиции пишутся и читаются пачкой, одним запросом на заказ или страницу.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, order.CustomerID, string(order.Status), order.Version, order.CreatedAt, order.UpdatedAt)
		switch {
		case isUniqueViolation(err):
			return domain.ErrOrderVersionConflict
		case err != nil:
			return fmt.Errorf("insert order %s: %w", order.ID, err)
		case len(order.Items) == 0:
			return nil
		}

		cols := splitItems(order.Items)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, item_id, qty, hold_state, created_at)
			SELECT i.id, $1, i.item_id, i.qty, i.hold_state, i.created_at
			FROM unnest($2::text[], $3::text[], $4::bigint[], $5::text[], $6::timestamptz[])
			     AS i(id, item_id, qty, hold_state, created_at)`,
			order.ID, cols.ids, cols.itemIDs, cols.qtys, cols.states, cols.createdAt)
		if err != nil {
			return fmt.Errorf("insert items of order %s: %w", order.ID, err)
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("select order %s: %w", id, err)
	}

	items, err := r.itemsOf(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

// ListByCustomer отдаёт заказы от новых к старым; limit<=0 снимает ограничение.
func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{customerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil || len(orders) == 0 {
		return orders, err
	}

	ids := make([]string, len(orders))
	for i, order := range orders {
		ids[i] = order.ID
	}
	items, err := r.itemsOf(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// Save пишет статус и состояния резервов, если в базе та же версия, что у order.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var version int64
		err := tx.QueryRowContext(ctx, `
			UPDATE orders SET status = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4
			RETURNING version`,
			string(order.Status), order.UpdatedAt, order.ID, order.Version).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return r.missingOrConflict(ctx, tx, order.ID)
		}
		if err != nil {
			return fmt.Errorf("update order %s: %w", order.ID, err)
		}
		if len(order.Items) == 0 {
			return nil
		}

		cols := splitItems(order.Items)
		if _, err := tx.ExecContext(ctx, `
			UPDATE order_items AS oi SET hold_state = u.hold_state
			FROM unnest($2::text[], $3::text[]) AS u(id, hold_state)
			WHERE oi.order_id = $1 AND oi.id = u.id`,
			order.ID, cols.ids, cols.states); err != nil {
			return fmt.Errorf("update items of order %s: %w", order.ID, err)
		}
		return nil
	})
}

func (r *orderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected by delete of order %s: %w", id, err)
	} else if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) missingOrConflict(ctx context.Context, tx *sql.Tx, id string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order %s: %w", id, err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// itemsOf читает позиции нескольких заказов одним запросом, группируя по order_id.
func (r *orderRepository) itemsOf(ctx context.Context, orderIDs ...string) (map[string][]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, item_id, qty, hold_state, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, created_at, id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.OrderItem, len(orderIDs))
	for _, id := range orderIDs {
		items[id] = []domain.OrderItem{}
	}
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
			state   string
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ItemID, &item.Qty, &state, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.HoldState = domain.HoldState(state)
		item.CreatedAt = item.CreatedAt.UTC()
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(&order.ID, &order.CustomerID, &status, &order.Version, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

// itemColumns — позиции заказа по столбцам, для передачи массивами в unnest.
type itemColumns struct {
	ids       []string
	itemIDs   []string
	qtys      []int64
	states    []string
	createdAt []time.Time
}

func splitItems(items []domain.OrderItem) itemColumns {
	cols := itemColumns{
		ids:       make([]string, len(items)),
		itemIDs:   make([]string, len(items)),
		qtys:      make([]int64, len(items)),
		states:    make([]string, len(items)),
		createdAt: make([]time.Time, len(items)),
	}
	for i, item := range items {
		cols.ids[i] = item.ID
		cols.itemIDs[i] = item.ItemID
		cols.qtys[i] = item.Qty
		cols.states[i] = string(item.HoldState)
		cols.createdAt[i] = item.CreatedAt
	}
	return cols
}

var _ domain.OrderRepository = (*orderRepository)(nil)
