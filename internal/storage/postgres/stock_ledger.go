package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// stockLedger хранит остатки в stock_items; применённые изменения
// фиксируются в stock_deltas по ключу (книга, ref).
type stockLedger struct {
	db *sql.DB
}

// NewStockLedger создаёт PostgreSQL-реализацию складского учёта.
func NewStockLedger(store *Store) domain.StockLedger {
	return &stockLedger{db: store.DB()}
}

func (l *stockLedger) Get(ctx context.Context, itemID string) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item, err := scanStockItem(l.db.QueryRowContext(ctx, `
		SELECT id, title, total_stock, updated_at
		FROM stock_items
		WHERE id = $1
	`, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StockItem{}, domain.ErrItemNotFound
		}
		return domain.StockItem{}, fmt.Errorf("select stock item: %w", err)
	}
	return item, nil
}

// ApplyDelta меняет остаток в одной транзакции с записью ref.
// Условие в UPDATE не даёт остатку уйти ниже нуля даже при гонке с другим процессом.
func (l *stockLedger) ApplyDelta(ctx context.Context, itemID string, delta int64, ref string) (domain.StockItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var item domain.StockItem
	err := withTx(ctx, l.db, func(tx *sql.Tx) error {
		if ref != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO stock_deltas (item_id, ref, delta, applied_at)
				VALUES ($1,$2,$3,$4)
			`, itemID, ref, delta, time.Now().UTC()); err != nil {
				switch pgErrorCode(err) {
				case pgUniqueViolation:
					return domain.ErrDeltaAlreadyApplied
				case pgForeignKeyViolation:
					return domain.ErrItemNotFound
				}
				return fmt.Errorf("record stock delta: %w", err)
			}
		}

		var err error
		item, err = scanStockItem(tx.QueryRowContext(ctx, `
			UPDATE stock_items
			SET total_stock = total_stock + $2,
			    updated_at = $3
			WHERE id = $1
			  AND total_stock + $2 >= 0
			RETURNING id, title, total_stock, updated_at
		`, itemID, delta, time.Now().UTC()))
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update stock: %w", err)
		}

		// Строка не обновлена: книги нет или остатка не хватает.
		current, getErr := scanStockItem(tx.QueryRowContext(ctx, `
			SELECT id, title, total_stock, updated_at FROM stock_items WHERE id = $1
		`, itemID))
		if errors.Is(getErr, sql.ErrNoRows) {
			return domain.ErrItemNotFound
		}
		if getErr != nil {
			return fmt.Errorf("select stock after failed update: %w", getErr)
		}
		item = current
		return fmt.Errorf("%w: stock %d, delta %d", domain.ErrStockUnderflow, current.TotalStock, delta)
	})
	if errors.Is(err, domain.ErrDeltaAlreadyApplied) {
		current, getErr := l.Get(ctx, itemID)
		if getErr == nil {
			item = current
		}
	}
	return item, err
}

func (l *stockLedger) Upsert(ctx context.Context, item domain.StockItem) (domain.StockItem, error) {
	if errs := item.Validate(); len(errs) > 0 {
		return domain.StockItem{}, errs[0]
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	saved, err := scanStockItem(l.db.QueryRowContext(ctx, `
		INSERT INTO stock_items (id, title, total_stock, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE
		SET title = COALESCE(NULLIF(EXCLUDED.title, ''), stock_items.title),
		    total_stock = EXCLUDED.total_stock,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, title, total_stock, updated_at
	`, item.ID, item.Title, item.TotalStock, time.Now().UTC()))
	if err != nil {
		if pgErrorCode(err) == pgCheckViolation {
			return domain.StockItem{}, domain.ErrStockNegative
		}
		return domain.StockItem{}, fmt.Errorf("upsert stock item: %w", err)
	}
	return saved, nil
}

func scanStockItem(row *sql.Row) (domain.StockItem, error) {
	var item domain.StockItem
	if err := row.Scan(&item.ID, &item.Title, &item.TotalStock, &item.UpdatedAt); err != nil {
		return domain.StockItem{}, err
	}
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

var _ domain.StockLedger = (*stockLedger)(nil)
