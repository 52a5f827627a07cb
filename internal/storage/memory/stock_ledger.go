package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// StockLedger — in-memory складской учёт для локального запуска и тестов.
type StockLedger struct {
	mu      sync.RWMutex
	items   map[string]domain.StockItem
	applied map[string]struct{}
}

// NewStockLedger создаёт учёт, заполненный переданными книгами.
func NewStockLedger(seed ...domain.StockItem) *StockLedger {
	l := &StockLedger{
		items:   make(map[string]domain.StockItem, len(seed)),
		applied: make(map[string]struct{}),
	}
	now := time.Now().UTC()
	for _, item := range seed {
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = now
		}
		l.items[item.ID] = item
	}
	return l
}

// Get возвращает запись книги или ErrItemNotFound.
func (l *StockLedger) Get(ctx context.Context, itemID string) (domain.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockItem{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	item, ok := l.items[itemID]
	if !ok {
		return domain.StockItem{}, domain.ErrItemNotFound
	}
	return item, nil
}

// ApplyDelta меняет остаток. Непустой ref делает изменение однократным.
func (l *StockLedger) ApplyDelta(ctx context.Context, itemID string, delta int64, ref string) (domain.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockItem{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[itemID]
	if !ok {
		return domain.StockItem{}, domain.ErrItemNotFound
	}

	key := itemID + "\x00" + ref
	if ref != "" {
		if _, done := l.applied[key]; done {
			return item, domain.ErrDeltaAlreadyApplied
		}
	}
	if item.TotalStock+delta < 0 {
		return item, fmt.Errorf("%w: stock %d, delta %d", domain.ErrStockUnderflow, item.TotalStock, delta)
	}

	item.TotalStock += delta
	item.UpdatedAt = time.Now().UTC()
	l.items[itemID] = item
	if ref != "" {
		l.applied[key] = struct{}{}
	}
	return item, nil
}

// Upsert создаёт или перезаписывает запись книги.
func (l *StockLedger) Upsert(ctx context.Context, item domain.StockItem) (domain.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return domain.StockItem{}, err
	}
	if errs := item.Validate(); len(errs) > 0 {
		return domain.StockItem{}, errs[0]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if item.Title == "" {
		item.Title = l.items[item.ID].Title
	}
	item.UpdatedAt = time.Now().UTC()
	l.items[item.ID] = item
	return item, nil
}

var _ domain.StockLedger = (*StockLedger)(nil)
