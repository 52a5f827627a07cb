package cache

import (
	"context"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// Noop — заглушка инвалидации, когда кеш не настроен.
type Noop struct{}

func (Noop) Invalidate(context.Context, string) error { return nil }

// Direct читает сведения об остатке прямо из учёта, без кеша.
type Direct struct {
	Ledger domain.StockLedger
}

func (d Direct) StockInfo(ctx context.Context, itemID string) (domain.StockItem, error) {
	return d.Ledger.Get(ctx, itemID)
}

var (
	_ domain.CacheInvalidator = Noop{}
	_ domain.StockReader      = Direct{}
)
