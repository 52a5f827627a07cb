package domain

import (
	"context"
	"fmt"
	"time"
)

// StockItem — складская запись книги: сколько экземпляров физически есть на складе.
// Резервы в TotalStock не учитываются, они живут в таблице резервов.
type StockItem struct {
	ID         string
	Title      string
	TotalStock int64
	UpdatedAt  time.Time
}

// Validate проверяет поля записи перед сохранением в каталог.
func (s StockItem) Validate() []error {
	var errs []error
	if s.ID == "" {
		errs = append(errs, ErrItemIDRequired)
	}
	if s.TotalStock < 0 {
		errs = append(errs, ErrStockNegative)
	}
	return errs
}

// Hold — временный резерв количества книги под заказ.
type Hold struct {
	ItemID    string
	OrderID   string
	// Token уникален для каждого резерва; служит ref списания в учёте.
	Token     string
	Qty       int64
	CreatedAt time.Time
	// ExpiresAt пустой, если TTL резервов отключён.
	ExpiresAt time.Time
}

// Expired сообщает, истёк ли резерв к моменту now.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.IsZero() && !now.Before(h.ExpiresAt)
}

// Availability — результат проверки наличия.
type Availability struct {
	ItemID       string
	IsAvailable  bool
	AvailableQty int64
	// Known ложен, если книги нет в каталоге.
	Known bool
}

// RejectReason — машинно-читаемая причина отказа в резерве.
type RejectReason string

const (
	RejectNone         RejectReason = ""
	RejectInvalid      RejectReason = "invalid_argument"
	RejectNotFound     RejectReason = "not_found"
	RejectInsufficient RejectReason = "insufficient_stock"
)

// ReserveResult — результат попытки резервирования. Отказ по бизнес-причине
// возвращается как Success=false, а не как ошибка.
type ReserveResult struct {
	Success      bool
	Message      string
	AvailableQty int64
	Reason       RejectReason
}

// Err переводит отказ в sentinel-ошибку; для успешного резерва возвращает nil.
func (r ReserveResult) Err() error {
	if r.Success {
		return nil
	}
	switch r.Reason {
	case RejectNotFound:
		return fmt.Errorf("%w: %s", ErrItemNotFound, r.Message)
	case RejectInsufficient:
		return fmt.Errorf("%w: %s", ErrInsufficientStock, r.Message)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidReserveRequest, r.Message)
	}
}

// StockLedger — персистентный складской учёт.
type StockLedger interface {
	// Get возвращает запись книги или ErrItemNotFound.
	Get(ctx context.Context, itemID string) (StockItem, error)
	// ApplyDelta атомарно меняет остаток на delta. ref делает списание идемпотентным:
	// повтор с тем же ref возвращает ErrDeltaAlreadyApplied без повторного изменения.
	// Если остаток ушёл бы в минус, возвращается ErrStockUnderflow и запись не меняется.
	ApplyDelta(ctx context.Context, itemID string, delta int64, ref string) (StockItem, error)
	// Upsert создаёт или перезаписывает запись каталога.
	Upsert(ctx context.Context, item StockItem) (StockItem, error)
}

// CacheInvalidator сбрасывает закешированное представление книги после изменения остатка.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, itemID string) error
}

// StockReader отдаёт сведения об остатке (через кеш или напрямую из учёта).
type StockReader interface {
	StockInfo(ctx context.Context, itemID string) (StockItem, error)
}
