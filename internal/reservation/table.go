package reservation

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

// Table — таблица активных резервов процесса: книга -> резервы в порядке вставки.
// Запись книги создаётся при первом резерве и удаляется вместе с последним.
//
// Помимо резервов таблица хранит «списываемые» количества: резерв уже снят,
// но запись в складской учёт ещё не подтверждена. Они хранятся по токену резерва
// и учитываются в Held, пока Engine не завершит списание.
//
// Собственный мьютекс защищает только память; атомарность проверки и вставки
// обеспечивает критическая секция Engine.
type Table struct {
	mu       sync.RWMutex
	holds    map[string][]domain.Hold
	settling map[string]map[string]int64
}

// NewTable создаёт пустую таблицу резервов.
func NewTable() *Table {
	return &Table{
		holds:    make(map[string][]domain.Hold),
		settling: make(map[string]map[string]int64),
	}
}

// Held возвращает суммарно удерживаемое количество книги.
// Резерв заказа excludeOrderID (если не пустой) в сумму не входит.
func (t *Table) Held(itemID, excludeOrderID string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sum int64
	for _, h := range t.holds[itemID] {
		if excludeOrderID != "" && h.OrderID == excludeOrderID {
			continue
		}
		sum += h.Qty
	}
	for _, qty := range t.settling[itemID] {
		sum += qty
	}
	return sum
}

// Get возвращает резерв пары (книга, заказ).
func (t *Table) Get(itemID, orderID string) (domain.Hold, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, h := range t.holds[itemID] {
		if h.OrderID == orderID {
			return h, true
		}
	}
	return domain.Hold{}, false
}

// Put вставляет резерв или перезаписывает существующий для той же пары,
// сохраняя его позицию. Возвращает true, если резерв был перезаписан.
// Пустой Token при вставке заменяется новым, при перезаписи берётся прежний.
func (t *Table) Put(hold domain.Hold) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.holds[hold.ItemID]
	for i := range list {
		if list[i].OrderID == hold.OrderID {
			if hold.Token == "" {
				hold.Token = list[i].Token
			}
			list[i] = hold
			return true
		}
	}
	if hold.Token == "" {
		hold.Token = uuid.NewString()
	}
	t.holds[hold.ItemID] = append(list, hold)
	return false
}

// Remove удаляет резерв пары и возвращает его.
func (t *Table) Remove(itemID, orderID string) (domain.Hold, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.removeLocked(itemID, orderID)
}

func (t *Table) removeLocked(itemID, orderID string) (domain.Hold, bool) {
	list := t.holds[itemID]
	for i, h := range list {
		if h.OrderID != orderID {
			continue
		}
		if len(list) == 1 {
			delete(t.holds, itemID)
		} else {
			t.holds[itemID] = append(list[:i:i], list[i+1:]...)
		}
		return h, true
	}
	return domain.Hold{}, false
}

// BeginSettle атомарно снимает резерв и переносит его количество в списываемые.
func (t *Table) BeginSettle(itemID, orderID string) (domain.Hold, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hold, ok := t.removeLocked(itemID, orderID)
	if !ok {
		return domain.Hold{}, false
	}
	byToken, ok := t.settling[itemID]
	if !ok {
		byToken = make(map[string]int64)
		t.settling[itemID] = byToken
	}
	byToken[hold.Token] = hold.Qty
	return hold, true
}

// EndSettle завершает списание резерва token: количество больше не удерживается.
func (t *Table) EndSettle(itemID, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endSettleLocked(itemID, token)
}

func (t *Table) endSettleLocked(itemID, token string) {
	byToken := t.settling[itemID]
	delete(byToken, token)
	if len(byToken) == 0 {
		delete(t.settling, itemID)
	}
}

// AbortSettle возвращает резерв в таблицу после неудачной записи в учёт.
// Если за это время заказ успел взять новый резерв на ту же книгу, новый остаётся.
func (t *Table) AbortSettle(hold domain.Hold) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endSettleLocked(hold.ItemID, hold.Token)
	for _, h := range t.holds[hold.ItemID] {
		if h.OrderID == hold.OrderID {
			return
		}
	}
	t.holds[hold.ItemID] = append(t.holds[hold.ItemID], hold)
}

// Holds возвращает копию резервов книги в порядке вставки.
func (t *Table) Holds(itemID string) []domain.Hold {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]domain.Hold(nil), t.holds[itemID]...)
}

// Snapshot возвращает удерживаемое количество по каждой книге (включая списываемые).
func (t *Table) Snapshot() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]int64, len(t.holds))
	for itemID, list := range t.holds {
		for _, h := range list {
			result[itemID] += h.Qty
		}
	}
	for itemID, byToken := range t.settling {
		for _, qty := range byToken {
			result[itemID] += qty
		}
	}
	return result
}

// Len возвращает число активных резервов.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, list := range t.holds {
		n += len(list)
	}
	return n
}

// Expired возвращает просроченные к моменту now резервы, старые первыми.
func (t *Table) Expired(now time.Time) []domain.Hold {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []domain.Hold
	for _, list := range t.holds {
		for _, h := range list {
			if h.Expired(now) {
				result = append(result, h)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})
	return result
}
