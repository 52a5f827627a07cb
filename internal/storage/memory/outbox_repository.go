package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AndriyBorkovich/OnlineBookstore/internal/domain"
)

const defaultOutboxPull = 100

type outboxEntry struct {
	msg       domain.OutboxMessage
	status    domain.OutboxStatus
	attempts  int
	createdAt time.Time
	updatedAt time.Time
}

// OutboxRepository держит outbox в памяти. pending — очередь в порядке Enqueue,
// из неё запись уходит при первой смене статуса.
type OutboxRepository struct {
	mu      sync.RWMutex
	entries map[string]*outboxEntry
	pending []*outboxEntry
	now     func() time.Time
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		entries: make(map[string]*outboxEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[msg.ID]; ok {
		return domain.OutboxMessage{}, fmt.Errorf("%w: %s", domain.ErrOutboxMessageExists, msg.ID)
	}
	now := r.now()
	entry := &outboxEntry{msg: msg, status: domain.OutboxPending, createdAt: now, updatedAt: now}
	r.entries[msg.ID] = entry
	r.pending = append(r.pending, entry)
	return msg, nil
}

func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxPull
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(limit), nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.OutboxStats{PendingCount: len(r.pending)}
	if len(r.pending) > 0 {
		stats.OldestPendingAt = r.pending[0].createdAt
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, domain.OutboxSent)
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.settle(id, domain.OutboxFailed)
}

// AllPending — все pending-сообщения по порядку; для тестов.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(len(r.pending))
}

func (r *OutboxRepository) settle(id string, status domain.OutboxStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
	}
	if entry.status == domain.OutboxPending {
		r.pending = slices.DeleteFunc(r.pending, func(e *outboxEntry) bool { return e == entry })
	}
	entry.status = status
	entry.attempts++
	entry.updatedAt = r.now()
	return nil
}

func (r *OutboxRepository) snapshotLocked(limit int) []domain.OutboxMessage {
	n := min(limit, len(r.pending))
	msgs := make([]domain.OutboxMessage, n)
	for i, entry := range r.pending[:n] {
		msgs[i] = entry.msg
	}
	return msgs
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
