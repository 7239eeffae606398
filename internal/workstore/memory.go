package workstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"throttlepipe/internal/engine"
)

// MemoryStore is a mutex-guarded, in-process Store used by tests and the
// demo command. Claim mirrors the SKIP LOCKED semantics of the
// PostgresStore's atomic UPDATE ... RETURNING query without needing a
// database.
type MemoryStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*engine.WorkItem
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID]*engine.WorkItem)}
}

func (s *MemoryStore) Enqueue(ctx context.Context, payload []byte) (*engine.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	item := &engine.WorkItem{
		ID:                    uuid.New(),
		Payload:               payload,
		Status:                engine.StatusPending,
		EarliestNextAttemptAt: now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.items[item.ID] = item
	return item, nil
}

func (s *MemoryStore) Claim(ctx context.Context, limit int) ([]*engine.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var claimed []*engine.WorkItem
	for _, item := range s.items {
		if len(claimed) >= limit {
			break
		}
		eligible := item.Status == engine.StatusPending ||
			(item.Status == engine.StatusFailed && !item.EarliestNextAttemptAt.After(now))
		if !eligible {
			continue
		}
		item.Status = engine.StatusInFlight
		item.UpdatedAt = now
		cp := *item
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (s *MemoryStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("work item not found: %s", id)
	}
	item.Status = engine.StatusSent
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ScheduleRetry(ctx context.Context, id uuid.UUID, attempt int, delaySeconds float64, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("work item not found: %s", id)
	}
	item.Status = engine.StatusFailed
	item.Attempts = attempt
	item.EarliestNextAttemptAt = time.Now().Add(time.Duration(delaySeconds * float64(time.Second)))
	item.LastError = lastErr
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("work item not found: %s", id)
	}
	item.Status = engine.StatusDeadLettered
	item.LastError = reason
	item.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AllTerminal(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.Status != engine.StatusSent && item.Status != engine.StatusDeadLettered {
			return false, nil
		}
	}
	return true, nil
}

func (s *MemoryStore) Counts(ctx context.Context) (StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c StatusCounts
	for _, item := range s.items {
		switch item.Status {
		case engine.StatusPending:
			c.Pending++
		case engine.StatusInFlight:
			c.InFlight++
		case engine.StatusSent:
			c.Sent++
		case engine.StatusFailed:
			c.Failed++
		case engine.StatusDeadLettered:
			c.DeadLettered++
		}
	}
	return c, nil
}
