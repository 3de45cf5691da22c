package memory

import (
	"context"
	"sync"
	"time"

	"github.com/FahadIshaq/scanback-backend/internal/domain/contact"
	"github.com/FahadIshaq/scanback-backend/internal/repository"
)

// PendingStore keeps pending contact updates in a slice arena indexed by code.
// Freed slots are reused so long-running processes do not grow the arena.
type PendingStore struct {
	mu     sync.Mutex
	arena  []contact.PendingUpdate
	byCode map[string]int
	free   []int
}

// NewPendingStore creates an empty store.
func NewPendingStore() *PendingStore {
	return &PendingStore{byCode: make(map[string]int)}
}

func (s *PendingStore) Put(ctx context.Context, p contact.PendingUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.byCode[p.Code]; ok {
		s.arena[idx] = p
		return nil
	}
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		s.arena[idx] = p
		s.byCode[p.Code] = idx
		return nil
	}
	s.arena = append(s.arena, p)
	s.byCode[p.Code] = len(s.arena) - 1
	return nil
}

func (s *PendingStore) Get(ctx context.Context, code string) (*contact.PendingUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p := s.arena[idx]
	return &p, nil
}

func (s *PendingStore) Consume(ctx context.Context, code, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byCode[code]
	if !ok || s.arena[idx].ID != id {
		return repository.ErrNotFound
	}
	s.release(code, idx)
	return nil
}

func (s *PendingStore) IncrementAttempts(ctx context.Context, code, id string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byCode[code]
	if !ok || s.arena[idx].ID != id {
		return 0, repository.ErrNotFound
	}
	s.arena[idx].Attempts++
	return s.arena[idx].Attempts, nil
}

func (s *PendingStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for code, idx := range s.byCode {
		if s.arena[idx].Expired(now) {
			s.release(code, idx)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many pending updates are held.
func (s *PendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byCode)
}

func (s *PendingStore) release(code string, idx int) {
	delete(s.byCode, code)
	s.arena[idx] = contact.PendingUpdate{}
	s.free = append(s.free, idx)
}
