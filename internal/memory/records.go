// Package memory holds in-process stores used in development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/FahadIshaq/scanback-backend/internal/domain/tag"
	"github.com/FahadIshaq/scanback-backend/internal/repository"
)

// RecordStore is a tag.RecordStore backed by a map.
type RecordStore struct {
	mu     sync.RWMutex
	byCode map[string]*tag.Record
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{byCode: make(map[string]*tag.Record)}
}

func (s *RecordStore) FindByCode(ctx context.Context, code string) (*tag.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *RecordStore) FindPublicByCode(ctx context.Context, code string) (*tag.PublicView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return tag.NewPublicView(rec), nil
}

func (s *RecordStore) Insert(ctx context.Context, rec *tag.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byCode[rec.Code]; exists {
		return repository.ErrUniqueViolation
	}
	s.byCode[rec.Code] = rec.Clone()
	return nil
}

func (s *RecordStore) UpdateByCode(ctx context.Context, code string, m tag.Mutation) (*tag.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.Precondition != nil {
		if err := m.Precondition(rec.Clone()); err != nil {
			return nil, err
		}
	}
	rec.Apply(m)
	return rec.Clone(), nil
}

func (s *RecordStore) List(ctx context.Context, opts tag.ListOptions) ([]tag.Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]tag.Summary, 0)
	for _, rec := range s.byCode {
		if opts.Owner != "" && rec.Owner != opts.Owner {
			continue
		}
		if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, rec.Kind) {
			continue
		}
		if len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, rec.Status) {
			continue
		}
		if opts.Activated != nil && rec.IsActivated != *opts.Activated {
			continue
		}
		out = append(out, rec.Summarize())
	}
	s.mu.RUnlock()

	// Newest first, code as tie-breaker for stable pages.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []tag.Summary{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}
