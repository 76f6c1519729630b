package composite

import (
	"context"

	"github.com/agentsh/saferm/internal/store"
	"github.com/agentsh/saferm/pkg/types"
)

// Store fans records out to a primary store and any number of mirrors.
// Queries are answered by the first store that can answer them, primary
// first.
type Store struct {
	primary store.RecordStore
	others  []store.RecordStore
}

func New(primary store.RecordStore, others ...store.RecordStore) *Store {
	return &Store{primary: primary, others: others}
}

func (s *Store) AppendRecord(ctx context.Context, rec types.Record) error {
	var firstErr error
	if err := s.primary.AppendRecord(ctx, rec); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, o := range s.others {
		if err := o.AppendRecord(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// QueryRecords prefers an indexed mirror when one is attached.
func (s *Store) QueryRecords(ctx context.Context, q types.RecordQuery) ([]types.Record, error) {
	for _, o := range s.others {
		if recs, err := o.QueryRecords(ctx, q); err == nil {
			return recs, nil
		}
	}
	return s.primary.QueryRecords(ctx, q)
}

func (s *Store) Close() error {
	var firstErr error
	if err := s.primary.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, o := range s.others {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
