package store

import (
	"context"

	"github.com/agentsh/saferm/pkg/types"
)

type RecordStore interface {
	AppendRecord(ctx context.Context, rec types.Record) error
	QueryRecords(ctx context.Context, q types.RecordQuery) ([]types.Record, error)
	Close() error
}
