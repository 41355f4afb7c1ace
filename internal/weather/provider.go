package weather

import (
	"context"
	"time"

	"github.com/i474232898/mesonet-data-aggregation/internal/mesonet"
)

// Provider abstracts the Mesonet API. *mesonet.Client satisfies it.
type Provider interface {
	Get(ctx context.Context, service mesonet.Service, params mesonet.Params) (*mesonet.Response, error)
}

// Store is the contract the in-memory and SQLite stores must satisfy.
type Store interface {
	SaveSnapshot(snapshot Snapshot) error
	GetLatest(stid string) (Snapshot, error)
	GetRange(stid string, from, to time.Time) ([]Snapshot, error)
}
