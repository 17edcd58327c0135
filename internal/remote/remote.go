package remote

import (
	"context"

	"github.com/mdelaney/catsync/internal/store"
)

// Remote is the networked store contract. Any backend (HTTP, RPC,
// SQL gateway) satisfying it is pluggable; the manager and drainer
// never special-case the implementation.
//
// Draining is at-least-once, so every operation must be idempotent:
// Upsert replaces by id and Delete of a missing id succeeds.
type Remote interface {
	Select(ctx context.Context, kind store.Kind) ([]store.Record, error)
	Insert(ctx context.Context, kind store.Kind, rec store.Record) (*store.Record, error)
	Update(ctx context.Context, kind store.Kind, id string, rec store.Record) (*store.Record, error)
	Delete(ctx context.Context, kind store.Kind, id string) error
	Upsert(ctx context.Context, kind store.Kind, recs []store.Record) error

	// Ping reports reachability without mutating anything.
	Ping(ctx context.Context) error

	Close() error
}
