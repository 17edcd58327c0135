package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind names a logical collection.
type Kind string

const (
	KindCategories Kind = "categories"
	KindRelations  Kind = "relations"
	KindSyncQueue  Kind = "sync_queue"
)

// Errors
var (
	ErrNotFound    = errors.New("record not found")
	ErrUnknownKind = errors.New("unknown record kind")
	ErrClosed      = errors.New("store is closed")
)

// Record is a stored entity. Data holds the JSON encoding of the
// domain object; UpdatedAt orders conflicting writes.
type Record struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is the capability set shared by every persistence backend.
// The category manager is written against this interface only, so a
// backend (SQLite, in-memory test double) can be substituted without
// touching manager logic.
type Store interface {
	GetAll(ctx context.Context, kind Kind) ([]Record, error)
	Get(ctx context.Context, kind Kind, id string) (*Record, error)
	Put(ctx context.Context, kind Kind, rec Record) error
	Delete(ctx context.Context, kind Kind, id string) error
	Query(ctx context.Context, kind Kind, pred func(Record) bool) ([]Record, error)
	Clear(ctx context.Context, kind Kind) error

	// Origin identifies this store handle among instances sharing
	// the same underlying data.
	Origin() string

	// Watch reports changes made through any handle on the shared
	// data, including this one. Consumers filter by Origin.
	Watch() (Watcher, error)

	Close() error
}

// Change notifies that records of a kind were modified.
type Change struct {
	Kind   Kind
	Origin string
}

// Watcher surfaces changes made by local instances sharing a store.
type Watcher interface {
	Changes() <-chan Change
	Close() error
}

func validKind(kind Kind) bool {
	switch kind {
	case KindCategories, KindRelations, KindSyncQueue:
		return true
	}
	return false
}
