package models

import (
	"encoding/json"
	"time"
)

// SyncOp is the kind of remote mutation a queue item carries.
type SyncOp string

const (
	OpUpsert SyncOp = "upsert"
	OpDelete SyncOp = "delete"
)

// SyncTarget names the remote collection a queue item applies to.
type SyncTarget string

const (
	TargetCategories SyncTarget = "categories"
	TargetRelations  SyncTarget = "relations"
)

// SyncItem is a pending remote mutation. Items are applied strictly in
// id order within one target and removed only after the remote
// acknowledges the operation.
type SyncItem struct {
	ID         string          `json:"id"`
	Op         SyncOp          `json:"op"`
	Target     SyncTarget      `json:"target"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
}

// Validate checks queue item fields.
func (i *SyncItem) Validate() error {
	switch i.Op {
	case OpUpsert, OpDelete:
	default:
		return &ValidationError{Field: "op", Reason: "unknown operation " + string(i.Op)}
	}
	switch i.Target {
	case TargetCategories, TargetRelations:
	default:
		return &ValidationError{Field: "target", Reason: "unknown target " + string(i.Target)}
	}
	return nil
}

// SyncStatus is the advisory drain state surfaced to callers. A
// degraded status never implies data loss; the local copy stays
// authoritative until the queue empties.
type SyncStatus struct {
	Pending   int       `json:"pending"`
	Degraded  bool      `json:"degraded"`
	LastError string    `json:"last_error,omitempty"`
	LastDrain time.Time `json:"last_drain,omitempty"`
}
