// Package syncq implements the durable queue of pending remote
// mutations and the drainer that replays them.
package syncq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/store"
)

// Queue is an ordered, durable list of pending mutations layered on
// the local store's sync_queue collection. Item ids are zero-padded
// monotonic counters so lexicographic store order equals enqueue
// order.
type Queue struct {
	store  store.Store
	logger *events.Logger

	mu      sync.Mutex
	nextSeq int64
}

// NewQueue opens the queue, recovering the counter from any items
// that survived a restart.
func NewQueue(ctx context.Context, st store.Store, logger *events.Logger) (*Queue, error) {
	q := &Queue{
		store:   st,
		logger:  logger.WithField("component", "sync_queue"),
		nextSeq: 1,
	}

	records, err := st.GetAll(ctx, store.KindSyncQueue)
	if err != nil {
		return nil, fmt.Errorf("load sync queue: %w", err)
	}

	for _, rec := range records {
		if seq, err := strconv.ParseInt(rec.ID, 10, 64); err == nil && seq >= q.nextSeq {
			q.nextSeq = seq + 1
		}
	}

	return q, nil
}

func itemID(seq int64) string {
	return fmt.Sprintf("%012d", seq)
}

// Enqueue appends a pending mutation.
func (q *Queue) Enqueue(ctx context.Context, op models.SyncOp, target models.SyncTarget, payload json.RawMessage) (*models.SyncItem, error) {
	q.mu.Lock()
	seq := q.nextSeq
	q.nextSeq++
	q.mu.Unlock()

	item := models.SyncItem{
		ID:         itemID(seq),
		Op:         op,
		Target:     target,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(&item)
	if err != nil {
		return nil, fmt.Errorf("marshal queue item: %w", err)
	}

	rec := store.Record{ID: item.ID, Data: data, UpdatedAt: item.EnqueuedAt}
	if err := q.store.Put(ctx, store.KindSyncQueue, rec); err != nil {
		return nil, fmt.Errorf("persist queue item: %w", err)
	}

	q.logger.WithFields(map[string]interface{}{
		"id":     item.ID,
		"op":     string(item.Op),
		"target": string(item.Target),
	}).Debug("Enqueued mutation")

	return &item, nil
}

// Pending returns all queued items in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]models.SyncItem, error) {
	records, err := q.store.GetAll(ctx, store.KindSyncQueue)
	if err != nil {
		return nil, fmt.Errorf("load sync queue: %w", err)
	}

	items := make([]models.SyncItem, 0, len(records))
	for _, rec := range records {
		var item models.SyncItem
		if err := json.Unmarshal(rec.Data, &item); err != nil {
			return nil, fmt.Errorf("decode queue item %s: %w", rec.ID, err)
		}
		items = append(items, item)
	}

	return items, nil
}

// Ack removes an item after the remote acknowledged it.
func (q *Queue) Ack(ctx context.Context, id string) error {
	if err := q.store.Delete(ctx, store.KindSyncQueue, id); err != nil {
		return fmt.Errorf("ack queue item %s: %w", id, err)
	}
	return nil
}

// Bump persists an incremented attempt counter for a failed item.
// The item stays queued; exhausted retries surface as a degraded
// status, never as a dropped mutation.
func (q *Queue) Bump(ctx context.Context, item *models.SyncItem) error {
	item.Attempts++

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}

	rec := store.Record{ID: item.ID, Data: data, UpdatedAt: time.Now().UTC()}
	if err := q.store.Put(ctx, store.KindSyncQueue, rec); err != nil {
		return fmt.Errorf("bump queue item %s: %w", item.ID, err)
	}
	return nil
}

// HasPending reports whether any queued item targets the given
// store. The write path uses this to keep per-target ordering: a
// direct remote write must not overtake queued mutations.
func (q *Queue) HasPending(ctx context.Context, target models.SyncTarget) (bool, error) {
	items, err := q.Pending(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.Target == target {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of pending items.
func (q *Queue) Len(ctx context.Context) (int, error) {
	records, err := q.store.GetAll(ctx, store.KindSyncQueue)
	if err != nil {
		return 0, fmt.Errorf("load sync queue: %w", err)
	}
	return len(records), nil
}

// Clear drops every pending item. Only reset uses this.
func (q *Queue) Clear(ctx context.Context) error {
	return q.store.Clear(ctx, store.KindSyncQueue)
}
