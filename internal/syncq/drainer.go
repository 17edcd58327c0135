package syncq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mdelaney/catsync/internal/config"
	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/remote"
	"github.com/mdelaney/catsync/internal/store"
)

// drainTargets fixes the pass order. Categories drain before
// relations so a relation never reaches the remote ahead of the
// category it references.
var drainTargets = []models.SyncTarget{models.TargetCategories, models.TargetRelations}

// Drainer replays queued mutations against the remote. Draining is
// at-least-once: the remote's upsert/delete semantics make replays
// no-ops, so a crash between remote ack and local dequeue is safe.
type Drainer struct {
	queue  *Queue
	remote remote.Remote
	logger *events.Logger

	interval    time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	kick chan struct{}

	mu       sync.Mutex
	draining bool
	failures int
	status   models.SyncStatus
}

// NewDrainer creates a drainer.
func NewDrainer(queue *Queue, rem remote.Remote, cfg *config.SyncConfig, logger *events.Logger) *Drainer {
	return &Drainer{
		queue:       queue,
		remote:      rem,
		logger:      logger.WithField("component", "drainer"),
		interval:    cfg.DrainInterval,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		kick:        make(chan struct{}, 1),
	}
}

// Kick requests a drain without blocking. Used for manual sync.
func (d *Drainer) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// Run drains on connectivity signals, on the periodic ticker, and on
// manual kicks, until the context ends. After a failed round the
// next automatic attempt waits an exponentially growing delay, capped
// so a permanently broken remote degrades to offline rather than
// busy-looping.
func (d *Drainer) Run(ctx context.Context, signals <-chan remote.Signal) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var retry <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:

		case <-d.kick:

		case <-retry:
			retry = nil

		case sig, ok := <-signals:
			if !ok {
				signals = nil
				continue
			}
			if !sig.Online {
				continue
			}
		}

		if err := d.Drain(ctx); err != nil {
			retry = time.After(d.nextBackoff())
		} else {
			d.resetBackoff()
			retry = nil
		}
	}
}

// Drain replays pending items in enqueue order per target. Only one
// drain runs at a time; concurrent calls return immediately.
func (d *Drainer) Drain(ctx context.Context) error {
	if d.remote == nil {
		// Offline-only configuration: items accumulate until a
		// remote is configured.
		return nil
	}

	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return nil
	}
	d.draining = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.draining = false
		d.mu.Unlock()
	}()

	items, err := d.queue.Pending(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		d.finishRound(ctx, nil, false)
		return nil
	}

	d.logger.WithField("pending", len(items)).Debug("Draining sync queue")

	var firstErr error
	exhausted := false

	for _, target := range drainTargets {
		for i := range items {
			item := &items[i]
			if item.Target != target {
				continue
			}

			if err := d.apply(ctx, item); err != nil {
				if bumpErr := d.queue.Bump(ctx, item); bumpErr != nil {
					d.logger.WithError(bumpErr).Error("Failed to record attempt")
				}
				if item.Attempts >= d.maxAttempts {
					exhausted = true
				}
				if firstErr == nil {
					firstErr = err
				}

				d.logger.WithFields(map[string]interface{}{
					"id":       item.ID,
					"attempts": item.Attempts,
				}).WithError(err).Warn("Drain stopped for target")

				// Preserve per-target ordering: leave the rest of
				// this target queued.
				break
			}

			if err := d.queue.Ack(ctx, item.ID); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				break
			}
		}
	}

	d.finishRound(ctx, firstErr, exhausted)
	return firstErr
}

// apply performs one queued operation against the remote.
func (d *Drainer) apply(ctx context.Context, item *models.SyncItem) error {
	kind := store.Kind(item.Target)

	switch item.Op {
	case models.OpUpsert:
		var rec store.Record
		if err := json.Unmarshal(item.Payload, &rec); err != nil {
			return fmt.Errorf("decode upsert payload: %w", err)
		}
		return d.remote.Upsert(ctx, kind, []store.Record{rec})

	case models.OpDelete:
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return fmt.Errorf("decode delete payload: %w", err)
		}
		return d.remote.Delete(ctx, kind, payload.ID)

	default:
		return fmt.Errorf("unknown queue op %q", item.Op)
	}
}

func (d *Drainer) finishRound(ctx context.Context, err error, exhausted bool) {
	pending, lenErr := d.queue.Len(ctx)
	if lenErr != nil {
		d.logger.WithError(lenErr).Warn("Failed to count pending items")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.status.Pending = pending
	d.status.LastDrain = time.Now().UTC()
	if err != nil {
		d.status.LastError = err.Error()
		d.failures++
	} else {
		d.status.LastError = ""
	}
	d.status.Degraded = exhausted && pending > 0
	if d.status.Degraded {
		d.logger.WithField("pending", pending).Warn("Sync degraded; local copy remains authoritative")
	}
}

func (d *Drainer) nextBackoff() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	delay := d.backoffBase
	for i := 1; i < d.failures; i++ {
		delay *= 2
		if delay >= d.backoffCap {
			return d.backoffCap
		}
	}
	return delay
}

func (d *Drainer) resetBackoff() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = 0
}

// Status returns the advisory drain state.
func (d *Drainer) Status(ctx context.Context) models.SyncStatus {
	pending, err := d.queue.Len(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.status
	if err == nil {
		status.Pending = pending
	}
	return status
}
