package syncq_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdelaney/catsync/internal/config"
	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/remote"
	"github.com/mdelaney/catsync/internal/store"
	"github.com/mdelaney/catsync/internal/syncq"
)

func drainConfig() *config.SyncConfig {
	return &config.SyncConfig{
		DrainInterval: time.Hour, // periodic drains off in tests
		MaxAttempts:   3,
		BackoffBase:   time.Millisecond,
		BackoffCap:    10 * time.Millisecond,
	}
}

func upsertPayload(t *testing.T, id, name string) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(models.Category{ID: id, Name: name})
	require.NoError(t, err)

	rec := store.Record{ID: id, Data: data, UpdatedAt: time.Now().UTC()}
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	return payload
}

func deletePayload(t *testing.T, id string) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"id": id})
	require.NoError(t, err)
	return payload
}

func TestDrainEmptiesQueue(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	mock := remote.NewMockRemote()

	_, err := q.Enqueue(ctx, models.OpUpsert, models.TargetCategories, upsertPayload(t, "c1", "Research"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.OpUpsert, models.TargetRelations, upsertPayload(t, "f1\x1fc1", "ignored"))
	require.NoError(t, err)

	d := syncq.NewDrainer(q, mock, drainConfig(), testLogger())
	require.NoError(t, d.Drain(ctx))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Contains(t, mock.Records[store.KindCategories], "c1")
	assert.Contains(t, mock.Records[store.KindRelations], "f1\x1fc1")

	status := d.Status(ctx)
	assert.False(t, status.Degraded)
	assert.Empty(t, status.LastError)
}

func TestDrainDeletes(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	mock := remote.NewMockRemote()
	mock.Records[store.KindCategories]["c1"] = store.Record{ID: "c1"}

	_, err := q.Enqueue(ctx, models.OpDelete, models.TargetCategories, deletePayload(t, "c1"))
	require.NoError(t, err)

	d := syncq.NewDrainer(q, mock, drainConfig(), testLogger())
	require.NoError(t, d.Drain(ctx))

	assert.NotContains(t, mock.Records[store.KindCategories], "c1")

	// Replaying a delete for a missing id stays a no-op.
	_, err = q.Enqueue(ctx, models.OpDelete, models.TargetCategories, deletePayload(t, "c1"))
	require.NoError(t, err)
	require.NoError(t, d.Drain(ctx))
}

func TestDrainFailurePreservesOrderAndItems(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	mock := remote.NewMockRemote()
	mock.SetOnline(false)

	_, err := q.Enqueue(ctx, models.OpUpsert, models.TargetCategories, upsertPayload(t, "c1", "Research"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.OpUpsert, models.TargetCategories, upsertPayload(t, "c2", "Work"))
	require.NoError(t, err)

	d := syncq.NewDrainer(q, mock, drainConfig(), testLogger())
	err = d.Drain(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRemoteUnavailable)

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2, "failed items are never dropped")
	assert.Equal(t, 1, items[0].Attempts, "head of the target was attempted")
	assert.Equal(t, 0, items[1].Attempts, "tail stays untouched to preserve order")

	// Remote recovers; the same drain path empties the queue.
	mock.SetOnline(true)
	require.NoError(t, d.Drain(ctx))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Contains(t, mock.Records[store.KindCategories], "c1")
	assert.Contains(t, mock.Records[store.KindCategories], "c2")
}

func TestDrainDegradedAfterExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	mock := remote.NewMockRemote()
	mock.SetOnline(false)

	cfg := drainConfig()
	cfg.MaxAttempts = 2

	_, err := q.Enqueue(ctx, models.OpUpsert, models.TargetCategories, upsertPayload(t, "c1", "Research"))
	require.NoError(t, err)

	d := syncq.NewDrainer(q, mock, cfg, testLogger())
	_ = d.Drain(ctx)
	_ = d.Drain(ctx)

	status := d.Status(ctx)
	assert.True(t, status.Degraded, "exhausted retries surface as degraded status")
	assert.Equal(t, 1, status.Pending, "degraded sync never loses the item")
	assert.NotEmpty(t, status.LastError)
}

func TestDrainWithoutRemoteIsNoop(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)

	_, err := q.Enqueue(ctx, models.OpUpsert, models.TargetCategories, upsertPayload(t, "c1", "Research"))
	require.NoError(t, err)

	d := syncq.NewDrainer(q, nil, drainConfig(), testLogger())
	require.NoError(t, d.Drain(ctx))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "items wait until a remote is configured")
}

func TestRunDrainsOnConnectivitySignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, _ := newQueue(t)
	mock := remote.NewMockRemote()

	_, err := q.Enqueue(ctx, models.OpUpsert, models.TargetCategories, upsertPayload(t, "c1", "Research"))
	require.NoError(t, err)

	d := syncq.NewDrainer(q, mock, drainConfig(), testLogger())

	signals := make(chan remote.Signal, 1)
	go d.Run(ctx, signals)

	signals <- remote.Signal{Online: true}

	require.Eventually(t, func() bool {
		n, err := q.Len(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond, "online signal should trigger a drain")
}
