package store_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/store"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func categoryData(t *testing.T, id, name string) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(models.Category{ID: id, Name: name})
	require.NoError(t, err)
	return data
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "categories.db")

	s, err := store.NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer s.Close()

	testStoreOperations(t, s)
}

func TestMemoryStore(t *testing.T) {
	s := store.NewMemoryStore()
	defer s.Close()

	testStoreOperations(t, s)
}

func testStoreOperations(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("get non-existent", func(t *testing.T) {
		_, err := s.Get(ctx, store.KindCategories, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := s.GetAll(ctx, store.Kind("files"))
		assert.ErrorIs(t, err, store.ErrUnknownKind)
	})

	t.Run("put and get category", func(t *testing.T) {
		rec := store.Record{
			ID:        "c1",
			Data:      categoryData(t, "c1", "Research"),
			UpdatedAt: time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, s.Put(ctx, store.KindCategories, rec))

		loaded, err := s.Get(ctx, store.KindCategories, "c1")
		require.NoError(t, err)
		assert.JSONEq(t, string(rec.Data), string(loaded.Data))
		assert.Equal(t, rec.UpdatedAt.Unix(), loaded.UpdatedAt.Unix())
	})

	t.Run("put replaces", func(t *testing.T) {
		rec := store.Record{ID: "c1", Data: categoryData(t, "c1", "Deep Research")}
		require.NoError(t, s.Put(ctx, store.KindCategories, rec))

		loaded, err := s.Get(ctx, store.KindCategories, "c1")
		require.NoError(t, err)

		var cat models.Category
		require.NoError(t, json.Unmarshal(loaded.Data, &cat))
		assert.Equal(t, "Deep Research", cat.Name)
	})

	t.Run("relations use composite keys", func(t *testing.T) {
		rel := models.FileCategoryRelation{FileID: "f1", CategoryID: "c1", AssignedAt: time.Now().UTC()}
		data, err := json.Marshal(rel)
		require.NoError(t, err)

		rec := store.Record{ID: rel.Key(), Data: data}
		require.NoError(t, s.Put(ctx, store.KindRelations, rec))

		loaded, err := s.Get(ctx, store.KindRelations, rel.Key())
		require.NoError(t, err)
		assert.Equal(t, rel.Key(), loaded.ID)

		all, err := s.GetAll(ctx, store.KindRelations)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, rel.Key(), all[0].ID)
	})

	t.Run("getall orders by id", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, store.KindSyncQueue, store.Record{ID: "000000000002", Data: []byte(`{}`)}))
		require.NoError(t, s.Put(ctx, store.KindSyncQueue, store.Record{ID: "000000000001", Data: []byte(`{}`)}))

		all, err := s.GetAll(ctx, store.KindSyncQueue)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "000000000001", all[0].ID)
		assert.Equal(t, "000000000002", all[1].ID)
	})

	t.Run("query", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, store.KindCategories, store.Record{ID: "c2", Data: categoryData(t, "c2", "Work")}))

		matched, err := s.Query(ctx, store.KindCategories, func(rec store.Record) bool {
			return rec.ID == "c2"
		})
		require.NoError(t, err)
		require.Len(t, matched, 1)
		assert.Equal(t, "c2", matched[0].ID)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, store.KindCategories, "c2"))
		require.NoError(t, s.Delete(ctx, store.KindCategories, "c2"))

		_, err := s.Get(ctx, store.KindCategories, "c2")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, s.Clear(ctx, store.KindSyncQueue))

		all, err := s.GetAll(ctx, store.KindSyncQueue)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "categories.db")

	s1, err := store.NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, store.KindCategories, store.Record{ID: "c1", Data: categoryData(t, "c1", "Research")}))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer s2.Close()

	loaded, err := s2.Get(ctx, store.KindCategories, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", loaded.ID)
}

func TestMemoryStoreWatch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	defer s.Close()

	w, err := s.Watch()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, s.Put(ctx, store.KindCategories, store.Record{ID: "c1", Data: categoryData(t, "c1", "Research")}))

	select {
	case change := <-w.Changes():
		assert.Equal(t, store.KindCategories, change.Kind)
		assert.Equal(t, s.Origin(), change.Origin)
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestSQLiteStoreCrossInstanceWatch(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "categories.db")

	writer, err := store.NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer writer.Close()

	reader, err := store.NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer reader.Close()

	w, err := reader.Watch()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, writer.Put(ctx, store.KindCategories, store.Record{ID: "c1", Data: categoryData(t, "c1", "Research")}))

	require.Eventually(t, func() bool {
		select {
		case change := <-w.Changes():
			return change.Kind == store.KindCategories && change.Origin == writer.Origin()
		default:
			return false
		}
	}, 3*time.Second, 20*time.Millisecond, "expected cross-instance change notification")

	// The reader sees the writer's record through the shared file.
	loaded, err := reader.Get(ctx, store.KindCategories, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", loaded.ID)
}
