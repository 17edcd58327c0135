// Package manager implements the category engine facade: validation,
// the local-first write path, sync queueing and change notification.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/registry"
	"github.com/mdelaney/catsync/internal/remote"
	"github.com/mdelaney/catsync/internal/store"
	"github.com/mdelaney/catsync/internal/syncq"
)

// Deps carries the manager's injected collaborators.
type Deps struct {
	Local    store.Store
	Remote   remote.Remote // nil means offline-only operation
	Queue    *syncq.Queue
	Registry *registry.Registry
	Bus      *events.Bus
	Logger   *events.Logger

	// LegacyFile points at a pre-v1 category export to migrate on
	// initialize. Empty skips migration.
	LegacyFile string
}

// Manager owns categories, relations and the sync queue. All
// mutations pass serially through its write path; reads go straight
// to the registry and never touch the network.
type Manager struct {
	local  store.Store
	remote remote.Remote
	queue  *syncq.Queue
	reg    *registry.Registry
	bus    *events.Bus
	logger *events.Logger

	legacyFile string

	// Single logical writer: mutations within one instance are
	// serialized here. Cross-instance writers coordinate through
	// the store and its change signals.
	writeMu     sync.Mutex
	initialized bool

	watcher   store.Watcher
	watchDone chan struct{}
}

// New creates a manager. Call Initialize before use.
func New(deps Deps) *Manager {
	return &Manager{
		local:      deps.Local,
		remote:     deps.Remote,
		queue:      deps.Queue,
		reg:        deps.Registry,
		bus:        deps.Bus,
		logger:     deps.Logger.WithField("component", "category_manager"),
		legacyFile: deps.LegacyFile,
	}
}

// Initialize loads state remote-first with local fallback, seeds the
// default categories when empty, runs legacy migration idempotently
// and starts watching for changes from other instances. A broken
// local store with a reachable remote continues from the remote's
// data in memory; when both stores are unreachable it fails soft
// into a default-only in-memory state rather than returning an error.
func (m *Manager) Initialize(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	cats, rels, localOK, err := m.loadState(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("Both stores unreachable; falling back to defaults in memory")
		cats, rels = nil, nil
		localOK = false
	}

	if !localOK {
		m.local = store.NewMemoryStore()

		q, qErr := syncq.NewQueue(ctx, m.local, m.logger)
		if qErr != nil {
			return fmt.Errorf("init fallback queue: %w", qErr)
		}
		m.queue = q

		// Whatever state survived (possibly the remote's) seeds the
		// fallback store so the write path keeps working.
		if err := m.writeBackModels(ctx, cats, rels); err != nil {
			return fmt.Errorf("seed fallback store: %w", err)
		}
	}

	m.reg.Rebuild(cats, rels)
	m.initialized = true

	if m.reg.Len() == 0 {
		if err := m.seedDefaults(ctx); err != nil {
			return fmt.Errorf("seed defaults: %w", err)
		}
	}

	if m.legacyFile != "" {
		if err := m.runMigration(ctx); err != nil {
			m.logger.WithError(err).Warn("Legacy migration failed; will retry next initialize")
		}
	}

	if err := m.startWatch(); err != nil {
		m.logger.WithError(err).Warn("Change watching unavailable")
	}

	m.logger.WithFields(map[string]interface{}{
		"categories": m.reg.Len(),
		"relations":  len(m.reg.Relations()),
	}).Info("Category manager initialized")

	return nil
}

// loadState prefers the remote as the cross-device source of truth,
// merging newer local edits by updated_at and masking out records
// whose deletion is still queued, and falls back to the local store
// when the remote is unreachable. The returned flag reports whether
// the local store served reads; when false the caller must swap in a
// usable store.
func (m *Manager) loadState(ctx context.Context) ([]models.Category, []models.FileCategoryRelation, bool, error) {
	localCats, localErr := m.local.GetAll(ctx, store.KindCategories)
	var localRels []store.Record
	if localErr == nil {
		localRels, localErr = m.local.GetAll(ctx, store.KindRelations)
	}

	var remoteCats, remoteRels []store.Record
	remoteOK := false
	if m.remote != nil {
		var remoteErr error
		remoteCats, remoteErr = m.remote.Select(ctx, store.KindCategories)
		if remoteErr == nil {
			remoteRels, remoteErr = m.remote.Select(ctx, store.KindRelations)
		}
		if remoteErr != nil {
			m.logger.WithError(remoteErr).Debug("Remote unreachable at initialize; using local store")
		} else {
			remoteOK = true
		}
	}

	if remoteOK && localErr == nil {
		deletes, qErr := m.queuedDeletes(ctx)
		if qErr != nil {
			m.logger.WithError(qErr).Warn("Cannot inspect sync queue; skipping remote reconciliation")
		} else {
			catRecs := mergeRecords(localCats, maskDeleted(remoteCats, deletes[models.TargetCategories]))
			relRecs := mergeRecords(localRels, maskDeleted(remoteRels, deletes[models.TargetRelations]))
			if err := m.writeBack(ctx, catRecs, relRecs); err != nil {
				return nil, nil, false, err
			}
			cats, rels, err := decodeState(catRecs, relRecs)
			return cats, rels, true, err
		}
	}

	if localErr == nil {
		cats, rels, err := decodeState(localCats, localRels)
		return cats, rels, true, err
	}

	if remoteOK {
		m.logger.WithError(localErr).Warn("Local store unreadable; loading state from remote")
		cats, rels, err := decodeState(remoteCats, remoteRels)
		return cats, rels, false, err
	}

	return nil, nil, false, localErr
}

// queuedDeletes collects record ids with a pending delete, per
// target. A remote copy of such a record is stale by definition:
// absence cannot win a last-write-wins merge, so without the mask a
// queued delete would be undone by the remote's copy and the record
// resurrected locally.
func (m *Manager) queuedDeletes(ctx context.Context) (map[models.SyncTarget]map[string]struct{}, error) {
	items, err := m.queue.Pending(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[models.SyncTarget]map[string]struct{})
	for _, item := range items {
		if item.Op != models.OpDelete {
			continue
		}

		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			m.logger.WithError(err).Warn("Malformed queue payload")
			continue
		}

		if out[item.Target] == nil {
			out[item.Target] = make(map[string]struct{})
		}
		out[item.Target][payload.ID] = struct{}{}
	}

	return out, nil
}

// maskDeleted drops remote records whose deletion is still queued.
func maskDeleted(recs []store.Record, deleted map[string]struct{}) []store.Record {
	if len(deleted) == 0 {
		return recs
	}

	out := make([]store.Record, 0, len(recs))
	for _, rec := range recs {
		if _, ok := deleted[rec.ID]; !ok {
			out = append(out, rec)
		}
	}
	return out
}

// mergeRecords resolves per-id conflicts last-write-wins by
// updated_at. Concurrent offline edits of the same category in two
// instances converge on the most recent edit.
func mergeRecords(local, remote []store.Record) []store.Record {
	byID := make(map[string]store.Record, len(local)+len(remote))
	for _, rec := range remote {
		byID[rec.ID] = rec
	}
	for _, rec := range local {
		if existing, ok := byID[rec.ID]; !ok || rec.UpdatedAt.After(existing.UpdatedAt) {
			byID[rec.ID] = rec
		}
	}

	out := make([]store.Record, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	return out
}

// writeBack persists the merged view locally so offline operation
// starts from the reconciled state.
func (m *Manager) writeBack(ctx context.Context, cats, rels []store.Record) error {
	for _, rec := range cats {
		if err := m.local.Put(ctx, store.KindCategories, rec); err != nil {
			return fmt.Errorf("write back category %s: %w", rec.ID, err)
		}
	}
	for _, rec := range rels {
		if err := m.local.Put(ctx, store.KindRelations, rec); err != nil {
			return fmt.Errorf("write back relation %s: %w", rec.ID, err)
		}
	}
	return nil
}

// writeBackModels persists decoded state into the (fallback) local
// store.
func (m *Manager) writeBackModels(ctx context.Context, cats []models.Category, rels []models.FileCategoryRelation) error {
	for i := range cats {
		rec, err := categoryRecord(&cats[i])
		if err != nil {
			return err
		}
		if err := m.local.Put(ctx, store.KindCategories, rec); err != nil {
			return err
		}
	}
	for i := range rels {
		rec, err := relationRecord(&rels[i])
		if err != nil {
			return err
		}
		if err := m.local.Put(ctx, store.KindRelations, rec); err != nil {
			return err
		}
	}
	return nil
}

func decodeState(catRecs, relRecs []store.Record) ([]models.Category, []models.FileCategoryRelation, error) {
	cats, err := decodeCategories(catRecs)
	if err != nil {
		return nil, nil, err
	}
	rels, err := decodeRelations(relRecs)
	if err != nil {
		return nil, nil, err
	}
	return cats, rels, nil
}

func decodeCategories(recs []store.Record) ([]models.Category, error) {
	cats := make([]models.Category, 0, len(recs))
	for _, rec := range recs {
		var cat models.Category
		if err := json.Unmarshal(rec.Data, &cat); err != nil {
			return nil, fmt.Errorf("decode category %s: %w", rec.ID, err)
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

func decodeRelations(recs []store.Record) ([]models.FileCategoryRelation, error) {
	rels := make([]models.FileCategoryRelation, 0, len(recs))
	for _, rec := range recs {
		var rel models.FileCategoryRelation
		if err := json.Unmarshal(rec.Data, &rel); err != nil {
			return nil, fmt.Errorf("decode relation %s: %w", rec.ID, err)
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// seedDefaults creates the built-in categories through the normal
// write path so they persist and sync like any other mutation.
func (m *Manager) seedDefaults(ctx context.Context) error {
	for _, cat := range models.DefaultCategories() {
		input := CategoryInput{
			ID:        cat.ID,
			Name:      cat.Name,
			Color:     cat.Color,
			Icon:      cat.Icon,
			IsDefault: true,
		}
		if _, err := m.createCategory(ctx, input, true); err != nil {
			return err
		}
	}

	m.logger.WithField("count", len(models.DefaultCategories())).Info("Seeded default categories")
	return nil
}

// startWatch subscribes to store change signals so edits from other
// instances sharing the database show up without restarting.
func (m *Manager) startWatch() error {
	watcher, err := m.local.Watch()
	if err != nil {
		return err
	}

	m.watcher = watcher
	m.watchDone = make(chan struct{})

	go m.watchLoop()
	return nil
}

func (m *Manager) watchLoop() {
	defer close(m.watchDone)

	for change := range m.watcher.Changes() {
		if change.Origin == m.local.Origin() {
			continue
		}
		m.reloadSection(change.Kind)
	}
}

// reloadSection refreshes one registry section from the local store.
// The receiving instance reloads rather than trusting its stale
// cache.
func (m *Manager) reloadSection(kind store.Kind) {
	ctx := context.Background()

	switch kind {
	case store.KindCategories:
		recs, err := m.local.GetAll(ctx, kind)
		if err != nil {
			m.logger.WithError(err).Warn("Failed to reload categories")
			return
		}
		cats, err := decodeCategories(recs)
		if err != nil {
			m.logger.WithError(err).Warn("Failed to decode categories")
			return
		}
		m.reg.RebuildCategories(cats)

	case store.KindRelations:
		recs, err := m.local.GetAll(ctx, kind)
		if err != nil {
			m.logger.WithError(err).Warn("Failed to reload relations")
			return
		}
		rels, err := decodeRelations(recs)
		if err != nil {
			m.logger.WithError(err).Warn("Failed to decode relations")
			return
		}
		m.reg.RebuildRelations(rels)
	}

	m.logger.WithField("kind", string(kind)).Debug("Reloaded registry section from shared store")
}

// Close stops the change watcher.
func (m *Manager) Close() error {
	if m.watcher != nil {
		err := m.watcher.Close()
		<-m.watchDone
		m.watcher = nil
		return err
	}
	return nil
}

// All returns every category, defaults first.
func (m *Manager) All() []models.Category {
	return m.reg.All()
}

// ByID returns a category by id.
func (m *Manager) ByID(id string) (*models.Category, error) {
	cat, ok := m.reg.ByID(id)
	if !ok {
		return nil, models.ErrNotFound
	}
	return cat, nil
}

// FindByName returns a category by case-insensitive name.
func (m *Manager) FindByName(name string) (*models.Category, error) {
	cat, ok := m.reg.ByName(name)
	if !ok {
		return nil, models.ErrNotFound
	}
	return cat, nil
}

// FileCategories returns the categories assigned to a file.
func (m *Manager) FileCategories(fileID string) []models.Category {
	return m.reg.FileCategories(fileID)
}

// FilesByCategory returns the file ids assigned to a category.
func (m *Manager) FilesByCategory(categoryID string) []string {
	return m.reg.FilesByCategory(categoryID)
}

// FileHasCategory reports whether the relation exists.
func (m *Manager) FileHasCategory(fileID, categoryID string) bool {
	return m.reg.FileHasCategory(fileID, categoryID)
}

// Stats aggregates registry counts.
func (m *Manager) Stats() models.Stats {
	return m.reg.Stats()
}
