package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/store"
)

// Export serializes the full registry state.
func (m *Manager) Export() *models.Snapshot {
	rels := m.reg.Relations()

	grouped := make(map[string][]string)
	var order []string
	for _, rel := range rels {
		if _, seen := grouped[rel.FileID]; !seen {
			order = append(order, rel.FileID)
		}
		grouped[rel.FileID] = append(grouped[rel.FileID], rel.CategoryID)
	}

	fileRels := make([]models.FileRelations, 0, len(order))
	for _, fileID := range order {
		fileRels = append(fileRels, models.FileRelations{
			FileID:      fileID,
			CategoryIDs: grouped[fileID],
		})
	}

	return &models.Snapshot{
		Version:    models.CurrentSnapshotVersion,
		Timestamp:  time.Now().UTC(),
		Categories: m.reg.All(),
		Relations:  fileRels,
		Stats:      m.reg.Stats(),
	}
}

// Import replaces the registry with a snapshot. The current state is
// backed up first and restored on any failure, so a failed import
// observably changes nothing.
func (m *Manager) Import(ctx context.Context, snap *models.Snapshot) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !m.initialized {
		return models.ErrNotInitialized
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("validate snapshot: %w", err)
	}

	backup := m.Export()

	if err := m.applySnapshot(ctx, snap); err != nil {
		m.logger.WithError(err).Error("Import failed; restoring backup")
		if restoreErr := m.applySnapshot(ctx, backup); restoreErr != nil {
			return fmt.Errorf("import failed (%v) and restore failed: %w", err, restoreErr)
		}
		return fmt.Errorf("import: %w", err)
	}

	m.bus.Publish(events.Event{Type: events.RegistryReset})
	m.logger.WithFields(map[string]interface{}{
		"categories": len(snap.Categories),
		"files":      len(snap.Relations),
	}).Info("Snapshot imported")

	return nil
}

// applySnapshot clears category state and writes the snapshot's
// contents through the write path.
func (m *Manager) applySnapshot(ctx context.Context, snap *models.Snapshot) error {
	if err := m.clearLocal(ctx); err != nil {
		return err
	}
	m.reg.Rebuild(nil, nil)

	for i := range snap.Categories {
		cat := snap.Categories[i]
		if err := m.persistCategory(ctx, models.OpUpsert, &cat); err != nil {
			return err
		}
		m.reg.PutCategory(cat)
	}

	for _, fileRels := range snap.Relations {
		for _, catID := range fileRels.CategoryIDs {
			if _, ok := m.reg.ByID(catID); !ok {
				return fmt.Errorf("relation for %s: %w", catID, models.ErrNotFound)
			}
			rel := models.FileCategoryRelation{
				FileID:     fileRels.FileID,
				CategoryID: catID,
				AssignedAt: time.Now().UTC(),
			}
			if err := m.persistRelation(ctx, models.OpUpsert, &rel); err != nil {
				return err
			}
			m.reg.PutRelation(rel)
		}
	}

	return nil
}

// Reset clears category data in both stores and reseeds defaults.
func (m *Manager) Reset(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !m.initialized {
		return models.ErrNotInitialized
	}

	cats := m.reg.All()
	rels := m.reg.Relations()

	// Stale queue items describe state that is being discarded.
	if err := m.queue.Clear(ctx); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	if err := m.clearLocal(ctx); err != nil {
		return err
	}
	m.reg.Rebuild(nil, nil)

	// Relations go first so the remote never sees a dangling
	// reference window larger than necessary.
	for _, rel := range rels {
		rec, err := relationRecord(&rel)
		if err != nil {
			return err
		}
		m.mirror(ctx, models.OpDelete, store.KindRelations, rec)
	}
	for _, cat := range cats {
		rec, err := categoryRecord(&cat)
		if err != nil {
			return err
		}
		m.mirror(ctx, models.OpDelete, store.KindCategories, rec)
	}

	if err := m.seedDefaults(ctx); err != nil {
		return err
	}

	m.bus.Publish(events.Event{Type: events.RegistryReset})
	m.logger.Info("Category data reset to defaults")

	return nil
}

func (m *Manager) clearLocal(ctx context.Context) error {
	if err := m.local.Clear(ctx, store.KindRelations); err != nil {
		return fmt.Errorf("clear relations: %w", err)
	}
	if err := m.local.Clear(ctx, store.KindCategories); err != nil {
		return fmt.Errorf("clear categories: %w", err)
	}
	return nil
}
