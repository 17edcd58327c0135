package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/store"
)

// CategoryInput is the payload for CreateCategory.
type CategoryInput struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Icon      string `json:"icon,omitempty"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// CategoryUpdate carries partial updates; nil fields stay unchanged.
// The id is deliberately not updatable.
type CategoryUpdate struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
	Icon  *string `json:"icon,omitempty"`
}

// CreateCategory validates and persists a new category.
func (m *Manager) CreateCategory(ctx context.Context, input CategoryInput) (*models.Category, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !m.initialized {
		return nil, models.ErrNotInitialized
	}
	return m.createCategory(ctx, input, false)
}

// createCategory runs with writeMu held. fromMigration switches the
// duplicate-name failure to a merge: the existing category wins and
// no error is returned.
func (m *Manager) createCategory(ctx context.Context, input CategoryInput, fromMigration bool) (*models.Category, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	if existing, ok := m.reg.ByName(name); ok {
		if fromMigration {
			return existing, nil
		}
		return nil, &models.ConflictError{Name: name, ExistingID: existing.ID}
	}

	now := time.Now().UTC()
	cat := models.Category{
		ID:        input.ID,
		Name:      name,
		Color:     input.Color,
		Icon:      input.Icon,
		IsDefault: input.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cat.ID == "" {
		cat.ID = models.NewID()
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}

	if err := m.persistCategory(ctx, models.OpUpsert, &cat); err != nil {
		return nil, err
	}

	m.reg.PutCategory(cat)
	m.bus.Publish(events.Event{Type: events.CategoryCreated, Category: cat.Clone()})

	m.logger.WithFields(map[string]interface{}{
		"id":   cat.ID,
		"name": cat.Name,
	}).Info("Category created")

	return &cat, nil
}

// UpdateCategory applies partial updates to an existing category.
func (m *Manager) UpdateCategory(ctx context.Context, id string, updates CategoryUpdate) (*models.Category, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !m.initialized {
		return nil, models.ErrNotInitialized
	}

	prev, ok := m.reg.ByID(id)
	if !ok {
		return nil, models.ErrNotFound
	}

	cat := *prev
	if updates.Name != nil {
		name := strings.TrimSpace(*updates.Name)
		if name == "" {
			return nil, &models.ValidationError{Field: "name", Reason: "must not be empty"}
		}
		if cat.IsDefault && models.FoldName(name) != models.FoldName(cat.Name) {
			return nil, models.ErrProtectedDefault
		}
		if existing, exists := m.reg.ByName(name); exists && existing.ID != id {
			return nil, &models.ConflictError{Name: name, ExistingID: existing.ID}
		}
		cat.Name = name
	}
	if updates.Color != nil {
		cat.Color = *updates.Color
	}
	if updates.Icon != nil {
		cat.Icon = *updates.Icon
	}
	cat.UpdatedAt = time.Now().UTC()

	if err := m.persistCategory(ctx, models.OpUpsert, &cat); err != nil {
		return nil, err
	}

	m.reg.PutCategory(cat)

	// Carry both old and new values so consumers can reconcile
	// derived state such as color legends.
	m.bus.Publish(events.Event{
		Type:     events.CategoryUpdated,
		Category: cat.Clone(),
		Previous: prev,
	})

	return &cat, nil
}

// DeleteCategory removes an unused, non-default category. Deletion
// blocks instead of cascading so user categorization is never
// silently lost.
func (m *Manager) DeleteCategory(ctx context.Context, id string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !m.initialized {
		return models.ErrNotInitialized
	}

	cat, ok := m.reg.ByID(id)
	if !ok {
		return models.ErrNotFound
	}
	if cat.IsDefault {
		return models.ErrProtectedDefault
	}
	if n := m.reg.RelationCount(id); n > 0 {
		return fmt.Errorf("%w: %d file(s)", models.ErrInUse, n)
	}

	if err := m.persistCategory(ctx, models.OpDelete, cat); err != nil {
		return err
	}

	m.reg.DeleteCategory(id)
	m.bus.Publish(events.Event{Type: events.CategoryDeleted, Category: cat})

	m.logger.WithField("id", id).Info("Category deleted")
	return nil
}

// AssignToFile links a file to each listed category. Referential
// integrity is checked against the registry before any I/O; assigning
// an already-assigned category is a no-op.
func (m *Manager) AssignToFile(ctx context.Context, fileID string, categoryIDs []string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !m.initialized {
		return models.ErrNotInitialized
	}
	if strings.TrimSpace(fileID) == "" {
		return &models.ValidationError{Field: "file_id", Reason: "must not be empty"}
	}

	for _, catID := range categoryIDs {
		if _, ok := m.reg.ByID(catID); !ok {
			return fmt.Errorf("assign %s: %w", catID, models.ErrNotFound)
		}
	}

	var assigned []string
	for _, catID := range categoryIDs {
		if m.reg.FileHasCategory(fileID, catID) {
			continue
		}

		rel := models.FileCategoryRelation{
			FileID:     fileID,
			CategoryID: catID,
			AssignedAt: time.Now().UTC(),
		}
		if err := m.persistRelation(ctx, models.OpUpsert, &rel); err != nil {
			return err
		}

		m.reg.PutRelation(rel)
		assigned = append(assigned, catID)
	}

	if len(assigned) > 0 {
		m.bus.Publish(events.Event{
			Type:        events.CategoryAssigned,
			FileID:      fileID,
			CategoryIDs: assigned,
		})
	}

	return nil
}

// RemoveFromFile unlinks a category from a file. A missing relation
// is a no-op, not an error.
func (m *Manager) RemoveFromFile(ctx context.Context, fileID, categoryID string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !m.initialized {
		return models.ErrNotInitialized
	}
	if !m.reg.FileHasCategory(fileID, categoryID) {
		return nil
	}

	rel := models.FileCategoryRelation{FileID: fileID, CategoryID: categoryID}
	if err := m.persistRelation(ctx, models.OpDelete, &rel); err != nil {
		return err
	}

	m.reg.DeleteRelation(fileID, categoryID)
	m.bus.Publish(events.Event{
		Type:        events.CategoryRemoved,
		FileID:      fileID,
		CategoryIDs: []string{categoryID},
	})

	return nil
}

// persistCategory runs the write path for a category mutation.
func (m *Manager) persistCategory(ctx context.Context, op models.SyncOp, cat *models.Category) error {
	rec, err := categoryRecord(cat)
	if err != nil {
		return err
	}
	return m.persist(ctx, op, store.KindCategories, rec)
}

// persistRelation runs the write path for a relation mutation.
func (m *Manager) persistRelation(ctx context.Context, op models.SyncOp, rel *models.FileCategoryRelation) error {
	rec, err := relationRecord(rel)
	if err != nil {
		return err
	}
	return m.persist(ctx, op, store.KindRelations, rec)
}

// persist applies a mutation to the local store first (durability by
// the time the call returns), then mirrors it to the remote or the
// sync queue. Remote failure is absorbed: the caller still sees
// success because the local copy is authoritative until synced.
func (m *Manager) persist(ctx context.Context, op models.SyncOp, kind store.Kind, rec store.Record) error {
	var err error
	switch op {
	case models.OpUpsert:
		err = m.local.Put(ctx, kind, rec)
	case models.OpDelete:
		err = m.local.Delete(ctx, kind, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("local write: %w", err)
	}

	m.mirror(ctx, op, kind, rec)
	return nil
}

// mirror attempts the remote write, queueing on any failure. If the
// target already has queued items the write queues directly so the
// per-target ordering guarantee holds.
func (m *Manager) mirror(ctx context.Context, op models.SyncOp, kind store.Kind, rec store.Record) {
	target := models.SyncTarget(kind)

	if m.remote != nil {
		backlog, err := m.queue.HasPending(ctx, target)
		if err != nil {
			m.logger.WithError(err).Warn("Failed to inspect sync queue")
			backlog = true
		}

		if !backlog {
			var remoteErr error
			switch op {
			case models.OpUpsert:
				remoteErr = m.remote.Upsert(ctx, kind, []store.Record{rec})
			case models.OpDelete:
				remoteErr = m.remote.Delete(ctx, kind, rec.ID)
			}
			if remoteErr == nil {
				return
			}
			m.logger.WithError(remoteErr).Debug("Remote write failed; queueing")
		}
	}

	m.enqueue(ctx, op, target, rec)
}

func (m *Manager) enqueue(ctx context.Context, op models.SyncOp, target models.SyncTarget, rec store.Record) {
	var payload json.RawMessage
	switch op {
	case models.OpUpsert:
		data, err := json.Marshal(rec)
		if err != nil {
			m.logger.WithError(err).Error("Failed to encode queue payload")
			return
		}
		payload = data
	case models.OpDelete:
		data, err := json.Marshal(map[string]string{"id": rec.ID})
		if err != nil {
			m.logger.WithError(err).Error("Failed to encode queue payload")
			return
		}
		payload = data
	}

	if _, err := m.queue.Enqueue(ctx, op, target, payload); err != nil {
		// The local write already landed; losing the queue item
		// means the next initialize reconciliation repairs the
		// remote.
		m.logger.WithError(err).Error("Failed to enqueue mutation")
	}
}

func categoryRecord(cat *models.Category) (store.Record, error) {
	data, err := json.Marshal(cat)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode category %s: %w", cat.ID, err)
	}
	return store.Record{ID: cat.ID, Data: data, UpdatedAt: cat.UpdatedAt}, nil
}

func relationRecord(rel *models.FileCategoryRelation) (store.Record, error) {
	data, err := json.Marshal(rel)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode relation %s: %w", rel.Key(), err)
	}
	return store.Record{ID: rel.Key(), Data: data, UpdatedAt: rel.AssignedAt}, nil
}
