// Package registry holds the materialized view of categories and
// file relations. It is derived, non-authoritative state: rebuilt
// from a store at startup and kept in lockstep by every mutation
// that passes through the manager.
package registry

import (
	"sort"
	"sync"

	"github.com/mdelaney/catsync/internal/models"
)

// Registry is a read-optimized index over categories and relations.
// Safe for concurrent use: CLI reads may race with watcher-triggered
// reloads.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]models.Category
	byName    map[string]string // folded name -> id
	relations map[string]models.FileCategoryRelation
	byFile    map[string]map[string]struct{}
	byCat     map[string]map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	r.resetLocked()
	return r
}

func (r *Registry) resetLocked() {
	r.byID = make(map[string]models.Category)
	r.byName = make(map[string]string)
	r.relations = make(map[string]models.FileCategoryRelation)
	r.byFile = make(map[string]map[string]struct{})
	r.byCat = make(map[string]map[string]struct{})
}

// Rebuild replaces the whole index.
func (r *Registry) Rebuild(cats []models.Category, rels []models.FileCategoryRelation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
	for _, cat := range cats {
		r.putCategoryLocked(cat)
	}
	for _, rel := range rels {
		r.putRelationLocked(rel)
	}
}

// RebuildCategories replaces only the category section, keeping
// relations intact.
func (r *Registry) RebuildCategories(cats []models.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID = make(map[string]models.Category)
	r.byName = make(map[string]string)
	for _, cat := range cats {
		r.putCategoryLocked(cat)
	}
}

// RebuildRelations replaces only the relation section.
func (r *Registry) RebuildRelations(rels []models.FileCategoryRelation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.relations = make(map[string]models.FileCategoryRelation)
	r.byFile = make(map[string]map[string]struct{})
	r.byCat = make(map[string]map[string]struct{})
	for _, rel := range rels {
		r.putRelationLocked(rel)
	}
}

// PutCategory adds or replaces a category.
func (r *Registry) PutCategory(cat models.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putCategoryLocked(cat)
}

func (r *Registry) putCategoryLocked(cat models.Category) {
	if prev, ok := r.byID[cat.ID]; ok {
		delete(r.byName, models.FoldName(prev.Name))
	}
	r.byID[cat.ID] = cat
	r.byName[models.FoldName(cat.Name)] = cat.ID
}

// DeleteCategory removes a category from the index.
func (r *Registry) DeleteCategory(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cat, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byName, models.FoldName(cat.Name))
}

// PutRelation adds or replaces a relation.
func (r *Registry) PutRelation(rel models.FileCategoryRelation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putRelationLocked(rel)
}

func (r *Registry) putRelationLocked(rel models.FileCategoryRelation) {
	r.relations[rel.Key()] = rel

	if r.byFile[rel.FileID] == nil {
		r.byFile[rel.FileID] = make(map[string]struct{})
	}
	r.byFile[rel.FileID][rel.CategoryID] = struct{}{}

	if r.byCat[rel.CategoryID] == nil {
		r.byCat[rel.CategoryID] = make(map[string]struct{})
	}
	r.byCat[rel.CategoryID][rel.FileID] = struct{}{}
}

// DeleteRelation removes a relation from the index.
func (r *Registry) DeleteRelation(fileID, categoryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.relations, models.RelationKey(fileID, categoryID))

	if files := r.byFile[fileID]; files != nil {
		delete(files, categoryID)
		if len(files) == 0 {
			delete(r.byFile, fileID)
		}
	}
	if cats := r.byCat[categoryID]; cats != nil {
		delete(cats, fileID)
		if len(cats) == 0 {
			delete(r.byCat, categoryID)
		}
	}
}

// All returns every category, defaults first, then by name.
func (r *Registry) All() []models.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Category, 0, len(r.byID))
	for _, cat := range r.byID {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return models.FoldName(out[i].Name) < models.FoldName(out[j].Name)
	})

	return out
}

// ByID looks up a category by id.
func (r *Registry) ByID(id string) (*models.Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cat, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return cat.Clone(), true
}

// ByName looks up a category case-insensitively.
func (r *Registry) ByName(name string) (*models.Category, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[models.FoldName(name)]
	if !ok {
		return nil, false
	}
	cat := r.byID[id]
	return cat.Clone(), true
}

// FileCategories returns the categories assigned to a file.
func (r *Registry) FileCategories(fileID string) []models.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Category
	for catID := range r.byFile[fileID] {
		if cat, ok := r.byID[catID]; ok {
			out = append(out, cat)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return models.FoldName(out[i].Name) < models.FoldName(out[j].Name)
	})

	return out
}

// FilesByCategory returns the file ids assigned to a category.
func (r *Registry) FilesByCategory(categoryID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byCat[categoryID]))
	for fileID := range r.byCat[categoryID] {
		out = append(out, fileID)
	}
	sort.Strings(out)

	return out
}

// FileHasCategory reports whether the relation exists.
func (r *Registry) FileHasCategory(fileID, categoryID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.relations[models.RelationKey(fileID, categoryID)]
	return ok
}

// Relations returns all relations in key order.
func (r *Registry) Relations() []models.FileCategoryRelation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.FileCategoryRelation, 0, len(r.relations))
	for _, rel := range r.relations {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FileID != out[j].FileID {
			return out[i].FileID < out[j].FileID
		}
		return out[i].CategoryID < out[j].CategoryID
	})

	return out
}

// RelationCount returns how many files reference a category.
func (r *Registry) RelationCount(categoryID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCat[categoryID])
}

// Len returns the number of categories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Stats aggregates registry counts.
func (r *Registry) Stats() models.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := models.Stats{
		Total:           len(r.byID),
		FilesByCategory: make(map[string]int, len(r.byID)),
	}

	for id, cat := range r.byID {
		if cat.IsDefault {
			stats.Default++
		} else {
			stats.Custom++
		}
		stats.FilesByCategory[id] = len(r.byCat[id])
	}

	return stats
}
