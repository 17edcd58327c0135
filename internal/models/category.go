package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// Category is a user-defined grouping for local documents.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Icon      string    `json:"icon"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the category for structural problems.
func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.ContainsAny(c.ID, "\x1f\n") {
		return &ValidationError{Field: "id", Reason: "contains control characters"}
	}
	return nil
}

// Clone returns a copy so callers cannot mutate registry state.
func (c *Category) Clone() *Category {
	cp := *c
	return &cp
}

// NewID generates a category id.
func NewID() string {
	return uuid.NewString()
}

// FoldName normalizes a category name for case-insensitive comparison.
// Uses Unicode case folding rather than ASCII lowering.
func FoldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// FileCategoryRelation links a file to a category.
type FileCategoryRelation struct {
	FileID     string    `json:"file_id"`
	CategoryID string    `json:"category_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// relationKeySep separates the key components. Unit separator keeps
// keys unambiguous for arbitrary file ids.
const relationKeySep = "\x1f"

// RelationKey builds the composite key for a (file, category) pair.
func RelationKey(fileID, categoryID string) string {
	return fileID + relationKeySep + categoryID
}

// Key returns the relation's composite key.
func (r *FileCategoryRelation) Key() string {
	return RelationKey(r.FileID, r.CategoryID)
}

// SplitRelationKey decomposes a composite relation key.
func SplitRelationKey(key string) (fileID, categoryID string, ok bool) {
	fileID, categoryID, ok = strings.Cut(key, relationKeySep)
	return
}

// Stats summarizes registry contents.
type Stats struct {
	Total           int            `json:"total"`
	Default         int            `json:"default"`
	Custom          int            `json:"custom"`
	FilesByCategory map[string]int `json:"files_by_category"`
}

// DefaultCategories returns the seed set. IDs are fixed so reseeding
// after a reset or on a second device converges on the same records.
func DefaultCategories() []Category {
	return []Category{
		{ID: "default-documents", Name: "Documents", Color: "#4A90D9", Icon: "file-text", IsDefault: true},
		{ID: "default-images", Name: "Images", Color: "#7B61C4", Icon: "image", IsDefault: true},
		{ID: "default-research", Name: "Research", Color: "#2BA84A", Icon: "flask", IsDefault: true},
		{ID: "default-work", Name: "Work", Color: "#E2902B", Icon: "briefcase", IsDefault: true},
		{ID: "default-personal", Name: "Personal", Color: "#D95970", Icon: "home", IsDefault: true},
		{ID: "default-archive", Name: "Archive", Color: "#8A8F98", Icon: "archive", IsDefault: true},
	}
}
