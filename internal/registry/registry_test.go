package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdelaney/catsync/internal/models"
	"github.com/mdelaney/catsync/internal/registry"
)

func seedRegistry() *registry.Registry {
	r := registry.New()
	r.Rebuild(
		[]models.Category{
			{ID: "c1", Name: "Research", IsDefault: false},
			{ID: "c2", Name: "Archive", IsDefault: true},
			{ID: "c3", Name: "Work"},
		},
		[]models.FileCategoryRelation{
			{FileID: "f1", CategoryID: "c1"},
			{FileID: "f1", CategoryID: "c3"},
			{FileID: "f2", CategoryID: "c1"},
		},
	)
	return r
}

func TestRegistryLookups(t *testing.T) {
	r := seedRegistry()

	t.Run("by id", func(t *testing.T) {
		cat, ok := r.ByID("c1")
		require.True(t, ok)
		assert.Equal(t, "Research", cat.Name)

		_, ok = r.ByID("missing")
		assert.False(t, ok)
	})

	t.Run("by name case-insensitive", func(t *testing.T) {
		cat, ok := r.ByName("research")
		require.True(t, ok)
		assert.Equal(t, "c1", cat.ID)

		cat, ok = r.ByName("  ARCHIVE ")
		require.True(t, ok)
		assert.Equal(t, "c2", cat.ID)
	})

	t.Run("all sorts defaults first", func(t *testing.T) {
		all := r.All()
		require.Len(t, all, 3)
		assert.Equal(t, "c2", all[0].ID)
		assert.Equal(t, "Research", all[1].Name)
		assert.Equal(t, "Work", all[2].Name)
	})
}

func TestRegistryRelations(t *testing.T) {
	r := seedRegistry()

	assert.True(t, r.FileHasCategory("f1", "c1"))
	assert.False(t, r.FileHasCategory("f1", "c2"))

	cats := r.FileCategories("f1")
	require.Len(t, cats, 2)
	assert.Equal(t, "Research", cats[0].Name)
	assert.Equal(t, "Work", cats[1].Name)

	assert.Equal(t, []string{"f1", "f2"}, r.FilesByCategory("c1"))
	assert.Equal(t, 2, r.RelationCount("c1"))
	assert.Equal(t, 0, r.RelationCount("c2"))

	r.DeleteRelation("f1", "c1")
	assert.False(t, r.FileHasCategory("f1", "c1"))
	assert.Equal(t, []string{"f2"}, r.FilesByCategory("c1"))
}

func TestRegistryRename(t *testing.T) {
	r := seedRegistry()

	cat, _ := r.ByID("c1")
	cat.Name = "Deep Research"
	r.PutCategory(*cat)

	_, ok := r.ByName("Research")
	assert.False(t, ok, "old name should be unindexed")

	found, ok := r.ByName("deep research")
	require.True(t, ok)
	assert.Equal(t, "c1", found.ID)
}

func TestRegistryStats(t *testing.T) {
	r := seedRegistry()

	stats := r.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Default)
	assert.Equal(t, 2, stats.Custom)
	assert.Equal(t, 2, stats.FilesByCategory["c1"])
	assert.Equal(t, 0, stats.FilesByCategory["c2"])
	assert.Equal(t, 1, stats.FilesByCategory["c3"])
}

func TestRegistryRebuildSections(t *testing.T) {
	r := seedRegistry()

	r.RebuildCategories([]models.Category{{ID: "c9", Name: "Only"}})
	assert.Equal(t, 1, r.Len())
	// Relations survive a category-section reload.
	assert.True(t, r.FileHasCategory("f1", "c1"))

	r.RebuildRelations(nil)
	assert.False(t, r.FileHasCategory("f1", "c1"))
	assert.Equal(t, 1, r.Len())
}
