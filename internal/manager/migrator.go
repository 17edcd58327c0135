package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mdelaney/catsync/internal/events"
	"github.com/mdelaney/catsync/internal/models"
)

// LegacyRecord is the flat pre-v1 category shape. Fields the old
// format did not track are normalized in during migration.
type LegacyRecord struct {
	LegacyID string `json:"legacy_id"`
	Name     string `json:"name"`
	Colour   string `json:"colour"`
	Emoji    string `json:"emoji"`
}

// legacyPalette fills in colors the old format omitted.
var legacyPalette = []string{
	"#4A90D9", "#7B61C4", "#2BA84A", "#E2902B", "#D95970", "#8A8F98",
}

// LegacyMigrator imports a pre-v1 category export through the
// manager's create path. Migration is idempotent: records whose id
// already exists are skipped, and name collisions merge into the
// existing category instead of erroring.
type LegacyMigrator struct {
	path   string
	logger *events.Logger
}

// NewLegacyMigrator creates a migrator for the given export file.
func NewLegacyMigrator(path string, logger *events.Logger) *LegacyMigrator {
	return &LegacyMigrator{
		path:   path,
		logger: logger.WithField("component", "legacy_migrator"),
	}
}

// Load reads the legacy export. A missing file means nothing to
// migrate.
func (lm *LegacyMigrator) Load() ([]LegacyRecord, error) {
	data, err := os.ReadFile(lm.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read legacy export: %w", err)
	}

	var records []LegacyRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse legacy export: %w", err)
	}

	return records, nil
}

// Normalize maps a legacy record onto the current category shape,
// filling defaults for fields the old format lacked.
func (r *LegacyRecord) Normalize(ordinal int) CategoryInput {
	input := CategoryInput{
		Name:  strings.TrimSpace(r.Name),
		Color: r.Colour,
		Icon:  r.Emoji,
	}

	if r.LegacyID != "" {
		input.ID = "legacy-" + r.LegacyID
	}
	if input.Color == "" {
		input.Color = legacyPalette[ordinal%len(legacyPalette)]
	}
	if input.Icon == "" {
		input.Icon = "tag"
	}

	return input
}

// Migrate runs legacy migration from an explicit path.
func (m *Manager) Migrate(ctx context.Context, path string) (int, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if !m.initialized {
		return 0, models.ErrNotInitialized
	}

	prev := m.legacyFile
	m.legacyFile = path
	defer func() { m.legacyFile = prev }()

	return m.migrateLocked(ctx)
}

// runMigration is the initialize-time hook; writeMu is already held.
func (m *Manager) runMigration(ctx context.Context) error {
	_, err := m.migrateLocked(ctx)
	return err
}

func (m *Manager) migrateLocked(ctx context.Context) (int, error) {
	lm := NewLegacyMigrator(m.legacyFile, m.logger)

	records, err := lm.Load()
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	migrated := 0
	for i, rec := range records {
		input := rec.Normalize(i)
		if input.Name == "" {
			lm.logger.WithField("legacy_id", rec.LegacyID).Warn("Skipping unnamed legacy category")
			continue
		}

		// Id presence means a previous run already imported this
		// record.
		if input.ID != "" {
			if _, ok := m.reg.ByID(input.ID); ok {
				continue
			}
		}

		if _, err := m.createCategory(ctx, input, true); err != nil {
			return migrated, fmt.Errorf("migrate %q: %w", input.Name, err)
		}
		migrated++
	}

	m.bus.Publish(events.Event{Type: events.MigrationComplete, Migrated: migrated})
	lm.logger.WithFields(map[string]interface{}{
		"records":  len(records),
		"migrated": migrated,
	}).Info("Legacy migration complete")

	return migrated, nil
}
