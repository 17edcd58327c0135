package models

import "time"

// CurrentSnapshotVersion is the export format version.
const CurrentSnapshotVersion = 1

// FileRelations groups the category ids assigned to one file.
type FileRelations struct {
	FileID      string   `json:"file_id"`
	CategoryIDs []string `json:"category_ids"`
}

// Snapshot is the full-state export/import format.
type Snapshot struct {
	Version    int             `json:"version"`
	Timestamp  time.Time       `json:"timestamp"`
	Categories []Category      `json:"categories"`
	Relations  []FileRelations `json:"relations"`
	Stats      Stats           `json:"stats"`
}

// Validate checks version compatibility before an import is applied.
func (s *Snapshot) Validate() error {
	if s.Version != CurrentSnapshotVersion {
		return ErrSnapshotVersion
	}
	for i := range s.Categories {
		if err := s.Categories[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
