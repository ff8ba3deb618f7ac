package writer

import (
	"encoding/json"
	"time"
)

// ManifestEntry describes one archived parquet object.
type ManifestEntry struct {
	Key        string    `json:"key"`
	Exchange   string    `json:"exchange"`
	Pair       string    `json:"pair"`
	Records    int64     `json:"record_count"`
	Bytes      int64     `json:"file_size_in_bytes"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Manifest lists everything one run archived, so downstream readers can
// discover batches without listing the bucket.
type Manifest struct {
	FormatVersion int             `json:"format-version"`
	RunID         string          `json:"run-id"`
	UpdatedAt     time.Time       `json:"updated-at"`
	Entries       []ManifestEntry `json:"entries"`
}

func NewManifest(runID string) *Manifest {
	return &Manifest{
		FormatVersion: 1,
		RunID:         runID,
		Entries:       []ManifestEntry{},
	}
}

func (m *Manifest) Add(entry ManifestEntry) {
	m.Entries = append(m.Entries, entry)
	m.UpdatedAt = time.Now().UTC()
}

func (m *Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
