package download

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pevans/civicfetch/meeting"
)

// ManifestName is the file written next to each meeting's downloads.
const ManifestName = "files.json"

// Manifest records what was discovered for a meeting and when.
type Manifest struct {
	EventID   string         `json:"event_id"`
	Title     string         `json:"title"`
	Date      string         `json:"date,omitempty"`
	URL       string         `json:"url"`
	Files     []meeting.File `json:"files"`
	WrittenAt time.Time      `json:"written_at"`
}

// WriteManifest saves the meeting's file records into dir.
func WriteManifest(dir string, m meeting.Meeting) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create meeting directory: %w", err)
	}

	man := Manifest{
		EventID:   m.ID,
		Title:     m.Title,
		URL:       m.URL,
		Files:     m.Files,
		WrittenAt: time.Now().UTC(),
	}
	if m.Date != nil {
		man.Date = m.DateString()
	}
	if man.Files == nil {
		man.Files = []meeting.File{}
	}

	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest from dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &man, nil
}
