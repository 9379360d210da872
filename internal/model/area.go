package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Area represents a life area (e.g. Work, Home) stored as areas/{id}.json.
// Areas own projects and tasks by reference only.
type Area struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewArea creates an area with a fresh id and creation timestamp.
func NewArea(name string) *Area {
	return &Area{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks that the area has the fields every consumer relies on.
func (a *Area) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	if a.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// Filename returns the canonical filename for this area: {id}.json
func (a *Area) Filename() string {
	return fmt.Sprintf("%s.json", a.ID)
}

// ReadAreaFile reads and parses an area JSON file from the given path.
func ReadAreaFile(path string) (*Area, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read area file %s: %w", path, err)
	}

	var area Area
	if err := json.Unmarshal(data, &area); err != nil {
		return nil, fmt.Errorf("failed to parse area file %s: %w", path, err)
	}
	if area.CreatedAt.IsZero() {
		area.CreatedAt = time.Now().UTC()
	}

	if err := area.Validate(); err != nil {
		return nil, fmt.Errorf("invalid area file %s: %w", path, err)
	}

	return &area, nil
}

// WriteAreaFile writes an area to areasDir/{id}.json.
func WriteAreaFile(areasDir string, area *Area) error {
	if err := area.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid area: %w", err)
	}

	if err := os.MkdirAll(areasDir, 0755); err != nil {
		return fmt.Errorf("failed to create areas directory: %w", err)
	}

	data, err := json.MarshalIndent(area, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal area %s: %w", area.ID, err)
	}

	path := filepath.Join(areasDir, area.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write area file %s: %w", path, err)
	}

	return nil
}

// ReadAllAreaFiles reads all area files from the given directory.
// Invalid files are skipped with a warning to stderr.
func ReadAllAreaFiles(areasDir string) ([]*Area, error) {
	entries, err := os.ReadDir(areasDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Area{}, nil
		}
		return nil, fmt.Errorf("failed to read areas directory: %w", err)
	}

	var areas []*Area
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(areasDir, entry.Name())
		area, err := ReadAreaFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid area file %s: %v\n", entry.Name(), err)
			continue
		}

		areas = append(areas, area)
	}

	return areas, nil
}
