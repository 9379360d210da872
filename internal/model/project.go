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

// Project represents a multi-task effort stored as projects/{id}.json.
type Project struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Notes string `json:"notes,omitempty"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`

	// AreaID is a weak reference to the owning area, if any.
	AreaID string `json:"area_id,omitempty"`

	Deadline *time.Time `json:"deadline,omitempty"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewProject creates a project with a fresh id and creation timestamp.
func NewProject(name string) *Project {
	return &Project{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks that the project has the fields every consumer relies on.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// Filename returns the canonical filename for this project: {id}.json
func (p *Project) Filename() string {
	return fmt.Sprintf("%s.json", p.ID)
}

// ReadProjectFile reads and parses a project JSON file from the given path.
func ReadProjectFile(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file %s: %w", path, err)
	}

	var project Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, err)
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = time.Now().UTC()
	}

	if err := project.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project file %s: %w", path, err)
	}

	return &project, nil
}

// WriteProjectFile writes a project to projectsDir/{id}.json.
func WriteProjectFile(projectsDir string, project *Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid project: %w", err)
	}

	if err := os.MkdirAll(projectsDir, 0755); err != nil {
		return fmt.Errorf("failed to create projects directory: %w", err)
	}

	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project %s: %w", project.ID, err)
	}

	path := filepath.Join(projectsDir, project.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write project file %s: %w", path, err)
	}

	return nil
}

// ReadAllProjectFiles reads all project files from the given directory.
// Invalid files are skipped with a warning to stderr.
func ReadAllProjectFiles(projectsDir string) ([]*Project, error) {
	entries, err := os.ReadDir(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Project{}, nil
		}
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}

	var projects []*Project
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(projectsDir, entry.Name())
		project, err := ReadProjectFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid project file %s: %v\n", entry.Name(), err)
			continue
		}

		projects = append(projects, project)
	}

	return projects, nil
}
