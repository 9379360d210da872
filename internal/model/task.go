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

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityASAP   Priority = "asap"
)

// ParsePriority maps a stored priority string to a Priority.
// Unknown or empty values default to PriorityNone, never an error.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityASAP:
		return Priority(s)
	default:
		return PriorityNone
	}
}

// RecurrenceRule is the repeat schedule of a task.
// The empty string means the task does not recur.
type RecurrenceRule string

const (
	RecurrenceNone     RecurrenceRule = ""
	RecurrenceDaily    RecurrenceRule = "daily"
	RecurrenceWeekdays RecurrenceRule = "weekdays"
	RecurrenceWeekly   RecurrenceRule = "weekly"
	RecurrenceBiweekly RecurrenceRule = "biweekly"
	RecurrenceMonthly  RecurrenceRule = "monthly"
	RecurrenceYearly   RecurrenceRule = "yearly"
	RecurrenceCustom   RecurrenceRule = "custom"
)

// CustomRecurrence is the payload for RecurrenceCustom rules.
type CustomRecurrence struct {
	// Interval is the repeat step, e.g. every 3 units.
	Interval int `json:"interval"`
	// Unit is one of day, week, month, year.
	Unit string `json:"unit"`
	// Weekdays restricts weekly rules to specific days (0=Sunday).
	Weekdays []int `json:"weekdays,omitempty"`
}

// ChecklistItem is a sub-step inside a task.
type ChecklistItem struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Task represents a single unit of work stored as tasks/{id}.json.
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`

	Tags []string `json:"tags,omitempty"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ProjectID is a weak reference; the referenced project may not
	// exist locally after a partial sync.
	ProjectID string `json:"project_id,omitempty"`

	DueDate       *time.Time `json:"due_date,omitempty"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	Priority      Priority   `json:"priority"`

	// EstimatedDuration is the learned or user-set estimate; zero means unset.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`

	Recurrence       RecurrenceRule    `json:"recurrence,omitempty"`
	CustomRecurrence *CustomRecurrence `json:"custom_recurrence,omitempty"`

	// ParentTaskID links a recurring instance back to its template task.
	ParentTaskID string `json:"parent_task_id,omitempty"`

	ChecklistItems []ChecklistItem `json:"checklist_items,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewTask creates a task with a fresh id and creation timestamp.
func NewTask(title string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Title:     title,
		Priority:  PriorityNone,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks that the task has the fields every consumer relies on.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityNone
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
}

// Filename returns the canonical filename for this task: {id}.json
func (t *Task) Filename() string {
	return fmt.Sprintf("%s.json", t.ID)
}

// ReadTaskFile reads and parses a task JSON file from the given path.
func ReadTaskFile(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file %s: %w", path, err)
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	task.SetDefaults()

	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task file %s: %w", path, err)
	}

	return &task, nil
}

// WriteTaskFile writes a task to tasksDir/{id}.json as pretty-printed JSON.
func WriteTaskFile(tasksDir string, task *Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid task: %w", err)
	}

	if err := os.MkdirAll(tasksDir, 0755); err != nil {
		return fmt.Errorf("failed to create tasks directory: %w", err)
	}

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}

	path := filepath.Join(tasksDir, task.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write task file %s: %w", path, err)
	}

	return nil
}

// ReadAllTaskFiles reads all task files from the given directory.
// Invalid files are skipped with a warning to stderr; a missing
// directory yields an empty slice.
func ReadAllTaskFiles(tasksDir string) ([]*Task, error) {
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Task{}, nil
		}
		return nil, fmt.Errorf("failed to read tasks directory: %w", err)
	}

	var tasks []*Task
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(tasksDir, entry.Name())
		task, err := ReadTaskFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid task file %s: %v\n", entry.Name(), err)
			continue
		}

		tasks = append(tasks, task)
	}

	return tasks, nil
}
