package record

import (
	"encoding/json"
	"time"

	"github.com/kestrelapp/kestrel-sync/internal/model"
)

// The mapper is a pure transform. Entity -> record writes every mapped
// field; record -> entity reads defensively, substituting the domain
// default for anything missing or malformed. A record without its
// required name/title cannot represent a valid entity and maps to
// (nil, false), which callers treat as "skip", not as an error.

// wire field names shared by all record types.
const (
	fieldCreatedAt  = "createdAt"
	fieldModifiedAt = "modifiedAt"
)

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func setTimePtr(fields map[string]any, key string, t *time.Time) {
	if t != nil {
		fields[key] = encodeTime(*t)
	}
}

// AreaRecord converts an area to its remote record.
func AreaRecord(a *model.Area) Record {
	fields := map[string]any{
		"name":          a.Name,
		fieldCreatedAt:  encodeTime(a.CreatedAt),
		fieldModifiedAt: encodeTime(time.Now()),
	}
	if a.Icon != "" {
		fields["icon"] = a.Icon
	}
	if a.Color != "" {
		fields["color"] = a.Color
	}
	return Record{Type: TypeArea, ID: a.ID, Fields: fields}
}

// AreaFromRecord converts a record back to an area.
// Returns (nil, false) when the record has no usable name.
func AreaFromRecord(r Record) (*model.Area, bool) {
	name := stringField(r.Fields, "name")
	if name == "" {
		return nil, false
	}
	return &model.Area{
		ID:        r.ID,
		Name:      name,
		Icon:      stringField(r.Fields, "icon"),
		Color:     stringField(r.Fields, "color"),
		CreatedAt: timeField(r.Fields, fieldCreatedAt),
	}, true
}

// ProjectRecord converts a project to its remote record.
func ProjectRecord(p *model.Project) Record {
	fields := map[string]any{
		"name":          p.Name,
		"isCompleted":   completedFlag(p.Completed),
		fieldCreatedAt:  encodeTime(p.CreatedAt),
		fieldModifiedAt: encodeTime(time.Now()),
	}
	if p.Notes != "" {
		fields["notes"] = p.Notes
	}
	if p.Color != "" {
		fields["color"] = p.Color
	}
	if p.Icon != "" {
		fields["icon"] = p.Icon
	}
	if p.AreaID != "" {
		fields["areaID"] = p.AreaID
	}
	setTimePtr(fields, "deadline", p.Deadline)
	setTimePtr(fields, "completionDate", p.CompletedAt)
	return Record{Type: TypeProject, ID: p.ID, Fields: fields}
}

// ProjectFromRecord converts a record back to a project.
// Returns (nil, false) when the record has no usable name.
func ProjectFromRecord(r Record) (*model.Project, bool) {
	name := stringField(r.Fields, "name")
	if name == "" {
		return nil, false
	}
	return &model.Project{
		ID:          r.ID,
		Name:        name,
		Notes:       stringField(r.Fields, "notes"),
		Color:       stringField(r.Fields, "color"),
		Icon:        stringField(r.Fields, "icon"),
		AreaID:      stringField(r.Fields, "areaID"),
		Deadline:    timePtrField(r.Fields, "deadline"),
		Completed:   boolField(r.Fields, "isCompleted"),
		CompletedAt: timePtrField(r.Fields, "completionDate"),
		CreatedAt:   timeField(r.Fields, fieldCreatedAt),
	}, true
}

// TaskRecord converts a task to its remote record. Checklist items and
// the custom recurrence payload are carried as JSON-encoded blobs in a
// single field each.
func TaskRecord(t *model.Task) Record {
	fields := map[string]any{
		"title":         t.Title,
		"isCompleted":   completedFlag(t.Completed),
		"priority":      string(t.Priority),
		fieldCreatedAt:  encodeTime(t.CreatedAt),
		fieldModifiedAt: encodeTime(time.Now()),
	}
	if t.Notes != "" {
		fields["notes"] = t.Notes
	}
	if len(t.Tags) > 0 {
		fields["tags"] = t.Tags
	}
	if t.ProjectID != "" {
		fields["projectID"] = t.ProjectID
	}
	setTimePtr(fields, "completionDate", t.CompletedAt)
	setTimePtr(fields, "dueDate", t.DueDate)
	setTimePtr(fields, "scheduledDate", t.ScheduledDate)
	setTimePtr(fields, "startedAt", t.StartedAt)
	if t.EstimatedDuration > 0 {
		fields["estimatedDuration"] = int64(t.EstimatedDuration / time.Second)
	}
	if t.Recurrence != model.RecurrenceNone {
		fields["recurrenceRule"] = string(t.Recurrence)
	}
	if t.CustomRecurrence != nil {
		if b, err := json.Marshal(t.CustomRecurrence); err == nil {
			fields["customRecurrence"] = b
		}
	}
	if t.ParentTaskID != "" {
		fields["parentTaskId"] = t.ParentTaskID
	}
	if len(t.ChecklistItems) > 0 {
		if b, err := json.Marshal(t.ChecklistItems); err == nil {
			fields["checklistItems"] = b
		}
	}
	return Record{Type: TypeTask, ID: t.ID, Fields: fields}
}

// TaskFromRecord converts a record back to a task.
// Returns (nil, false) when the record has no usable title. Blob fields
// that fail to decode are replaced by their empty defaults; they never
// fail the conversion.
func TaskFromRecord(r Record) (*model.Task, bool) {
	title := stringField(r.Fields, "title")
	if title == "" {
		return nil, false
	}

	task := &model.Task{
		ID:                r.ID,
		Title:             title,
		Notes:             stringField(r.Fields, "notes"),
		Tags:              stringSliceField(r.Fields, "tags"),
		Completed:         boolField(r.Fields, "isCompleted"),
		CompletedAt:       timePtrField(r.Fields, "completionDate"),
		ProjectID:         stringField(r.Fields, "projectID"),
		DueDate:           timePtrField(r.Fields, "dueDate"),
		ScheduledDate:     timePtrField(r.Fields, "scheduledDate"),
		Priority:          model.ParsePriority(stringField(r.Fields, "priority")),
		EstimatedDuration: time.Duration(intField(r.Fields, "estimatedDuration")) * time.Second,
		Recurrence:        model.RecurrenceRule(stringField(r.Fields, "recurrenceRule")),
		ParentTaskID:      stringField(r.Fields, "parentTaskId"),
		StartedAt:         timePtrField(r.Fields, "startedAt"),
		CreatedAt:         timeField(r.Fields, fieldCreatedAt),
	}

	var custom model.CustomRecurrence
	if decodeBlob(r.Fields, "customRecurrence", &custom) {
		task.CustomRecurrence = &custom
	}

	var checklist []model.ChecklistItem
	if decodeBlob(r.Fields, "checklistItems", &checklist) {
		task.ChecklistItems = checklist
	}

	return task, true
}

// SnapshotRecord converts the learning snapshot to its singleton record.
func SnapshotRecord(s *model.LearningSnapshot) Record {
	return Record{
		Type: TypeLearningSnapshot,
		ID:   LearningSnapshotID,
		Fields: map[string]any{
			"data":          s.Data,
			"lastUpdated":   encodeTime(s.LastUpdated),
			"version":       int64(s.Version),
			fieldModifiedAt: encodeTime(time.Now()),
		},
	}
}

// SnapshotFromRecord converts the singleton record back to a snapshot.
// Returns (nil, false) when the record carries no payload.
func SnapshotFromRecord(r Record) (*model.LearningSnapshot, bool) {
	data := bytesField(r.Fields, "data")
	if len(data) == 0 {
		return nil, false
	}
	return &model.LearningSnapshot{
		Data:        data,
		LastUpdated: timeField(r.Fields, "lastUpdated"),
		Version:     int(intField(r.Fields, "version")),
	}, true
}

// MappedFields lists every field the mapper owns for a record type.
// The reconciler clears these before overlaying local values so that a
// field cleared locally disappears remotely instead of going stale;
// fields outside this list (written by newer app versions) survive.
func MappedFields(t RecordType) []string {
	switch t {
	case TypeArea:
		return []string{"name", "icon", "color", fieldCreatedAt, fieldModifiedAt}
	case TypeProject:
		return []string{
			"name", "notes", "color", "icon", "areaID", "deadline",
			"isCompleted", "completionDate", fieldCreatedAt, fieldModifiedAt,
		}
	case TypeTask:
		return []string{
			"title", "notes", "isCompleted", "completionDate", "projectID",
			"tags", "dueDate", "scheduledDate", "priority", "estimatedDuration",
			"recurrenceRule", "customRecurrence", "parentTaskId", "startedAt",
			"checklistItems", fieldCreatedAt, fieldModifiedAt,
		}
	case TypeLearningSnapshot:
		return []string{"data", "lastUpdated", "version", fieldModifiedAt}
	default:
		return nil
	}
}

func completedFlag(done bool) int64 {
	if done {
		return 1
	}
	return 0
}
