// Package model defines the domain entities of the Kestrel task manager
// and their file-based JSON storage.
//
// # Overview
//
// The local dataset is stored as one JSON file per entity:
//
//	areas/{id}.json
//	projects/{id}.json
//	tasks/{id}.json
//
// The structures are flat with last-write-wins semantics: every field is
// written whole on each save, and the sync engine replaces the full field
// set of the corresponding remote record on upsert.
//
// # Entities
//
// An Area groups projects and tasks by reference (id), not containment.
// A Project optionally belongs to an area and carries a deadline and a
// completion state. A Task is the unit of work: scheduling dates,
// priority, tags, checklist, recurrence, and an optional parent link for
// recurrence lineage.
//
// A LearningSnapshot is an opaque versioned blob produced by the
// learned-estimation services. The sync engine persists and restores it
// without interpreting the contents.
//
// # Usage
//
// Creating and writing a task:
//
//	task := model.NewTask("Write report")
//	task.Priority = model.PriorityHigh
//	err := model.WriteTaskFile("tasks", task)
//
// Reading everything back:
//
//	tasks, err := model.ReadAllTaskFiles("tasks")
package model
