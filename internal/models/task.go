package models

import (
	"database/sql"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task status constants
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusImportant  TaskStatus = "important"
)

// ArchiveNo is the archive flag of a task that has not been archived.
const ArchiveNo = "NO"

var statusLabels = map[TaskStatus]string{
	TaskStatusPending:    "Pending",
	TaskStatusInProgress: "In Progress",
	TaskStatusDone:       "Done",
	TaskStatusImportant:  "Important",
}

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the human readable status name used in notification messages.
func (s TaskStatus) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// IsDone reports whether s is the done state, the only status that carries a
// completion time.
func (s TaskStatus) IsDone() bool {
	return s == TaskStatusDone
}

// AllStatuses lists every status in display order.
func AllStatuses() []TaskStatus {
	return []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusDone, TaskStatusImportant}
}

type Task struct {
	ID           int64          `db:"id"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	Status       TaskStatus     `db:"status"`
	Deadline     sql.NullTime   `db:"deadline"`
	CreatedAt    time.Time      `db:"created_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	Urgent       bool           `db:"urgent"`
	AssignedTo   int64          `db:"assigned_to"`
	SecondaryID  sql.NullInt64  `db:"secondary_id"`
	TertiaryID   sql.NullInt64  `db:"tertiary_id"`
	SubjectOwner sql.NullString `db:"subject_owner"`
	CreatedBy    sql.NullInt64  `db:"created_by"`

	FormDate     sql.NullTime   `db:"form_date"`
	Region       sql.NullString `db:"region"`
	City         sql.NullString `db:"city"`
	Municipality sql.NullString `db:"municipality"`
	Department   sql.NullString `db:"department"`
	Archive      string         `db:"archive"`
	GivenDate    sql.NullTime   `db:"given_date"`
	Subject      sql.NullString `db:"task_subject"`
}

// DeadlinePtr returns the deadline or nil when unset.
func (t *Task) DeadlinePtr() *time.Time {
	if !t.Deadline.Valid {
		return nil
	}
	d := t.Deadline.Time
	return &d
}
