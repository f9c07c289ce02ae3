package models

import (
	"database/sql"
	"time"
)

// TaskUpdate is one append-only history entry of a task.
type TaskUpdate struct {
	ID        int64          `db:"id"`
	TaskID    int64          `db:"task_id"`
	UserID    int64          `db:"user_id"`
	Status    sql.NullString `db:"status"`
	Note      sql.NullString `db:"note"`
	CreatedAt time.Time      `db:"created_at"`

	// ActorName is filled by joined reads only.
	ActorName sql.NullString `db:"actor_name"`
}

// TaskFile is the association between a stored attachment and a task.
type TaskFile struct {
	ID           int64          `db:"id"`
	TaskID       int64          `db:"task_id"`
	UpdateID     sql.NullInt64  `db:"update_id"`
	UploaderID   int64          `db:"uploader_id"`
	Filename     string         `db:"filename"`
	OriginalName string         `db:"original_name"`
	MimeType     sql.NullString `db:"mime_type"`
	UploadedAt   time.Time      `db:"uploaded_at"`
}

// FileRef is a reference handed back by file storage for an uploaded attachment.
type FileRef struct {
	Filename     string
	OriginalName string
	MimeType     string
}
