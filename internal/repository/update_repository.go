package repository

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
)

const (
	taskUpdatesTable = "task_updates"
	taskFilesTable   = "task_files"
)

// UpdateRepository stores the append-only history of a task and the files
// attached along the way.
type UpdateRepository struct {
	now func() time.Time
}

func NewUpdateRepository() *UpdateRepository {
	return &UpdateRepository{now: time.Now}
}

// Append records a history entry. A nil status stores a note-only entry.
func (r *UpdateRepository) Append(ctx context.Context, q database.Queryer, taskID, userID int64, status *models.TaskStatus, note string) (int64, error) {
	var statusValue any
	if status != nil {
		statusValue = string(*status)
	}

	query, args := database.Builder(q).
		Insert(taskUpdatesTable).
		Columns("task_id", "user_id", "status", "note", "created_at").
		Values(taskID, userID, statusValue, nullableText(&note), r.now().UTC()).
		Returning("id").
		Query()

	var id int64
	if err := q.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, database.Classify(fmt.Errorf("insert task update: %w", err))
	}
	return id, nil
}

// ListByTask returns the history of a task, oldest first, with actor names.
func (r *UpdateRepository) ListByTask(ctx context.Context, q database.Queryer, taskID int64) ([]*models.TaskUpdate, error) {
	b := database.Builder(q)
	u := b.Table(taskUpdatesTable).As("u")
	actors := b.Table(usersTable).As("a")

	query, args := b.Select(
		u.C("id"), u.C("task_id"), u.C("user_id"), u.C("status"), u.C("note"), u.C("created_at"),
		entsql.As(actors.C("username"), "actor_name"),
	).
		From(u).
		LeftJoin(actors).On(u.C("user_id"), actors.C("id")).
		Where(entsql.EQ(u.C("task_id"), taskID)).
		OrderBy(u.C("created_at"), u.C("id")).
		Query()

	var updates []*models.TaskUpdate
	if err := q.SelectContext(ctx, &updates, query, args...); err != nil {
		return nil, database.Classify(fmt.Errorf("list task updates: %w", err))
	}
	return updates, nil
}

// AttachFiles records the association of stored files with a task and, when
// updateID is set, with the history entry they arrived with.
func (r *UpdateRepository) AttachFiles(ctx context.Context, q database.Queryer, taskID int64, updateID *int64, uploaderID int64, files []models.FileRef) error {
	if len(files) == 0 {
		return nil
	}

	now := r.now().UTC()
	insert := database.Builder(q).
		Insert(taskFilesTable).
		Columns("task_id", "update_id", "uploader_id", "filename", "original_name", "mime_type", "uploaded_at")
	for _, f := range files {
		insert.Values(taskID, nullableID(updateID), uploaderID, f.Filename, f.OriginalName, nullableText(&f.MimeType), now)
	}

	query, args := insert.Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return database.Classify(fmt.Errorf("insert task files: %w", err))
	}
	return nil
}

// ListFiles returns the files attached to a task in upload order.
func (r *UpdateRepository) ListFiles(ctx context.Context, q database.Queryer, taskID int64) ([]*models.TaskFile, error) {
	b := database.Builder(q)
	query, args := b.Select().
		From(b.Table(taskFilesTable)).
		Where(entsql.EQ("task_id", taskID)).
		OrderBy("uploaded_at", "id").
		Query()

	var files []*models.TaskFile
	if err := q.SelectContext(ctx, &files, query, args...); err != nil {
		return nil, database.Classify(fmt.Errorf("list task files: %w", err))
	}
	return files, nil
}
