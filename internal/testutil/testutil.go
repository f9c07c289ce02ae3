// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
)

// NewTestDB opens a private in-memory SQLite database with the full schema.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver: dialect.SQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", uuid.NewString()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

// CreateUser inserts a user and returns its id. An empty email stores NULL.
func CreateUser(t *testing.T, db *sqlx.DB, username string, role models.Role, email string) int64 {
	t.Helper()

	var mail any
	if email != "" {
		mail = email
	}

	query, args := database.Builder(db).
		Insert("users").
		Columns("username", "role", "email", "created_at").
		Values(username, string(role), mail, time.Now().UTC()).
		Returning("id").
		Query()

	var id int64
	require.NoError(t, db.QueryRowxContext(context.Background(), query, args...).Scan(&id))
	return id
}

// TaskFixture describes the responsibility fields of a seeded task.
type TaskFixture struct {
	Title        string
	Status       models.TaskStatus
	AssignedTo   int64
	SecondaryID  int64
	TertiaryID   int64
	SubjectOwner string
	CreatedBy    int64
}

// CreateTask inserts a task directly, bypassing the workflow.
func CreateTask(t *testing.T, db *sqlx.DB, f TaskFixture) int64 {
	t.Helper()

	if f.Title == "" {
		f.Title = "Inspect water line"
	}
	if f.Status == "" {
		f.Status = models.TaskStatusPending
	}

	var completedAt any
	if f.Status.IsDone() {
		completedAt = time.Now().UTC()
	}

	query, args := database.Builder(db).
		Insert("tasks").
		Columns("title", "description", "status", "created_at", "completed_at", "urgent", "archive",
			"assigned_to", "secondary_id", "tertiary_id", "subject_owner", "created_by").
		Values(f.Title, "", string(f.Status), time.Now().UTC(), completedAt, false, models.ArchiveNo,
			f.AssignedTo, optionalID(f.SecondaryID), optionalID(f.TertiaryID), optionalText(f.SubjectOwner), optionalID(f.CreatedBy)).
		Returning("id").
		Query()

	var id int64
	require.NoError(t, db.QueryRowxContext(context.Background(), query, args...).Scan(&id))
	return id
}

// CountRows returns the number of rows in table matching column = value.
func CountRows(t *testing.T, db *sqlx.DB, table, column string, value any) int {
	t.Helper()

	var n int
	err := db.GetContext(context.Background(), &n,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", table, column), value)
	require.NoError(t, err)
	return n
}

func optionalID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}

func optionalText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
