package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/tasktracker/internal/apperror"
	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
)

const tasksTable = "tasks"

// TaskRepository owns the mutable fields of tasks. It holds no connection:
// every method runs on the handle it is given.
type TaskRepository struct {
	now func() time.Time
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{now: time.Now}
}

// Types for repository input
type TaskInput struct {
	Title        string
	Description  string
	Status       models.TaskStatus
	Deadline     *time.Time
	Urgent       bool
	AssignedTo   int64
	SecondaryID  *int64
	TertiaryID   *int64
	SubjectOwner *string
	CreatedBy    int64
	// CompletedAt is only used when Status is done.
	CompletedAt *time.Time

	FormDate     *time.Time
	Region       *string
	City         *string
	Municipality *string
	Department   *string
	Archive      string
	GivenDate    *time.Time
	Subject      *string
}

// TaskUpdateInput is a partial update. Nil fields keep their stored value.
// A zero SecondaryID/TertiaryID or an empty SubjectOwner clears the column.
type TaskUpdateInput struct {
	Title         *string
	Description   *string
	Deadline      *time.Time
	ClearDeadline bool
	Urgent        *bool
	AssignedTo    *int64
	SecondaryID   *int64
	TertiaryID    *int64
	SubjectOwner  *string

	FormDate     *time.Time
	Region       *string
	City         *string
	Municipality *string
	Department   *string
	Archive      *string
	GivenDate    *time.Time
	Subject      *string
}

type ListFilter struct {
	Status *models.TaskStatus
	Urgent *bool
	// InvolvingID restricts the result to tasks the identity controls.
	InvolvingID int64
	Search      string
	Limit       int
	Offset      int
}

// Create inserts a task and returns its id. Status defaults to pending.
func (r *TaskRepository) Create(ctx context.Context, q database.Queryer, t *TaskInput) (int64, error) {
	status := t.Status
	if status == "" {
		status = models.TaskStatusPending
	}
	if !status.IsValid() {
		return 0, apperror.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	archive := t.Archive
	if archive == "" {
		archive = models.ArchiveNo
	}

	now := r.now().UTC()
	var completedAt any
	if status.IsDone() {
		completedAt = completionTime(t.CompletedAt, now)
	}

	query, args := database.Builder(q).
		Insert(tasksTable).
		Columns(
			"title", "description", "status", "deadline", "created_at", "completed_at", "urgent",
			"assigned_to", "secondary_id", "tertiary_id", "subject_owner", "created_by",
			"form_date", "region", "city", "municipality", "department", "archive", "given_date", "task_subject",
		).
		Values(
			t.Title, t.Description, string(status), nullableTime(t.Deadline), now, completedAt, t.Urgent,
			t.AssignedTo, nullableID(t.SecondaryID), nullableID(t.TertiaryID), subjectOwnerValue(t.SubjectOwner), positiveID(t.CreatedBy),
			nullableTime(t.FormDate), nullableText(t.Region), nullableText(t.City), nullableText(t.Municipality),
			nullableText(t.Department), archive, nullableTime(t.GivenDate), nullableText(t.Subject),
		).
		Returning("id").
		Query()

	var id int64
	if err := q.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, database.Classify(fmt.Errorf("insert task: %w", err))
	}
	return id, nil
}

func (r *TaskRepository) Get(ctx context.Context, q database.Queryer, id int64) (*models.Task, error) {
	return r.get(ctx, q, id, false)
}

// GetForUpdate reads the task and, on PostgreSQL, holds a row lock until the
// surrounding transaction ends. SQLite transactions are opened with an
// immediate write lock instead.
func (r *TaskRepository) GetForUpdate(ctx context.Context, q database.Queryer, id int64) (*models.Task, error) {
	return r.get(ctx, q, id, true)
}

func (r *TaskRepository) get(ctx context.Context, q database.Queryer, id int64, lock bool) (*models.Task, error) {
	b := database.Builder(q)
	selector := b.Select().From(b.Table(tasksTable)).Where(entsql.EQ("id", id))
	if lock && database.IsPostgres(q) {
		selector.ForUpdate()
	}
	if err := selector.Err(); err != nil {
		return nil, fmt.Errorf("build task query: %w", err)
	}

	query, args := selector.Query()
	var task models.Task
	if err := q.GetContext(ctx, &task, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundf("task %d", id)
		}
		return nil, database.Classify(fmt.Errorf("get task: %w", err))
	}
	return &task, nil
}

// UpdateFields applies a partial update. Status and completion time are not
// touched here; see SetStatus.
func (r *TaskRepository) UpdateFields(ctx context.Context, q database.Queryer, id int64, in *TaskUpdateInput) error {
	update := database.Builder(q).Update(tasksTable).Where(entsql.EQ("id", id))
	changed := 0
	set := func(column string, value any) {
		update.Set(column, value)
		changed++
	}
	setNull := func(column string) {
		update.SetNull(column)
		changed++
	}

	if in.Title != nil {
		set("title", *in.Title)
	}
	if in.Description != nil {
		set("description", *in.Description)
	}
	if in.ClearDeadline {
		setNull("deadline")
	} else if in.Deadline != nil {
		set("deadline", in.Deadline.UTC())
	}
	if in.Urgent != nil {
		set("urgent", *in.Urgent)
	}
	if in.AssignedTo != nil {
		set("assigned_to", *in.AssignedTo)
	}
	for column, value := range map[string]*int64{"secondary_id": in.SecondaryID, "tertiary_id": in.TertiaryID} {
		switch {
		case value == nil:
		case *value <= 0:
			setNull(column)
		default:
			set(column, *value)
		}
	}
	if in.SubjectOwner != nil {
		if owner := subjectOwnerValue(in.SubjectOwner); owner == nil {
			setNull("subject_owner")
		} else {
			set("subject_owner", owner)
		}
	}
	for column, value := range map[string]*time.Time{"form_date": in.FormDate, "given_date": in.GivenDate} {
		if value != nil {
			set(column, value.UTC())
		}
	}
	for column, value := range map[string]*string{
		"region":       in.Region,
		"city":         in.City,
		"municipality": in.Municipality,
		"department":   in.Department,
		"archive":      in.Archive,
		"task_subject": in.Subject,
	} {
		if value != nil {
			set(column, *value)
		}
	}

	if changed == 0 {
		_, err := r.Get(ctx, q, id)
		return err
	}

	query, args := update.Query()
	return r.execOne(ctx, q, id, "update task", query, args)
}

// SetStatus changes the status and keeps completed_at in step with it: a done
// task carries the manual completion time, or now when none is given, and any
// other status clears it.
func (r *TaskRepository) SetStatus(ctx context.Context, q database.Queryer, id int64, status models.TaskStatus, completedAt *time.Time) error {
	if !status.IsValid() {
		return apperror.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	update := database.Builder(q).
		Update(tasksTable).
		Set("status", string(status)).
		Where(entsql.EQ("id", id))
	if status.IsDone() {
		update.Set("completed_at", completionTime(completedAt, r.now()))
	} else {
		update.SetNull("completed_at")
	}

	query, args := update.Query()
	return r.execOne(ctx, q, id, "set task status", query, args)
}

// Delete removes the task after its files, history and notifications. Run it
// inside a transaction so the cleanup is all-or-nothing.
func (r *TaskRepository) Delete(ctx context.Context, q database.Queryer, id int64) error {
	b := database.Builder(q)
	dependents := []struct {
		table  string
		column string
	}{
		{table: taskFilesTable, column: "task_id"},
		{table: taskUpdatesTable, column: "task_id"},
		{table: notificationsTable, column: "related_task_id"},
	}

	for _, d := range dependents {
		query, args := b.Delete(d.table).Where(entsql.EQ(d.column, id)).Query()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return database.Classify(fmt.Errorf("delete %s of task %d: %w", d.table, id, err))
		}
	}

	query, args := b.Delete(tasksTable).Where(entsql.EQ("id", id)).Query()
	return r.execOne(ctx, q, id, "delete task", query, args)
}

// List returns one page of tasks, newest first, and the total match count.
func (r *TaskRepository) List(ctx context.Context, q database.Queryer, filter ListFilter) ([]*models.Task, int, error) {
	b := database.Builder(q)

	// Predicates are rebuilt per statement since they carry their own args.
	where := func() *entsql.Predicate {
		var predicates []*entsql.Predicate
		if filter.Status != nil {
			predicates = append(predicates, entsql.EQ("status", string(*filter.Status)))
		}
		if filter.Urgent != nil {
			predicates = append(predicates, entsql.EQ("urgent", *filter.Urgent))
		}
		if filter.InvolvingID > 0 {
			predicates = append(predicates, involving(filter.InvolvingID))
		}
		if search := strings.TrimSpace(filter.Search); search != "" {
			predicates = append(predicates, entsql.ContainsFold("title", search))
		}
		if len(predicates) == 0 {
			return nil
		}
		return entsql.And(predicates...)
	}

	countSelector := b.Select(entsql.Count("*")).From(b.Table(tasksTable))
	if p := where(); p != nil {
		countSelector.Where(p)
	}
	query, args := countSelector.Query()

	var totalCount int
	if err := q.GetContext(ctx, &totalCount, query, args...); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("count tasks: %w", err))
	}

	selector := b.Select().From(b.Table(tasksTable)).OrderBy(entsql.Desc("created_at"), entsql.Desc("id"))
	if p := where(); p != nil {
		selector.Where(p)
	}
	if filter.Limit > 0 {
		selector.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		selector.Offset(filter.Offset)
	}
	query, args = selector.Query()

	var tasks []*models.Task
	if err := q.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, database.Classify(fmt.Errorf("list tasks: %w", err))
	}

	return tasks, totalCount, nil
}

// Stats counts every task by status and urgency and finds the user with the
// most assignments, lowest id winning ties. Username is left for the caller.
func (r *TaskRepository) Stats(ctx context.Context, q database.Queryer) (*models.TaskStats, error) {
	b := database.Builder(q)
	stats := &models.TaskStats{ByStatus: make(map[models.TaskStatus]int, len(models.AllStatuses()))}
	for _, s := range models.AllStatuses() {
		stats.ByStatus[s] = 0
	}

	query, args := b.Select("status", entsql.Count("*")).
		From(b.Table(tasksTable)).
		GroupBy("status").
		Query()
	err := scanGroups(ctx, q, query, args, func(rows *sqlx.Rows) error {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		stats.ByStatus[models.TaskStatus(status)] = n
		stats.Total += n
		return nil
	})
	if err != nil {
		return nil, database.Classify(fmt.Errorf("count tasks by status: %w", err))
	}

	query, args = b.Select(entsql.Count("*")).
		From(b.Table(tasksTable)).
		Where(entsql.EQ("urgent", true)).
		Query()
	if err := q.GetContext(ctx, &stats.Urgent, query, args...); err != nil {
		return nil, database.Classify(fmt.Errorf("count urgent tasks: %w", err))
	}

	query, args = b.Select("assigned_to", entsql.Count("*")).
		From(b.Table(tasksTable)).
		GroupBy("assigned_to").
		Query()
	err = scanGroups(ctx, q, query, args, func(rows *sqlx.Rows) error {
		var top models.AssigneeCount
		if err := rows.Scan(&top.UserID, &top.Tasks); err != nil {
			return err
		}
		best := stats.TopAssignee
		if best == nil || top.Tasks > best.Tasks || (top.Tasks == best.Tasks && top.UserID < best.UserID) {
			stats.TopAssignee = &top
		}
		return nil
	})
	if err != nil {
		return nil, database.Classify(fmt.Errorf("count tasks by assignee: %w", err))
	}

	return stats, nil
}

func scanGroups(ctx context.Context, q database.Queryer, query string, args []any, scan func(*sqlx.Rows) error) error {
	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// involving matches tasks where id appears in any controlling field. Subject
// owners are written in canonical form, see subjectOwnerValue.
func involving(id int64) *entsql.Predicate {
	return entsql.Or(
		entsql.EQ("assigned_to", id),
		entsql.EQ("secondary_id", id),
		entsql.EQ("tertiary_id", id),
		entsql.EQ("created_by", id),
		entsql.EQ("subject_owner", strconv.FormatInt(id, 10)),
	)
}

// execOne runs a statement that must affect the task row, mapping zero
// affected rows to NotFound.
func (r *TaskRepository) execOne(ctx context.Context, q database.Queryer, id int64, op, query string, args []any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return database.Classify(fmt.Errorf("%s: %w", op, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return database.Classify(fmt.Errorf("%s: %w", op, err))
	}
	if n == 0 {
		return apperror.NotFoundf("task %d", id)
	}
	return nil
}

func completionTime(manual *time.Time, now time.Time) time.Time {
	if manual != nil && !manual.IsZero() {
		return manual.UTC()
	}
	return now.UTC()
}
