package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/gurkanbulca/tasktracker/internal/apperror"
	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
)

const usersTable = "users"

// UserRepository is the identity directory: who exists, their role and
// where to email them.
type UserRepository struct {
	now func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{now: time.Now}
}

// UserInput holds the fields of a new user.
type UserInput struct {
	Username     string
	PasswordHash string
	Role         models.Role
	Email        string
}

func (r *UserRepository) Create(ctx context.Context, q database.Queryer, in *UserInput) (int64, error) {
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.IsValid() {
		return 0, apperror.Invalid("role", fmt.Sprintf("unknown role %q", role))
	}

	query, args := database.Builder(q).
		Insert(usersTable).
		Columns("username", "password_hash", "role", "email", "created_at").
		Values(in.Username, nullableText(&in.PasswordHash), string(role), nullableText(&in.Email), r.now().UTC()).
		Returning("id").
		Query()

	var id int64
	if err := q.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		if database.IsUniqueViolation(err) {
			return 0, apperror.Invalid("username", "is taken")
		}
		return 0, database.Classify(fmt.Errorf("insert user: %w", err))
	}
	return id, nil
}

func (r *UserRepository) Get(ctx context.Context, q database.Queryer, id int64) (*models.User, error) {
	b := database.Builder(q)
	query, args := b.Select().From(b.Table(usersTable)).Where(entsql.EQ("id", id)).Query()

	var user models.User
	if err := q.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundf("user %d", id)
		}
		return nil, database.Classify(fmt.Errorf("get user: %w", err))
	}
	return &user, nil
}

// Lookup loads the users among ids in one query. Unknown ids are absent from
// the result rather than reported as errors.
func (r *UserRepository) Lookup(ctx context.Context, q database.Queryer, ids []int64) (map[int64]*models.User, error) {
	users := make(map[int64]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	b := database.Builder(q)
	query, queryArgs := b.Select().From(b.Table(usersTable)).Where(entsql.In("id", args...)).Query()

	var rows []*models.User
	if err := q.SelectContext(ctx, &rows, query, queryArgs...); err != nil {
		return nil, database.Classify(fmt.Errorf("lookup users: %w", err))
	}
	for _, u := range rows {
		users[u.ID] = u
	}
	return users, nil
}

// ListAdministrators returns the ids of every admin, lowest first.
func (r *UserRepository) ListAdministrators(ctx context.Context, q database.Queryer) ([]int64, error) {
	b := database.Builder(q)
	query, args := b.Select("id").
		From(b.Table(usersTable)).
		Where(entsql.EQ("role", string(models.RoleAdmin))).
		OrderBy("id").
		Query()

	var ids []int64
	if err := q.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, database.Classify(fmt.Errorf("list administrators: %w", err))
	}
	return ids, nil
}

// List returns every user ordered by role, descending, then username.
func (r *UserRepository) List(ctx context.Context, q database.Queryer) ([]*models.User, error) {
	b := database.Builder(q)
	query, args := b.Select().
		From(b.Table(usersTable)).
		OrderBy(entsql.Desc("role"), "username").
		Query()

	var users []*models.User
	if err := q.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, database.Classify(fmt.Errorf("list users: %w", err))
	}
	return users, nil
}

// UserUpdateInput is a partial update of a user. An empty Email clears the
// address.
type UserUpdateInput struct {
	Username     *string
	PasswordHash *string
	Role         *models.Role
	Email        *string
}

func (r *UserRepository) Update(ctx context.Context, q database.Queryer, id int64, in *UserUpdateInput) error {
	update := database.Builder(q).Update(usersTable).Where(entsql.EQ("id", id))
	changed := 0

	if in.Username != nil {
		update.Set("username", *in.Username)
		changed++
	}
	if in.PasswordHash != nil {
		update.Set("password_hash", *in.PasswordHash)
		changed++
	}
	if in.Role != nil {
		if !in.Role.IsValid() {
			return apperror.Invalid("role", fmt.Sprintf("unknown role %q", *in.Role))
		}
		update.Set("role", string(*in.Role))
		changed++
	}
	if in.Email != nil {
		if email := nullableText(in.Email); email == nil {
			update.SetNull("email")
		} else {
			update.Set("email", email)
		}
		changed++
	}

	if changed == 0 {
		_, err := r.Get(ctx, q, id)
		return err
	}

	query, args := update.Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperror.Invalid("username", "is taken")
		}
		return database.Classify(fmt.Errorf("update user: %w", err))
	}
	return expectOneUser(res, id)
}

// UserUsage counts the rows that keep a user from being deleted.
type UserUsage struct {
	AssignedTasks int
	Updates       int
	Files         int
}

// InUse reports whether any task, history entry or attachment points at the user.
func (u UserUsage) InUse() bool {
	return u.AssignedTasks > 0 || u.Updates > 0 || u.Files > 0
}

func (r *UserRepository) Usage(ctx context.Context, q database.Queryer, id int64) (UserUsage, error) {
	var usage UserUsage
	counts := []struct {
		table  string
		column string
		into   *int
	}{
		{table: tasksTable, column: "assigned_to", into: &usage.AssignedTasks},
		{table: taskUpdatesTable, column: "user_id", into: &usage.Updates},
		{table: taskFilesTable, column: "uploader_id", into: &usage.Files},
	}

	b := database.Builder(q)
	for _, c := range counts {
		query, args := b.Select(entsql.Count("*")).From(b.Table(c.table)).Where(entsql.EQ(c.column, id)).Query()
		if err := q.GetContext(ctx, c.into, query, args...); err != nil {
			return UserUsage{}, database.Classify(fmt.Errorf("count %s of user %d: %w", c.table, id, err))
		}
	}
	return usage, nil
}

// Delete removes the user with their notifications and clears them as subject
// owner. Secondary, tertiary and creator references are nulled by the schema.
// Callers check Usage first since assignments and history block the delete.
func (r *UserRepository) Delete(ctx context.Context, q database.Queryer, id int64) error {
	b := database.Builder(q)

	query, args := b.Delete(notificationsTable).Where(entsql.EQ("user_id", id)).Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return database.Classify(fmt.Errorf("delete notifications of user %d: %w", id, err))
	}

	query, args = b.Update(tasksTable).
		SetNull("subject_owner").
		Where(entsql.EQ("subject_owner", strconv.FormatInt(id, 10))).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return database.Classify(fmt.Errorf("clear subject owner %d: %w", id, err))
	}

	query, args = b.Delete(usersTable).Where(entsql.EQ("id", id)).Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return database.Classify(fmt.Errorf("delete user: %w", err))
	}
	return expectOneUser(res, id)
}

func expectOneUser(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return database.Classify(fmt.Errorf("user %d: %w", id, err))
	}
	if n == 0 {
		return apperror.NotFoundf("user %d", id)
	}
	return nil
}
