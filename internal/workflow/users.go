package workflow

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/tasktracker/internal/access"
	"github.com/gurkanbulca/tasktracker/internal/apperror"
	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/internal/repository"
	"github.com/gurkanbulca/tasktracker/pkg/auth"
)

// NewUser is an account created by an administrator.
type NewUser struct {
	Username string
	Password string
	Role     models.Role
	Email    string
}

// UserEdit is a partial edit of an account. A blank Password keeps the
// stored hash.
type UserEdit struct {
	Username *string
	Password *string
	Role     *models.Role
	Email    *string
}

func (w *Workflow) ListUsers(ctx context.Context, actor access.Actor) ([]*models.User, error) {
	if _, err := w.admin(ctx, actor, access.ActionManageUsers); err != nil {
		return nil, err
	}
	return w.users.List(ctx, w.db)
}

func (w *Workflow) CreateUser(ctx context.Context, actor access.Actor, in NewUser) (*models.User, error) {
	actor, err := w.admin(ctx, actor, access.ActionManageUsers)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, apperror.Invalid("username", "is required")
	}
	if in.Role == "" || !in.Role.IsValid() {
		return nil, apperror.Invalid("role", "must be admin, creator or user")
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	var user *models.User
	err = database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		id, err := w.users.Create(ctx, tx, &repository.UserInput{
			Username:     username,
			PasswordHash: hash,
			Role:         in.Role,
			Email:        in.Email,
		})
		if err != nil {
			return err
		}
		user, err = w.users.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] user %d (%s) created by user %d", user.ID, user.Role, actor.ID)
	return user, nil
}

func (w *Workflow) EditUser(ctx context.Context, actor access.Actor, id int64, in UserEdit) (*models.User, error) {
	actor, err := w.admin(ctx, actor, access.ActionManageUsers)
	if err != nil {
		return nil, err
	}

	update := repository.UserUpdateInput{Role: in.Role, Email: in.Email}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return nil, apperror.Invalid("username", "must not be empty")
		}
		update.Username = &username
	}
	if in.Password != nil && strings.TrimSpace(*in.Password) != "" {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		update.PasswordHash = &hash
	}

	var user *models.User
	err = database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		if err := w.users.Update(ctx, tx, id, &update); err != nil {
			return err
		}
		var err error
		user, err = w.users.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] user %d edited by user %d", id, actor.ID)
	return user, nil
}

// DeleteUser removes an account. Administrators cannot delete themselves, and
// users still assigned to tasks or present in task history are kept.
func (w *Workflow) DeleteUser(ctx context.Context, actor access.Actor, id int64) error {
	actor, err := w.admin(ctx, actor, access.ActionManageUsers)
	if err != nil {
		return err
	}
	if id == actor.ID {
		return apperror.Conflictf("you cannot delete your own account")
	}

	err = database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		if _, err := w.users.Get(ctx, tx, id); err != nil {
			return err
		}
		usage, err := w.users.Usage(ctx, tx, id)
		if err != nil {
			return err
		}
		if usage.AssignedTasks > 0 {
			return apperror.Conflictf("user %d is assigned to %d tasks", id, usage.AssignedTasks)
		}
		if usage.InUse() {
			return apperror.Conflictf("user %d appears in task history", id)
		}
		return w.users.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	log.Printf("[INFO] user %d deleted by user %d", id, actor.ID)
	return nil
}

// Stats summarizes every task for the dashboard, without visibility filtering.
func (w *Workflow) Stats(ctx context.Context, actor access.Actor) (*models.TaskStats, error) {
	if _, err := w.admin(ctx, actor, access.ActionViewStats); err != nil {
		return nil, err
	}

	stats, err := w.tasks.Stats(ctx, w.db)
	if err != nil {
		return nil, err
	}
	if top := stats.TopAssignee; top != nil {
		user, err := w.users.Get(ctx, w.db, top.UserID)
		if err != nil {
			return nil, err
		}
		top.Username = user.Username
	}
	return stats, nil
}

// admin reloads actor and checks an administrator-only action.
func (w *Workflow) admin(ctx context.Context, actor access.Actor, action access.Action) (access.Actor, error) {
	actor, err := w.resolve(ctx, actor)
	if err != nil {
		return access.Actor{}, err
	}
	if err := w.policy.Authorize(actor, action, nil); err != nil {
		return access.Actor{}, err
	}
	return actor, nil
}

func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return "", apperror.Invalid("password", err.Error())
	}
	return hash, err
}
