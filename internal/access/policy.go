// Package access decides whether an acting user may perform an action on a task.
package access

import (
	"strconv"

	"github.com/gurkanbulca/tasktracker/internal/apperror"
	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/internal/responsibility"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   int64
	Name string
	Role models.Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// DisplayName is the label used in notification messages.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return "user #" + strconv.FormatInt(a.ID, 10)
}

type Action string

const (
	ActionCreate       Action = "create"
	ActionView         Action = "view"
	ActionUpdate       Action = "update"
	ActionEdit         Action = "edit"
	ActionChangeStatus Action = "change_status"
	ActionDelete       Action = "delete"
	// ActionManageUsers and ActionViewStats are administrator-only and take
	// no task.
	ActionManageUsers Action = "manage_users"
	ActionViewStats   Action = "view_stats"
)

// Policy is the single authorization predicate for every role.
type Policy struct {
	// AdminOverride lets administrators act on tasks they do not control.
	AdminOverride bool
}

// NewPolicy creates a policy.
func NewPolicy(adminOverride bool) Policy {
	return Policy{AdminOverride: adminOverride}
}

// Allowed reports whether actor may perform action on task. task is ignored
// for ActionCreate.
func (p Policy) Allowed(actor Actor, action Action, task *models.Task) bool {
	if actor.ID <= 0 || !actor.Role.IsValid() {
		return false
	}
	if actor.IsAdmin() && p.AdminOverride {
		return true
	}

	switch action {
	case ActionManageUsers, ActionViewStats:
		return actor.IsAdmin()
	case ActionCreate:
		return actor.Role == models.RoleAdmin || actor.Role == models.RoleCreator
	case ActionView, ActionUpdate:
		return task != nil && responsibility.Controllers(task).Contains(actor.ID)
	case ActionEdit, ActionChangeStatus, ActionDelete:
		if task == nil || actor.Role == models.RoleUser {
			return false
		}
		return task.CreatedBy.Valid && task.CreatedBy.Int64 == actor.ID
	}

	return false
}

// Authorize is Allowed expressed as an error wrapping apperror.ErrForbidden.
func (p Policy) Authorize(actor Actor, action Action, task *models.Task) error {
	if p.Allowed(actor, action, task) {
		return nil
	}
	if task == nil {
		return apperror.Forbiddenf("user %d may not %s", actor.ID, action)
	}
	return apperror.Forbiddenf("user %d may not %s task %d", actor.ID, action, task.ID)
}
