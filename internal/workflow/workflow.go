// Package workflow implements the task operations: creation, edits, status
// updates with history and attachments, deletion, and the notification
// fan-out that follows each committed change.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/tasktracker/internal/access"
	"github.com/gurkanbulca/tasktracker/internal/apperror"
	"github.com/gurkanbulca/tasktracker/internal/database"
	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/internal/notification"
	"github.com/gurkanbulca/tasktracker/internal/repository"
	"github.com/gurkanbulca/tasktracker/internal/responsibility"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Config struct {
	TxTimeout     time.Duration
	AdminOverride bool
}

// Workflow runs every task mutation in one transaction and announces it once
// the transaction has committed.
type Workflow struct {
	db            *sqlx.DB
	tasks         *repository.TaskRepository
	updates       *repository.UpdateRepository
	users         *repository.UserRepository
	notifications *repository.NotificationRepository
	dispatcher    *notification.Dispatcher
	policy        access.Policy
	txTimeout     time.Duration
}

func New(db *sqlx.DB, dispatcher *notification.Dispatcher, cfg Config) *Workflow {
	return &Workflow{
		db:            db,
		tasks:         repository.NewTaskRepository(),
		updates:       repository.NewUpdateRepository(),
		users:         repository.NewUserRepository(),
		notifications: repository.NewNotificationRepository(),
		dispatcher:    dispatcher,
		policy:        access.NewPolicy(cfg.AdminOverride),
		txTimeout:     cfg.TxTimeout,
	}
}

// UpdateRequest is one status update submitted against a task.
type UpdateRequest struct {
	TaskID int64
	Status *models.TaskStatus
	// CompletedAt overrides the completion time when Status is done.
	CompletedAt *time.Time
	Note        string
	Files       []models.FileRef
}

type UpdateResult struct {
	Task *models.Task
	// UpdateID is zero when no history row was written.
	UpdateID int64
	Notified int
}

// EditRequest is a partial edit of a task. Status goes through the same
// completion-time coupling as ApplyUpdate.
type EditRequest struct {
	Fields      repository.TaskUpdateInput
	Status      *models.TaskStatus
	CompletedAt *time.Time
}

// TaskDetail is a task with its history and attachments.
type TaskDetail struct {
	Task    *models.Task
	Updates []*models.TaskUpdate
	Files   []*models.TaskFile
}

// CreateTask inserts a task on behalf of actor and notifies its responsible
// users of the assignment.
func (w *Workflow) CreateTask(ctx context.Context, actor access.Actor, in repository.TaskInput) (*models.Task, error) {
	actor, err := w.resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := w.policy.Authorize(actor, access.ActionCreate, nil); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, apperror.Invalid("title", "is required")
	}
	if in.Status != "" && !in.Status.IsValid() {
		return nil, apperror.Invalid("status", fmt.Sprintf("unknown status %q", in.Status))
	}
	if in.AssignedTo <= 0 {
		return nil, apperror.Invalid("assigned_to", "is required")
	}
	in.CreatedBy = actor.ID

	var task *models.Task
	err = database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		if err := w.checkIdentities(ctx, tx, referencedIdentities(in.AssignedTo, in.SecondaryID, in.TertiaryID)); err != nil {
			return err
		}

		id, err := w.tasks.Create(ctx, tx, &in)
		if err != nil {
			return err
		}
		task, err = w.tasks.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] task %d created by user %d", task.ID, actor.ID)

	w.announce(ctx, responsibility.Resolve(task), notification.Message{
		Text:      assignedMessage(actor, task.Title),
		Type:      models.NotificationTaskAssigned,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Deadline:  task.DeadlinePtr(),
	}, actor.ID)

	return task, nil
}

// EditTask applies a partial edit and notifies everyone responsible for the
// task before or after the edit.
func (w *Workflow) EditTask(ctx context.Context, actor access.Actor, id int64, req EditRequest) (*models.Task, error) {
	actor, err := w.resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	if req.Status != nil && !req.Status.IsValid() {
		return nil, apperror.Invalid("status", fmt.Sprintf("unknown status %q", *req.Status))
	}
	if req.Fields.Title != nil {
		title := strings.TrimSpace(*req.Fields.Title)
		if title == "" {
			return nil, apperror.Invalid("title", "must not be empty")
		}
		req.Fields.Title = &title
	}
	if req.Fields.AssignedTo != nil && *req.Fields.AssignedTo <= 0 {
		return nil, apperror.Invalid("assigned_to", "must reference a user")
	}

	var before, after *models.Task
	err = database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		var err error
		before, err = w.tasks.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := w.policy.Authorize(actor, access.ActionEdit, before); err != nil {
			return err
		}

		var assignee int64
		if req.Fields.AssignedTo != nil {
			assignee = *req.Fields.AssignedTo
		}
		if err := w.checkIdentities(ctx, tx, referencedIdentities(assignee, req.Fields.SecondaryID, req.Fields.TertiaryID)); err != nil {
			return err
		}

		if err := w.tasks.UpdateFields(ctx, tx, id, &req.Fields); err != nil {
			return err
		}
		if req.Status != nil && *req.Status != before.Status {
			if err := w.tasks.SetStatus(ctx, tx, id, *req.Status, req.CompletedAt); err != nil {
				return err
			}
			if _, err := w.updates.Append(ctx, tx, id, actor.ID, req.Status, ""); err != nil {
				return err
			}
		}

		after, err = w.tasks.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	recipients := responsibility.Resolve(after).Union(responsibility.Resolve(before))
	w.announce(ctx, recipients, notification.Message{
		Text:      editedMessage(actor, after.Title),
		Type:      models.NotificationTaskUpdated,
		TaskID:    after.ID,
		TaskTitle: after.Title,
		Deadline:  after.DeadlinePtr(),
	}, actor.ID)

	return after, nil
}

// ApplyUpdate records a status change, a note and attachments against a task
// in one transaction, then notifies the task's responsible users, its creator
// and, when the actor is not an administrator, every administrator.
//
// A status equal to the current one counts as no status change. A call that
// changes nothing writes nothing and notifies nobody.
func (w *Workflow) ApplyUpdate(ctx context.Context, actor access.Actor, req UpdateRequest) (*UpdateResult, error) {
	actor, err := w.resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	if req.Status != nil && !req.Status.IsValid() {
		return nil, apperror.Invalid("status", fmt.Sprintf("unknown status %q", *req.Status))
	}
	for _, f := range req.Files {
		if strings.TrimSpace(f.Filename) == "" {
			return nil, apperror.Invalid("files", "filename is required")
		}
	}
	note := strings.TrimSpace(req.Note)

	result := &UpdateResult{}
	var statusChanged bool
	err = database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		task, err := w.tasks.GetForUpdate(ctx, tx, req.TaskID)
		if err != nil {
			return err
		}
		if err := w.policy.Authorize(actor, access.ActionUpdate, task); err != nil {
			return err
		}

		statusChanged = req.Status != nil && *req.Status != task.Status
		if statusChanged {
			if err := w.tasks.SetStatus(ctx, tx, task.ID, *req.Status, req.CompletedAt); err != nil {
				return err
			}
		}

		var updateID *int64
		if statusChanged || note != "" {
			id, err := w.updates.Append(ctx, tx, task.ID, actor.ID, req.Status, note)
			if err != nil {
				return err
			}
			result.UpdateID = id
			updateID = &id
		}

		if err := w.updates.AttachFiles(ctx, tx, task.ID, updateID, actor.ID, req.Files); err != nil {
			return err
		}

		result.Task, err = w.tasks.Get(ctx, tx, task.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !statusChanged && note == "" && len(req.Files) == 0 {
		return result, nil
	}

	task := result.Task
	recipients := responsibility.Controllers(task)
	if !actor.IsAdmin() {
		admins, err := w.users.ListAdministrators(ctx, w.db)
		if err != nil {
			log.Printf("[WARN] list administrators for task %d: %v", task.ID, err)
		}
		recipients.Union(responsibility.NewIdentitySet(admins...))
	}

	result.Notified = w.announce(ctx, recipients, notification.Message{
		Text:      updateMessage(actor, task.ID, task.Status, note, len(req.Files)),
		Type:      models.NotificationTaskUpdate,
		TaskID:    task.ID,
		TaskTitle: task.Title,
		Deadline:  task.DeadlinePtr(),
	}, actor.ID)

	return result, nil
}

// ChangeStatus sets the status and records it in the history without
// notifying anyone.
func (w *Workflow) ChangeStatus(ctx context.Context, actor access.Actor, id int64, status models.TaskStatus, completedAt *time.Time) (*models.Task, error) {
	actor, err := w.resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, apperror.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}

	var task *models.Task
	err = database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		current, err := w.tasks.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := w.policy.Authorize(actor, access.ActionChangeStatus, current); err != nil {
			return err
		}

		if err := w.tasks.SetStatus(ctx, tx, id, status, completedAt); err != nil {
			return err
		}
		if _, err := w.updates.Append(ctx, tx, id, actor.ID, &status, ""); err != nil {
			return err
		}

		task, err = w.tasks.Get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes the task with its history, attachments and
// notifications.
func (w *Workflow) DeleteTask(ctx context.Context, actor access.Actor, id int64) error {
	actor, err := w.resolve(ctx, actor)
	if err != nil {
		return err
	}
	err = database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		task, err := w.tasks.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := w.policy.Authorize(actor, access.ActionDelete, task); err != nil {
			return err
		}
		return w.tasks.Delete(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	log.Printf("[INFO] task %d deleted by user %d", id, actor.ID)
	return nil
}

func (w *Workflow) GetTask(ctx context.Context, actor access.Actor, id int64) (*TaskDetail, error) {
	actor, err := w.resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	task, err := w.tasks.Get(ctx, w.db, id)
	if err != nil {
		return nil, err
	}
	if err := w.policy.Authorize(actor, access.ActionView, task); err != nil {
		return nil, err
	}

	updates, err := w.updates.ListByTask(ctx, w.db, id)
	if err != nil {
		return nil, err
	}
	files, err := w.updates.ListFiles(ctx, w.db, id)
	if err != nil {
		return nil, err
	}

	return &TaskDetail{Task: task, Updates: updates, Files: files}, nil
}

// ListTasks returns one page of tasks. Users other than administrators only
// see tasks they control.
func (w *Workflow) ListTasks(ctx context.Context, actor access.Actor, filter repository.ListFilter) ([]*models.Task, int, error) {
	actor, err := w.resolve(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	if !actor.IsAdmin() || !w.policy.AdminOverride {
		filter.InvolvingID = actor.ID
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, apperror.Invalid("status", fmt.Sprintf("unknown status %q", *filter.Status))
	}

	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return w.tasks.List(ctx, w.db, filter)
}

// ListNotifications returns the actor's latest notifications and marks all
// of them read. The returned rows carry the read flag from before the call.
func (w *Workflow) ListNotifications(ctx context.Context, actor access.Actor, limit int) ([]*models.Notification, error) {
	if actor.ID <= 0 {
		return nil, apperror.Forbiddenf("anonymous users have no notifications")
	}
	limit = clampLimit(limit)

	var list []*models.Notification
	err := database.WithTx(ctx, w.db, w.txTimeout, func(tx *sqlx.Tx) error {
		var err error
		list, err = w.notifications.ListForUser(ctx, tx, actor.ID, limit)
		if err != nil {
			return err
		}
		_, err = w.notifications.MarkAllRead(ctx, tx, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (w *Workflow) UnreadCount(ctx context.Context, actor access.Actor) (int, error) {
	if actor.ID <= 0 {
		return 0, apperror.Forbiddenf("anonymous users have no notifications")
	}
	return w.notifications.CountUnread(ctx, w.db, actor.ID)
}

// Wait blocks until background email deliveries have finished.
func (w *Workflow) Wait() {
	w.dispatcher.Wait()
}

// announce runs the dispatcher after commit. Its failures never undo the
// committed change, so they are logged here.
func (w *Workflow) announce(ctx context.Context, recipients *responsibility.IdentitySet, msg notification.Message, actorID int64) int {
	stored, err := w.dispatcher.Notify(ctx, w.db, recipients, msg, actorID)
	if err != nil {
		log.Printf("[ERROR] notify %s for task %d: %v", msg.Type, msg.TaskID, err)
	}
	return stored
}

// checkIdentities fails with a ValidationError naming the first id that is
// not a known user.
func (w *Workflow) checkIdentities(ctx context.Context, q database.Queryer, refs map[string]int64) error {
	if len(refs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(refs))
	for _, id := range refs {
		ids = append(ids, id)
	}

	known, err := w.users.Lookup(ctx, q, ids)
	if err != nil {
		return err
	}
	for _, field := range []string{"assigned_to", "secondary_id", "tertiary_id"} {
		id, ok := refs[field]
		if !ok {
			continue
		}
		if _, exists := known[id]; !exists {
			return apperror.Invalid(field, fmt.Sprintf("user %d does not exist", id))
		}
	}
	return nil
}

// resolve reloads the actor from the user directory, so a role changed or a
// user removed after the token was issued takes effect at once.
func (w *Workflow) resolve(ctx context.Context, actor access.Actor) (access.Actor, error) {
	if actor.ID <= 0 {
		return access.Actor{}, apperror.Forbiddenf("anonymous users may not act on tasks")
	}
	user, err := w.users.Get(ctx, w.db, actor.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		return access.Actor{}, apperror.Forbiddenf("user %d is no longer registered", actor.ID)
	}
	if err != nil {
		return access.Actor{}, err
	}
	if user.Role != actor.Role {
		log.Printf("[INFO] user %d acts as %s, token says %s", user.ID, user.Role, actor.Role)
	}
	return access.Actor{ID: user.ID, Name: user.Username, Role: user.Role}, nil
}

// clampLimit applies the default page size and caps it at maxListLimit.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}

// referencedIdentities collects the positive user ids a write will store.
func referencedIdentities(assignee int64, secondary, tertiary *int64) map[string]int64 {
	refs := make(map[string]int64, 3)
	if assignee > 0 {
		refs["assigned_to"] = assignee
	}
	if secondary != nil && *secondary > 0 {
		refs["secondary_id"] = *secondary
	}
	if tertiary != nil && *tertiary > 0 {
		refs["tertiary_id"] = *tertiary
	}
	return refs
}
