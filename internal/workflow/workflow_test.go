package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/tasktracker/internal/access"
	"github.com/gurkanbulca/tasktracker/internal/apperror"
	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/internal/notification"
	"github.com/gurkanbulca/tasktracker/internal/repository"
	"github.com/gurkanbulca/tasktracker/internal/testutil"
	"github.com/gurkanbulca/tasktracker/pkg/email"
)

type testEnv struct {
	db     *sqlx.DB
	wf     *Workflow
	mailer *email.MockEmailService

	admin   access.Actor
	creator access.Actor
	u1      access.Actor
	u2      access.Actor
	u9      access.Actor
}

func setupWorkflow(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	mailer := email.NewMockEmailService()
	dispatcher := notification.NewDispatcher(
		repository.NewNotificationRepository(),
		repository.NewUserRepository(),
		mailer,
		time.Second,
	)

	newActor := func(name string, role models.Role) access.Actor {
		id := testutil.CreateUser(t, db, name, role, name+"@example.com")
		return access.Actor{ID: id, Name: name, Role: role}
	}

	env := &testEnv{
		db:      db,
		wf:      New(db, dispatcher, Config{TxTimeout: 5 * time.Second, AdminOverride: true}),
		mailer:  mailer,
		admin:   newActor("admin", models.RoleAdmin),
		creator: newActor("creator", models.RoleCreator),
		u1:      newActor("u1", models.RoleUser),
		u2:      newActor("u2", models.RoleUser),
		u9:      newActor("u9", models.RoleUser),
	}
	t.Cleanup(env.wf.Wait)
	return env
}

func (e *testEnv) unread(t *testing.T, actor access.Actor) int {
	t.Helper()
	return testutil.CountRows(t, e.db, "notifications", "user_id", actor.ID)
}

func (e *testEnv) task(t *testing.T, id int64) *models.Task {
	t.Helper()
	task, err := repository.NewTaskRepository().Get(context.Background(), e.db, id)
	require.NoError(t, err)
	return task
}

func statusPtr(s models.TaskStatus) *models.TaskStatus { return &s }

func TestApplyUpdate_DoneSetsCompletion(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	before := time.Now()
	result, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusDone),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusDone, result.Task.Status)
	require.True(t, result.Task.CompletedAt.Valid)
	assert.WithinDuration(t, before, result.Task.CompletedAt.Time, 5*time.Second)
	assert.NotZero(t, result.UpdateID)
	assert.Equal(t, 1, testutil.CountRows(t, env.db, "task_updates", "task_id", taskID))

	// creator and the administrator, never the actor
	assert.Equal(t, 2, result.Notified)
	assert.Equal(t, 1, env.unread(t, env.creator))
	assert.Equal(t, 1, env.unread(t, env.admin))
	assert.Zero(t, env.unread(t, env.u1))
}

func TestApplyUpdate_ManualCompletionTime(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID})
	manual := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	result, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID:      taskID,
		Status:      statusPtr(models.TaskStatusDone),
		CompletedAt: &manual,
	})
	require.NoError(t, err)
	require.True(t, result.Task.CompletedAt.Valid)
	assert.True(t, manual.Equal(result.Task.CompletedAt.Time))
}

func TestApplyUpdate_ReopenClearsCompletion(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{
		Status:     models.TaskStatusDone,
		AssignedTo: env.u1.ID,
		CreatedBy:  env.creator.ID,
	})
	require.True(t, env.task(t, taskID).CompletedAt.Valid)

	result, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusPending),
	})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusPending, result.Task.Status)
	assert.False(t, result.Task.CompletedAt.Valid)
}

func TestApplyUpdate_Forbidden(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{
		AssignedTo:   env.u1.ID,
		SecondaryID:  env.u2.ID,
		SubjectOwner: "not-a-number",
		CreatedBy:    env.creator.ID,
	})

	_, err := env.wf.ApplyUpdate(context.Background(), env.u9, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusDone),
		Note:   "done by me",
		Files:  []models.FileRef{{Filename: "a.pdf", OriginalName: "a.pdf"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	task := env.task(t, taskID)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.False(t, task.CompletedAt.Valid)
	assert.Zero(t, testutil.CountRows(t, env.db, "task_updates", "task_id", taskID))
	assert.Zero(t, testutil.CountRows(t, env.db, "task_files", "task_id", taskID))
	assert.Zero(t, testutil.CountRows(t, env.db, "notifications", "related_task_id", taskID))
}

func TestApplyUpdate_NoOp(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{
		Status:     models.TaskStatusInProgress,
		AssignedTo: env.u1.ID,
		CreatedBy:  env.creator.ID,
	})

	for _, req := range []UpdateRequest{
		{TaskID: taskID},
		{TaskID: taskID, Status: statusPtr(models.TaskStatusInProgress)},
		{TaskID: taskID, Status: statusPtr(models.TaskStatusInProgress), Note: "   "},
	} {
		result, err := env.wf.ApplyUpdate(context.Background(), env.u1, req)
		require.NoError(t, err)
		assert.Zero(t, result.UpdateID)
		assert.Zero(t, result.Notified)
	}

	env.wf.Wait()
	assert.Zero(t, testutil.CountRows(t, env.db, "task_updates", "task_id", taskID))
	assert.Zero(t, testutil.CountRows(t, env.db, "notifications", "related_task_id", taskID))
	assert.Empty(t, env.mailer.GetSentEmails())
}

func TestApplyUpdate_NoteWithoutStatusChange(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	result, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusPending),
		Note:   "waiting for parts",
	})
	require.NoError(t, err)
	assert.NotZero(t, result.UpdateID)

	detail, err := env.wf.GetTask(context.Background(), env.u1, taskID)
	require.NoError(t, err)
	require.Len(t, detail.Updates, 1)
	assert.Equal(t, "waiting for parts", detail.Updates[0].Note.String)
	assert.Equal(t, "u1", detail.Updates[0].ActorName.String)
}

func TestApplyUpdate_AttachmentsOnly(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	result, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Files: []models.FileRef{
			{Filename: "1700-a.jpg", OriginalName: "site.jpg", MimeType: "image/jpeg"},
			{Filename: "1700-b.pdf", OriginalName: "report.pdf"},
		},
	})
	require.NoError(t, err)
	assert.Zero(t, result.UpdateID)
	assert.Equal(t, 2, result.Notified)

	detail, err := env.wf.GetTask(context.Background(), env.u1, taskID)
	require.NoError(t, err)
	assert.Empty(t, detail.Updates)
	require.Len(t, detail.Files, 2)
	for _, f := range detail.Files {
		assert.False(t, f.UpdateID.Valid)
	}
}

func TestApplyUpdate_Message(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	_, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusInProgress),
		Note:   "  started  ",
		Files:  []models.FileRef{{Filename: "x.png", OriginalName: "x.png"}},
	})
	require.NoError(t, err)

	list, err := env.wf.ListNotifications(context.Background(), env.creator, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotificationTaskUpdate, list[0].Type)
	assert.Equal(t,
		"u1 updated task status (#"+strconv.FormatInt(taskID, 10)+") - Status: In Progress - Note: started - Attachments: 1 file(s)",
		list[0].Message)
}

func TestApplyUpdate_DeduplicatesRecipients(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{
		AssignedTo:   env.u1.ID,
		SecondaryID:  env.u1.ID,
		TertiaryID:   env.u1.ID,
		SubjectOwner: " " + strconv.FormatInt(env.u1.ID, 10) + " ",
		CreatedBy:    env.creator.ID,
	})

	result, err := env.wf.ApplyUpdate(context.Background(), env.creator, UpdateRequest{
		TaskID: taskID,
		Note:   "please check",
	})
	require.NoError(t, err)

	// u1 once, plus the administrator; the creator is the actor
	assert.Equal(t, 2, result.Notified)
	assert.Equal(t, 1, env.unread(t, env.u1))
	assert.Zero(t, env.unread(t, env.creator))
}

func TestApplyUpdate_AdminActorSkipsBroadcast(t *testing.T) {
	env := setupWorkflow(t)
	otherAdmin := testutil.CreateUser(t, env.db, "admin2", models.RoleAdmin, "")
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	result, err := env.wf.ApplyUpdate(context.Background(), env.admin, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusImportant),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Notified)
	assert.Equal(t, 1, env.unread(t, env.u1))
	assert.Equal(t, 1, env.unread(t, env.creator))
	assert.Zero(t, testutil.CountRows(t, env.db, "notifications", "user_id", otherAdmin))
}

func TestApplyUpdate_UserActorBroadcastsToAdmins(t *testing.T) {
	env := setupWorkflow(t)
	otherAdmin := testutil.CreateUser(t, env.db, "admin2", models.RoleAdmin, "")
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID})

	result, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusInProgress),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Notified)
	assert.Equal(t, 1, env.unread(t, env.admin))
	assert.Equal(t, 1, testutil.CountRows(t, env.db, "notifications", "user_id", otherAdmin))
}

func TestApplyUpdate_EmailFailureDoesNotFail(t *testing.T) {
	env := setupWorkflow(t)
	env.mailer.FailWith(errors.New("smtp down"))
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	result, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusDone),
	})
	require.NoError(t, err)
	env.wf.Wait()

	assert.Equal(t, models.TaskStatusDone, result.Task.Status)
	assert.Equal(t, 1, env.unread(t, env.creator))
}

func TestApplyUpdate_Validation(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID})

	_, err := env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr("archived"),
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{TaskID: 99999, Note: "x"})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCreateTask(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()

	task, err := env.wf.CreateTask(ctx, env.creator, repository.TaskInput{
		Title:       "  Repair street light ",
		AssignedTo:  env.u1.ID,
		SecondaryID: &env.u2.ID,
	})
	require.NoError(t, err)
	env.wf.Wait()

	assert.Equal(t, "Repair street light", task.Title)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.False(t, task.CompletedAt.Valid)
	assert.Equal(t, env.creator.ID, task.CreatedBy.Int64)

	assert.Equal(t, 1, env.unread(t, env.u1))
	assert.Equal(t, 1, env.unread(t, env.u2))
	assert.Zero(t, env.unread(t, env.creator))

	sent := env.mailer.GetSentEmails()
	require.Len(t, sent, 2, "one email per recipient")
	for _, e := range sent {
		assert.Equal(t, "task_assigned", e.Template)
		assert.True(t, strings.HasPrefix(e.Data.Message, "New task assigned (by creator): "))
	}
}

func TestCreateTask_Rejects(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()
	missing := int64(99999)

	tests := []struct {
		name  string
		actor access.Actor
		input repository.TaskInput
		want  error
	}{
		{"user role", env.u1, repository.TaskInput{Title: "x", AssignedTo: env.u1.ID}, apperror.ErrForbidden},
		{"empty title", env.creator, repository.TaskInput{Title: " ", AssignedTo: env.u1.ID}, apperror.ErrValidation},
		{"no assignee", env.creator, repository.TaskInput{Title: "x"}, apperror.ErrValidation},
		{"unknown assignee", env.creator, repository.TaskInput{Title: "x", AssignedTo: missing}, apperror.ErrValidation},
		{"unknown secondary", env.creator, repository.TaskInput{Title: "x", AssignedTo: env.u1.ID, SecondaryID: &missing}, apperror.ErrValidation},
		{"bad status", env.creator, repository.TaskInput{Title: "x", AssignedTo: env.u1.ID, Status: "later"}, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.wf.CreateTask(ctx, tt.actor, tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var count int
	require.NoError(t, env.db.Get(&count, "SELECT COUNT(*) FROM tasks"))
	assert.Zero(t, count)
}

func TestEditTask_NotifiesOldAndNewResponsibles(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	title := "Renamed"
	task, err := env.wf.EditTask(context.Background(), env.creator, taskID, EditRequest{
		Fields: repository.TaskUpdateInput{Title: &title, AssignedTo: &env.u2.ID},
		Status: statusPtr(models.TaskStatusDone),
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", task.Title)
	assert.Equal(t, env.u2.ID, task.AssignedTo)
	assert.Equal(t, models.TaskStatusDone, task.Status)
	assert.True(t, task.CompletedAt.Valid)

	assert.Equal(t, 1, env.unread(t, env.u1))
	assert.Equal(t, 1, env.unread(t, env.u2))
	assert.Zero(t, env.unread(t, env.creator))
	assert.Equal(t, 1, testutil.CountRows(t, env.db, "task_updates", "task_id", taskID))
}

func TestEditTask_Forbidden(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	title := "mine now"
	_, err := env.wf.EditTask(context.Background(), env.u1, taskID, EditRequest{
		Fields: repository.TaskUpdateInput{Title: &title},
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.Equal(t, "Inspect water line", env.task(t, taskID).Title)
}

func TestChangeStatus(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	task, err := env.wf.ChangeStatus(context.Background(), env.creator, taskID, models.TaskStatusDone, nil)
	require.NoError(t, err)
	assert.True(t, task.CompletedAt.Valid)
	assert.Equal(t, 1, testutil.CountRows(t, env.db, "task_updates", "task_id", taskID))
	assert.Zero(t, testutil.CountRows(t, env.db, "notifications", "related_task_id", taskID))

	_, err = env.wf.ChangeStatus(context.Background(), env.u1, taskID, models.TaskStatusPending, nil)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestDeleteTask_Cascades(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	_, err := env.wf.ApplyUpdate(ctx, env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusDone),
		Note:   "finished",
		Files:  []models.FileRef{{Filename: "f.txt", OriginalName: "f.txt"}},
	})
	require.NoError(t, err)
	require.NotZero(t, testutil.CountRows(t, env.db, "notifications", "related_task_id", taskID))

	assert.ErrorIs(t, env.wf.DeleteTask(ctx, env.u1, taskID), apperror.ErrForbidden)
	require.NoError(t, env.wf.DeleteTask(ctx, env.creator, taskID))

	assert.Zero(t, testutil.CountRows(t, env.db, "task_updates", "task_id", taskID))
	assert.Zero(t, testutil.CountRows(t, env.db, "task_files", "task_id", taskID))
	assert.Zero(t, testutil.CountRows(t, env.db, "notifications", "related_task_id", taskID))

	_, err = env.wf.GetTask(ctx, env.admin, taskID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.ErrorIs(t, env.wf.DeleteTask(ctx, env.admin, taskID), apperror.ErrNotFound)
}

func TestListTasks_RestrictsNonAdmins(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()
	mine := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID})
	owned := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u2.ID, SubjectOwner: strconv.FormatInt(env.u1.ID, 10)})
	testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u2.ID})

	tasks, total, err := env.wf.ListTasks(ctx, env.u1, repository.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	ids := []int64{tasks[0].ID, tasks[1].ID}
	assert.ElementsMatch(t, []int64{mine, owned}, ids)

	_, total, err = env.wf.ListTasks(ctx, env.admin, repository.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestListNotifications_MarksRead(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	_, err := env.wf.ApplyUpdate(ctx, env.u1, UpdateRequest{TaskID: taskID, Note: "one"})
	require.NoError(t, err)
	_, err = env.wf.ApplyUpdate(ctx, env.u1, UpdateRequest{TaskID: taskID, Note: "two"})
	require.NoError(t, err)

	count, err := env.wf.UnreadCount(ctx, env.creator)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := env.wf.ListNotifications(ctx, env.creator, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].IsRead)

	count, err = env.wf.UnreadCount(ctx, env.creator)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestNoteExcerpt(t *testing.T) {
	assert.Equal(t, "short", noteExcerpt("  short "))

	long := strings.Repeat("ş", noteExcerptLength+10)
	excerpt := noteExcerpt(long)
	assert.True(t, strings.HasSuffix(excerpt, "…"))
	assert.Equal(t, noteExcerptLength+1, len([]rune(excerpt)))
}

func TestApplyUpdate_RollsBackOnAttachFailure(t *testing.T) {
	env := setupWorkflow(t)
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	_, err := env.db.Exec(`CREATE TRIGGER reject_task_files BEFORE INSERT ON task_files
BEGIN
	SELECT RAISE(ABORT, 'attachments unavailable');
END`)
	require.NoError(t, err)

	_, err = env.wf.ApplyUpdate(context.Background(), env.u1, UpdateRequest{
		TaskID: taskID,
		Status: statusPtr(models.TaskStatusDone),
		Note:   "finished, photos attached",
		Files:  []models.FileRef{{Filename: "site.jpg", OriginalName: "site.jpg"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attachments unavailable")

	task := env.task(t, taskID)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.False(t, task.CompletedAt.Valid)
	assert.Zero(t, testutil.CountRows(t, env.db, "task_updates", "task_id", taskID))
	assert.Zero(t, testutil.CountRows(t, env.db, "task_files", "task_id", taskID))
	assert.Zero(t, testutil.CountRows(t, env.db, "notifications", "related_task_id", taskID))
}

func TestApplyUpdate_ConcurrentUpdatesKeepCompletionInStep(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	const workers = 24
	statuses := models.AllStatuses()
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.wf.ApplyUpdate(ctx, env.u1, UpdateRequest{
				TaskID: taskID,
				Status: statusPtr(statuses[i%len(statuses)]),
				Note:   fmt.Sprintf("pass %d", i),
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	task := env.task(t, taskID)
	assert.Equal(t, task.Status.IsDone(), task.CompletedAt.Valid)
	assert.Equal(t, workers, testutil.CountRows(t, env.db, "task_updates", "task_id", taskID))

	history, err := repository.NewUpdateRepository().ListByTask(ctx, env.db, taskID)
	require.NoError(t, err)
	require.Len(t, history, workers)
	assert.Equal(t, string(task.Status), history[len(history)-1].Status.String)
}

func TestWorkflow_UsesStoredRole(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()
	taskID := testutil.CreateTask(t, env.db, testutil.TaskFixture{AssignedTo: env.u1.ID, CreatedBy: env.creator.ID})

	_, err := env.db.Exec("UPDATE users SET role = ? WHERE id = ?", string(models.RoleUser), env.admin.ID)
	require.NoError(t, err)

	// env.admin still carries the admin role, as a token issued before the demotion would.
	_, err = env.wf.ApplyUpdate(ctx, env.admin, UpdateRequest{TaskID: taskID, Note: "override"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	tasks, total, err := env.wf.ListTasks(ctx, env.admin, repository.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, tasks)

	_, err = env.wf.Stats(ctx, env.admin)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestWorkflow_RejectsUnregisteredActor(t *testing.T) {
	env := setupWorkflow(t)
	ghost := access.Actor{ID: 4040, Name: "ghost", Role: models.RoleAdmin}

	tests := []struct {
		name string
		call func() error
	}{
		{"list tasks", func() error {
			_, _, err := env.wf.ListTasks(context.Background(), ghost, repository.ListFilter{})
			return err
		}},
		{"create task", func() error {
			_, err := env.wf.CreateTask(context.Background(), ghost, repository.TaskInput{Title: "x", AssignedTo: env.u1.ID})
			return err
		}},
		{"list users", func() error {
			_, err := env.wf.ListUsers(context.Background(), ghost)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), apperror.ErrForbidden)
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero uses default", 0, defaultListLimit},
		{"negative uses default", -5, defaultListLimit},
		{"within range", 20, 20},
		{"at max", maxListLimit, maxListLimit},
		{"over max is capped", maxListLimit + 1, maxListLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampLimit(tt.limit))
		})
	}
}

func TestListNotifications_CapsLimit(t *testing.T) {
	env := setupWorkflow(t)
	ctx := context.Background()
	notifications := repository.NewNotificationRepository()

	for i := 0; i < defaultListLimit+5; i++ {
		_, err := notifications.Insert(ctx, env.db, env.u1.ID, fmt.Sprintf("note %d", i), models.NotificationTaskUpdate, 0)
		require.NoError(t, err)
	}

	list, err := env.wf.ListNotifications(ctx, env.u1, maxListLimit+100)
	require.NoError(t, err)
	assert.Len(t, list, defaultListLimit+5, "an oversized limit is capped, not reset to the default")
}
