// internal/service/task_service.go
package service

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/tasktracker/internal/access"
	"github.com/gurkanbulca/tasktracker/internal/middleware"
	"github.com/gurkanbulca/tasktracker/internal/repository"
	"github.com/gurkanbulca/tasktracker/internal/workflow"
)

type TaskService struct {
	workflow *workflow.Workflow
}

func NewTaskService(wf *workflow.Workflow) *TaskService {
	return &TaskService{workflow: wf}
}

var _ TaskServer = (*TaskService)(nil)

// CreateTask creates a new task
func (s *TaskService) CreateTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "CreateTask"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	input := repository.TaskInput{
		AssignedTo:   r.id("assigned_to"),
		SecondaryID:  r.integer("secondary_id"),
		TertiaryID:   r.integer("tertiary_id"),
		SubjectOwner: r.text("subject_owner"),
		Deadline:     r.time("deadline"),
		CompletedAt:  r.time("completed_at"),
		FormDate:     r.time("form_date"),
		GivenDate:    r.time("given_date"),
		Region:       r.text("region"),
		City:         r.text("city"),
		Municipality: r.text("municipality"),
		Department:   r.text("department"),
		Subject:      r.text("task_subject"),
	}
	if title := r.text("title"); title != nil {
		input.Title = *title
	}
	if description := r.text("description"); description != nil {
		input.Description = *description
	}
	if st := r.status("status"); st != nil {
		input.Status = *st
	}
	if urgent := r.flag("urgent"); urgent != nil {
		input.Urgent = *urgent
	}
	if archive := r.text("archive"); archive != nil {
		input.Archive = strings.TrimSpace(*archive)
	}
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	task, err := s.workflow.CreateTask(ctx, actor, input)
	if err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{"task": encodeTask(task)})
}

// GetTask retrieves a task with its history and attachments
func (s *TaskService) GetTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "GetTask"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	id := r.id("id")
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	detail, err := s.workflow.GetTask(ctx, actor, id)
	if err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{
		"task":    encodeTask(detail.Task),
		"updates": encodeUpdates(detail.Updates),
		"files":   encodeFiles(detail.Files),
	})
}

// ListTasks retrieves a page of tasks visible to the caller
func (s *TaskService) ListTasks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "ListTasks"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	filter := repository.ListFilter{
		Status: r.status("status"),
		Urgent: r.flag("urgent"),
	}
	if search := r.text("search"); search != nil {
		filter.Search = *search
	}
	if limit := r.integer("limit"); limit != nil {
		filter.Limit = int(*limit)
	}
	if offset := r.integer("offset"); offset != nil {
		filter.Offset = int(*offset)
	}
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	tasks, total, err := s.workflow.ListTasks(ctx, actor, filter)
	if err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{
		"tasks":       encodeTasks(tasks),
		"total_count": total,
	})
}

// EditTask applies a partial edit. Absent fields keep their value, null
// clears an optional field.
func (s *TaskService) EditTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "EditTask"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	id := r.id("id")
	edit := workflow.EditRequest{
		Fields: repository.TaskUpdateInput{
			Title:         r.text("title"),
			Description:   r.text("description"),
			Deadline:      r.time("deadline"),
			ClearDeadline: r.isNull("deadline"),
			Urgent:        r.flag("urgent"),
			AssignedTo:    r.integer("assigned_to"),
			SecondaryID:   clearableID(r, "secondary_id"),
			TertiaryID:    clearableID(r, "tertiary_id"),
			SubjectOwner:  clearableText(r, "subject_owner"),
			FormDate:      r.time("form_date"),
			Region:        r.text("region"),
			City:          r.text("city"),
			Municipality:  r.text("municipality"),
			Department:    r.text("department"),
			Archive:       r.text("archive"),
			GivenDate:     r.time("given_date"),
			Subject:       r.text("task_subject"),
		},
		Status:      r.status("status"),
		CompletedAt: r.time("completed_at"),
	}
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	task, err := s.workflow.EditTask(ctx, actor, id, edit)
	if err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{"task": encodeTask(task)})
}

// ApplyUpdate records a status change, note or attachments against a task
func (s *TaskService) ApplyUpdate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "ApplyUpdate"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	update := workflow.UpdateRequest{
		TaskID:      r.id("task_id"),
		Status:      r.status("status"),
		CompletedAt: r.time("completed_at"),
		Files:       r.files("files"),
	}
	if note := r.text("note"); note != nil {
		update.Note = *note
	}
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	result, err := s.workflow.ApplyUpdate(ctx, actor, update)
	if err != nil {
		return nil, toStatus(method, err)
	}

	resp := map[string]interface{}{
		"task":      encodeTask(result.Task),
		"update_id": nil,
		"notified":  result.Notified,
	}
	if result.UpdateID > 0 {
		resp["update_id"] = result.UpdateID
	}
	return respond(resp)
}

// ChangeStatus sets the status of a task without notifying anyone
func (s *TaskService) ChangeStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "ChangeStatus"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	id := r.id("id")
	st := r.status("status")
	if st == nil && r.err == nil {
		r.fail("status", "is required")
	}
	completedAt := r.time("completed_at")
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	task, err := s.workflow.ChangeStatus(ctx, actor, id, *st, completedAt)
	if err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{"task": encodeTask(task)})
}

// DeleteTask deletes a task with its history, files and notifications
func (s *TaskService) DeleteTask(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "DeleteTask"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	id := r.id("id")
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	if err := s.workflow.DeleteTask(ctx, actor, id); err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{"id": id, "deleted": true})
}

// Stats returns task counts over the whole tracker for administrators.
func (s *TaskService) Stats(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := s.workflow.Stats(ctx, actor)
	if err != nil {
		return nil, toStatus("Stats", err)
	}

	return respond(map[string]interface{}{"stats": encodeStats(stats)})
}

// clearableID maps an explicit null to zero, which clears the reference.
func clearableID(r *reader, field string) *int64 {
	if r.isNull(field) {
		var zero int64
		return &zero
	}
	return r.integer(field)
}

// clearableText maps an explicit null to the empty string, which clears the
// field.
func clearableText(r *reader, field string) *string {
	if r.isNull(field) {
		var empty string
		return &empty
	}
	return r.text(field)
}

func actorFrom(ctx context.Context) (access.Actor, error) {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok || actor.ID <= 0 {
		return access.Actor{}, status.Error(codes.Unauthenticated, "user not authenticated")
	}
	return actor, nil
}

func respond(body map[string]interface{}) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(body)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}
