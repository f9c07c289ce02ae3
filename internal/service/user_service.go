package service

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/internal/workflow"
)

// UserService is the administrator-only account directory.
type UserService struct {
	workflow *workflow.Workflow
}

func NewUserService(wf *workflow.Workflow) *UserService {
	return &UserService{workflow: wf}
}

var _ UserServer = (*UserService)(nil)

func (s *UserService) ListUsers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	users, err := s.workflow.ListUsers(ctx, actor)
	if err != nil {
		return nil, toStatus("ListUsers", err)
	}

	return respond(map[string]interface{}{"users": encodeUsers(users)})
}

func (s *UserService) CreateUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "CreateUser"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	var in workflow.NewUser
	if username := r.text("username"); username != nil {
		in.Username = *username
	}
	if password := r.text("password"); password != nil {
		in.Password = *password
	}
	if role := r.text("role"); role != nil {
		in.Role = models.Role(*role)
	}
	if email := r.text("email"); email != nil {
		in.Email = *email
	}
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	user, err := s.workflow.CreateUser(ctx, actor, in)
	if err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{"user": encodeUser(user)})
}

// EditUser changes the given fields. An omitted or blank password keeps the
// current one; a null email clears it.
func (s *UserService) EditUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "EditUser"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	id := r.id("id")
	edit := workflow.UserEdit{
		Username: r.text("username"),
		Password: r.text("password"),
		Email:    clearableText(r, "email"),
	}
	if role := r.text("role"); role != nil {
		parsed := models.Role(*role)
		edit.Role = &parsed
	}
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	user, err := s.workflow.EditUser(ctx, actor, id, edit)
	if err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{"user": encodeUser(user)})
}

func (s *UserService) DeleteUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "DeleteUser"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	id := r.id("id")
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	if err := s.workflow.DeleteUser(ctx, actor, id); err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{"id": id, "deleted": true})
}
