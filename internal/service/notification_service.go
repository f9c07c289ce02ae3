package service

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/tasktracker/internal/workflow"
)

type NotificationService struct {
	workflow *workflow.Workflow
}

func NewNotificationService(wf *workflow.Workflow) *NotificationService {
	return &NotificationService{workflow: wf}
}

var _ NotificationServer = (*NotificationService)(nil)

// ListNotifications returns the caller's latest notifications and marks them
// read.
func (s *NotificationService) ListNotifications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const method = "ListNotifications"
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	r := newReader(req)
	var limit int
	if n := r.integer("limit"); n != nil {
		limit = int(*n)
	}
	if r.err != nil {
		return nil, toStatus(method, r.err)
	}

	list, err := s.workflow.ListNotifications(ctx, actor, limit)
	if err != nil {
		return nil, toStatus(method, err)
	}

	return respond(map[string]interface{}{"notifications": encodeNotifications(list)})
}

func (s *NotificationService) UnreadCount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}

	count, err := s.workflow.UnreadCount(ctx, actor)
	if err != nil {
		return nil, toStatus("UnreadCount", err)
	}

	return respond(map[string]interface{}{"unread": count})
}
