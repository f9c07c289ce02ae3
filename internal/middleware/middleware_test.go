package middleware

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/tasktracker/internal/models"
	"github.com/gurkanbulca/tasktracker/pkg/auth"
)

func passThrough(ctx context.Context, req interface{}) (interface{}, error) {
	return ctx, nil
}

func TestAuthInterceptor(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Hour)
	interceptor := NewAuthInterceptor(tm).Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "/tasktracker.v1.TaskService/GetTask"}

	token, err := tm.GenerateAccessToken(7, "ayse", "", string(models.RoleCreator))
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
	out, err := interceptor(ctx, nil, info, passThrough)
	require.NoError(t, err)

	actor, ok := ActorFromContext(out.(context.Context))
	require.True(t, ok)
	assert.Equal(t, int64(7), actor.ID)
	assert.Equal(t, "ayse", actor.Name)
	assert.Equal(t, models.RoleCreator, actor.Role)
	assert.Equal(t, "7", GetClientInfoFromContext(out.(context.Context)).UserID)

	for name, md := range map[string]metadata.MD{
		"no header":  metadata.Pairs(),
		"bad scheme": metadata.Pairs("authorization", "Basic "+token),
		"bad token":  metadata.Pairs("authorization", "Bearer nope"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := interceptor(metadata.NewIncomingContext(context.Background(), md), nil, info, passThrough)
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}

	badRole, err := tm.GenerateAccessToken(7, "ayse", "", "superuser")
	require.NoError(t, err)
	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+badRole))
	_, err = interceptor(ctx, nil, info, passThrough)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, passThrough)
	assert.NoError(t, err)
}

func TestMetadataExtractor(t *testing.T) {
	interceptor := NewMetadataExtractorInterceptor().Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "/x/y"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("user-agent", "cli/1.0", "x-request-id", "req-1"))
	out, err := interceptor(ctx, nil, info, passThrough)
	require.NoError(t, err)

	clientInfo := GetClientInfoFromContext(out.(context.Context))
	assert.Equal(t, "cli/1.0", clientInfo.UserAgent)
	assert.Equal(t, "req-1", clientInfo.RequestID)

	out, err = interceptor(context.Background(), nil, info, passThrough)
	require.NoError(t, err)
	assert.Len(t, GetRequestIDFromContext(out.(context.Context)), 36)
}

func TestValidationInterceptor(t *testing.T) {
	v := NewValidationInterceptor(&ValidationConfig{MaxTitleLength: 5, MaxNoteLength: 10, MaxAttachments: 1})

	tests := []struct {
		name   string
		method string
		req    map[string]interface{}
		valid  bool
	}{
		{"create ok", "CreateTask", map[string]interface{}{"title": "Fix", "assigned_to": 3}, true},
		{"create missing title", "CreateTask", map[string]interface{}{"assigned_to": 3}, false},
		{"create long title", "CreateTask", map[string]interface{}{"title": "Too long", "assigned_to": 3}, false},
		{"create fractional id", "CreateTask", map[string]interface{}{"title": "Fix", "assigned_to": 1.5}, false},
		{"create bad status", "CreateTask", map[string]interface{}{"title": "Fix", "assigned_to": 3, "status": "later"}, false},
		{"edit clears secondary", "EditTask", map[string]interface{}{"id": 1, "secondary_id": 0}, true},
		{"edit negative id", "EditTask", map[string]interface{}{"id": 1, "tertiary_id": -2}, false},
		{"update ok", "ApplyUpdate", map[string]interface{}{"task_id": 1, "status": "done", "note": "ok"}, true},
		{"update long note", "ApplyUpdate", map[string]interface{}{"task_id": 1, "note": "much too long"}, false},
		{"update too many files", "ApplyUpdate", map[string]interface{}{"task_id": 1, "files": []interface{}{
			map[string]interface{}{"filename": "a"}, map[string]interface{}{"filename": "b"},
		}}, false},
		{"update file without name", "ApplyUpdate", map[string]interface{}{"task_id": 1, "files": []interface{}{
			map[string]interface{}{"original_name": "a"},
		}}, false},
		{"status requires status", "ChangeStatus", map[string]interface{}{"id": 1}, false},
		{"get requires id", "GetTask", map[string]interface{}{}, false},
		{"list negative limit", "ListTasks", map[string]interface{}{"limit": -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := structpb.NewStruct(tt.req)
			require.NoError(t, err)

			info := &grpc.UnaryServerInfo{FullMethod: "/tasktracker.v1.TaskService/" + tt.method}
			_, err = v.Unary()(context.Background(), req, info, passThrough)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, codes.InvalidArgument, status.Code(err))
			}
		})
	}
}

func TestValidationInterceptor_Users(t *testing.T) {
	v := NewValidationInterceptor(nil)

	tests := []struct {
		name   string
		method string
		req    map[string]interface{}
		valid  bool
	}{
		{"create ok", "CreateUser", map[string]interface{}{"username": "field1", "password": "s3cret!!", "role": "user"}, true},
		{"create with email", "CreateUser", map[string]interface{}{"username": "field1", "password": "s3cret!!", "role": "creator", "email": "f@example.com"}, true},
		{"create missing password", "CreateUser", map[string]interface{}{"username": "field1", "role": "user"}, false},
		{"create missing role", "CreateUser", map[string]interface{}{"username": "field1", "password": "s3cret!!"}, false},
		{"create unknown role", "CreateUser", map[string]interface{}{"username": "field1", "password": "s3cret!!", "role": "owner"}, false},
		{"create long username", "CreateUser", map[string]interface{}{"username": strings.Repeat("x", 65), "password": "s3cret!!", "role": "user"}, false},
		{"edit clears email", "EditUser", map[string]interface{}{"id": 2, "email": nil}, true},
		{"edit bad role", "EditUser", map[string]interface{}{"id": 2, "role": "root"}, false},
		{"edit numeric username", "EditUser", map[string]interface{}{"id": 2, "username": 7}, false},
		{"edit requires id", "EditUser", map[string]interface{}{"username": "x"}, false},
		{"delete ok", "DeleteUser", map[string]interface{}{"id": 2}, true},
		{"delete zero id", "DeleteUser", map[string]interface{}{"id": 0}, false},
		{"list takes no fields", "ListUsers", map[string]interface{}{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := structpb.NewStruct(tt.req)
			require.NoError(t, err)

			info := &grpc.UnaryServerInfo{FullMethod: "/tasktracker.v1.UserService/" + tt.method}
			_, err = v.Unary()(context.Background(), req, info, passThrough)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, codes.InvalidArgument, status.Code(err))
			}
		})
	}
}
