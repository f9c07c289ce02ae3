// internal/middleware/validation.go
package middleware

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/tasktracker/internal/models"
)

// ValidationConfig holds validation configuration
type ValidationConfig struct {
	MaxTitleLength       int
	MaxDescriptionLength int
	MaxNoteLength        int
	MaxAttachments       int
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxTitleLength:       200,
		MaxDescriptionLength: 5000,
		MaxNoteLength:        2000,
		MaxAttachments:       10,
	}
}

const (
	maxUsernameLength = 64
	maxEmailLength    = 254
)

// ValidationInterceptor rejects malformed requests before they reach a
// service. It checks shape and limits only; rules that need stored state
// belong to the workflow.
type ValidationInterceptor struct {
	config *ValidationConfig
}

// NewValidationInterceptor creates a new validation interceptor
func NewValidationInterceptor(config *ValidationConfig) *ValidationInterceptor {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &ValidationInterceptor{config: config}
}

// Unary returns a unary server interceptor for request validation
func (v *ValidationInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if s, ok := req.(*structpb.Struct); ok {
			if err := v.validateRequest(s, info.FullMethod); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

func (v *ValidationInterceptor) validateRequest(req *structpb.Struct, method string) error {
	var problems []string
	check := func(problem string) {
		if problem != "" {
			problems = append(problems, problem)
		}
	}

	switch method {
	case "/tasktracker.v1.TaskService/CreateTask":
		check(v.requiredText(req, "title", v.config.MaxTitleLength))
		check(v.optionalText(req, "description", v.config.MaxDescriptionLength))
		check(requiredID(req, "assigned_to"))
		check(optionalID(req, "secondary_id"))
		check(optionalID(req, "tertiary_id"))
		check(optionalStatus(req, "status"))
	case "/tasktracker.v1.TaskService/EditTask":
		check(requiredID(req, "id"))
		check(v.optionalText(req, "title", v.config.MaxTitleLength))
		check(v.optionalText(req, "description", v.config.MaxDescriptionLength))
		check(optionalID(req, "assigned_to"))
		check(optionalID(req, "secondary_id"))
		check(optionalID(req, "tertiary_id"))
		check(optionalStatus(req, "status"))
	case "/tasktracker.v1.TaskService/ApplyUpdate":
		check(requiredID(req, "task_id"))
		check(optionalStatus(req, "status"))
		check(v.optionalText(req, "note", v.config.MaxNoteLength))
		check(v.attachments(req))
	case "/tasktracker.v1.TaskService/ChangeStatus":
		check(requiredID(req, "id"))
		if _, ok := req.GetFields()["status"]; !ok {
			check("status is required")
		}
		check(optionalStatus(req, "status"))
	case "/tasktracker.v1.TaskService/GetTask",
		"/tasktracker.v1.TaskService/DeleteTask":
		check(requiredID(req, "id"))
	case "/tasktracker.v1.TaskService/ListTasks":
		check(optionalStatus(req, "status"))
		check(nonNegative(req, "limit"))
		check(nonNegative(req, "offset"))
	case "/tasktracker.v1.NotificationService/ListNotifications":
		check(nonNegative(req, "limit"))
	case "/tasktracker.v1.UserService/CreateUser":
		check(v.requiredText(req, "username", maxUsernameLength))
		check(v.requiredText(req, "password", 0))
		check(requiredRole(req, "role"))
		check(v.nullableText(req, "email", maxEmailLength))
	case "/tasktracker.v1.UserService/EditUser":
		check(requiredID(req, "id"))
		check(v.optionalText(req, "username", maxUsernameLength))
		check(v.optionalText(req, "password", 0))
		check(optionalRole(req, "role"))
		check(v.nullableText(req, "email", maxEmailLength))
	case "/tasktracker.v1.UserService/DeleteUser":
		check(requiredID(req, "id"))
	}

	if len(problems) > 0 {
		return status.Error(codes.InvalidArgument, strings.Join(problems, "; "))
	}
	return nil
}

func (v *ValidationInterceptor) requiredText(req *structpb.Struct, field string, limit int) string {
	value, ok := req.GetFields()[field]
	if !ok || strings.TrimSpace(value.GetStringValue()) == "" {
		return field + " is required"
	}
	return v.optionalText(req, field, limit)
}

func (v *ValidationInterceptor) optionalText(req *structpb.Struct, field string, limit int) string {
	value, ok := req.GetFields()[field]
	if !ok {
		return ""
	}
	if _, isString := value.GetKind().(*structpb.Value_StringValue); !isString {
		return field + " must be a string"
	}
	if limit > 0 && utf8.RuneCountInString(value.GetStringValue()) > limit {
		return fmt.Sprintf("%s too long (max %d characters)", field, limit)
	}
	return ""
}

// nullableText is optionalText that also accepts an explicit null.
func (v *ValidationInterceptor) nullableText(req *structpb.Struct, field string, limit int) string {
	if value, ok := req.GetFields()[field]; ok {
		if _, isNull := value.GetKind().(*structpb.Value_NullValue); isNull {
			return ""
		}
	}
	return v.optionalText(req, field, limit)
}

func (v *ValidationInterceptor) attachments(req *structpb.Struct) string {
	value, ok := req.GetFields()["files"]
	if !ok {
		return ""
	}
	list := value.GetListValue()
	if list == nil {
		return "files must be a list"
	}
	if v.config.MaxAttachments > 0 && len(list.GetValues()) > v.config.MaxAttachments {
		return fmt.Sprintf("too many files (max %d)", v.config.MaxAttachments)
	}
	for i, item := range list.GetValues() {
		file := item.GetStructValue()
		if file == nil || strings.TrimSpace(file.GetFields()["filename"].GetStringValue()) == "" {
			return fmt.Sprintf("files[%d].filename is required", i)
		}
	}
	return ""
}

func requiredID(req *structpb.Struct, field string) string {
	if _, ok := req.GetFields()[field]; !ok {
		return field + " is required"
	}
	if problem := optionalID(req, field); problem != "" {
		return problem
	}
	if req.GetFields()[field].GetNumberValue() <= 0 {
		return field + " must be a positive id"
	}
	return ""
}

// optionalID accepts a missing field, zero (clears the reference) or a
// positive integer.
func optionalID(req *structpb.Struct, field string) string {
	value, ok := req.GetFields()[field]
	if !ok {
		return ""
	}
	if _, isNull := value.GetKind().(*structpb.Value_NullValue); isNull {
		return ""
	}
	n, isNumber := value.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue < 0 || n.NumberValue != math.Trunc(n.NumberValue) {
		return field + " must be a user id"
	}
	return ""
}

func optionalStatus(req *structpb.Struct, field string) string {
	value, ok := req.GetFields()[field]
	if !ok {
		return ""
	}
	if !models.TaskStatus(value.GetStringValue()).IsValid() {
		return fmt.Sprintf("%s must be one of %v", field, models.AllStatuses())
	}
	return ""
}

func nonNegative(req *structpb.Struct, field string) string {
	value, ok := req.GetFields()[field]
	if ok && value.GetNumberValue() < 0 {
		return field + " must not be negative"
	}
	return ""
}

func requiredRole(req *structpb.Struct, field string) string {
	if _, ok := req.GetFields()[field]; !ok {
		return field + " is required"
	}
	return optionalRole(req, field)
}

func optionalRole(req *structpb.Struct, field string) string {
	value, ok := req.GetFields()[field]
	if !ok {
		return ""
	}
	if !models.Role(value.GetStringValue()).IsValid() {
		return field + " must be admin, creator or user"
	}
	return ""
}
