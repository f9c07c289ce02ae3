package service

import (
	"errors"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gurkanbulca/tasktracker/internal/apperror"
)

// toStatus maps workflow errors onto gRPC status codes. Anything outside the
// taxonomy is logged and reported as an internal error without details.
func toStatus(method string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var invalid *apperror.ValidationError
	switch {
	case errors.As(err, &invalid):
		return status.Error(codes.InvalidArgument, invalid.Error())
	case errors.Is(err, apperror.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, apperror.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, apperror.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, apperror.ErrConflict):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, apperror.ErrTransient):
		log.Printf("[WARN] %s: %v", method, err)
		return status.Error(codes.Unavailable, "storage temporarily unavailable, retry the request")
	}

	log.Printf("[ERROR] %s: %v", method, err)
	return status.Error(codes.Internal, "internal error")
}
