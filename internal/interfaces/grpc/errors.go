package grpc

import (
	"context"
	stderrors "errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// toStatus maps an application error to a gRPC status through its HTTP
// status, so both transports agree on the error class. The message keeps the
// "[CODE] message" form; details of server-side errors are dropped.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case stderrors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return status.Error(codes.Internal, errors.DefaultMessageForCode(errors.ErrCodeInternal))
	}
	httpStatus := errors.HTTPStatusForCode(appErr.Code)
	msg := "[" + appErr.Code.String() + "] " + appErr.Message
	if httpStatus < http.StatusInternalServerError && appErr.Detail != "" {
		msg += ": " + appErr.Detail
	}
	return status.Error(codeForHTTP(httpStatus), msg)
}

func codeForHTTP(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

//Personal.AI order the ending
