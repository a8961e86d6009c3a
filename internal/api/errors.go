package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/qnbit/pkg/qnbit"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps library errors onto HTTP status codes and error types.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, qnbit.ErrShape),
		errors.Is(err, qnbit.ErrInvalidBlkLen),
		errors.Is(err, qnbit.ErrInvalidBitWidth),
		errors.Is(err, qnbit.ErrBufferTooSmall):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, qnbit.ErrUnsupported):
		return http.StatusUnprocessableEntity, "unsupported_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
