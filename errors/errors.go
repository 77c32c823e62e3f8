package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("NOT FOUND")
	ErrInvalidInput = errors.New("INVALID INPUT")
	ErrAuth         = errors.New("UNAUTHORIZED")
	ErrAccessDenied = errors.New("ACCESS DENIED")
	ErrConflict     = errors.New("CONFLICT")
	ErrInternal     = errors.New("INTERNAL")
)

type ErrorResponse struct {
	Code    error  `json:"code"`
	Message string `json:"message"`
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("code: %s, message: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is match an ErrorResponse against its code.
func (e ErrorResponse) Unwrap() error {
	return e.Code
}
