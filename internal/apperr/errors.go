package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidMove   = errors.New("invalid move")
	ErrValidation    = errors.New("validation failed")
)
