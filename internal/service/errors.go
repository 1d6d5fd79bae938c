package service

import "errors"

var (
	ErrNotFound      = errors.New("error not found")
	ErrConflict      = errors.New("error conflict")
	ErrForbidden     = errors.New("error forbidden")
	ErrNotConfigured = errors.New("error not configured")
	ErrInvalidInput  = errors.New("error invalid input")
)
