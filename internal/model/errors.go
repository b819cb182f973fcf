package model

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrProjectNotFound   = errors.New("project not found")
	ErrProjectReferenced = errors.New("project is still referenced")
	ErrDeletionPending   = errors.New("project deletion already in progress")
	ErrInvalidTransition = errors.New("invalid project state transition")

	ErrPathConflict = errors.New("path conflict")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrJobNotFound = errors.New("job not found")

	ErrInvalidInput = errors.New("invalid input")
)
