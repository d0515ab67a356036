package session

import "errors"

var (
	ErrEmptyActorID   = errors.New("actor id cannot be empty")
	ErrInvalidRole    = errors.New("invalid role: must be student, teacher or admin")
	ErrHandleNotFound = errors.New("session handle not found")
)
