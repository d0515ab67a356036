package moderation

import "errors"

var (
	ErrUnknownAction = errors.New("unknown moderation action type")
	ErrEmptyTarget   = errors.New("moderation target cannot be empty")
)
