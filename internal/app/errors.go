package app

import "errors"

var (
	ErrForbidden     = errors.New("permission denied")
	ErrNotConnected  = errors.New("no live session for handle")
	ErrNotMember     = errors.New("actor is not a member of this room")
	ErrMessageDenied = errors.New("message rejected")
)
