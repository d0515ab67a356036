package room

import "errors"

var (
	ErrInvalidDescriptor = errors.New("room name cannot be empty")
	ErrRoomNotFound      = errors.New("room not found")
	ErrCapacityExceeded  = errors.New("room is at member capacity")
	ErrAccessDenied      = errors.New("actor may not join this room")
	ErrActorNotMember    = errors.New("actor is not a member of this room")
	ErrOwnerImmutable    = errors.New("room owner cannot be removed or demoted")
)
