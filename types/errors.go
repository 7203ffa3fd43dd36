package types

import "errors"

var (
	ErrMissingField  = errors.New("missing required field")
	ErrNicknameInUse = errors.New("nickname already in use")
	ErrEmptyRoomId   = errors.New("empty room id")
	ErrRoomNotFound  = errors.New("room not found")
	// ErrRoomClosed is returned when a room was removed from the directory between lookup and mutation.
	ErrRoomClosed = errors.New("room closed")
	ErrNotMember  = errors.New("connection is not a member of the room")
	ErrNotBound   = errors.New("connection is not bound to the room")
)
