package directory

import "errors"

var (
	// ErrRoomNotFound is returned by key lookups with no matching room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrAuthRequired is returned when a room operation has no authenticated principal.
	ErrAuthRequired = errors.New("authentication required")
	// ErrValidation is returned for empty or malformed key/invite input.
	ErrValidation = errors.New("invalid input")
	// ErrKeyExhausted is returned when key generation exhausts its retry budget.
	ErrKeyExhausted = errors.New("room key space exhausted")
	// ErrDirectory wraps any other directory-store failure.
	ErrDirectory = errors.New("directory failure")
)
