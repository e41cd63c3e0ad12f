package models

import "errors"

// Repository sentinel errors shared by every storage backend.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)
