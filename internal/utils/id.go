package utils

import "github.com/google/uuid"

// NewConnectionID returns a unique identifier for a live connection.
func NewConnectionID() string {
	return uuid.NewString()
}

// NewCallID returns a unique identifier for a call log.
func NewCallID() string {
	return uuid.NewString()
}
