package engine

import "github.com/google/uuid"

// NewID generates a fresh, collision-resistant engine identifier.
func NewID() string {
	return uuid.NewString()
}
