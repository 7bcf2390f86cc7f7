package state

import (
	"fmt"

	"github.com/google/uuid"
)

// ShortIDLength is the display length of a run ID.
const ShortIDLength = 18

// NewRunID returns a time-ordered UUIDv7 string.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate run ID: %w", err)
	}
	return id.String(), nil
}

// ShortID returns the leading characters of an ID for display.
func ShortID(id string) string {
	if len(id) < ShortIDLength {
		return id
	}
	return id[:ShortIDLength]
}
