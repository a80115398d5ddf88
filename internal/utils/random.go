package utils

import (
	"crypto/rand"
	"fmt"
)

// NewSessionID returns a random 32 character hex identifier.
func NewSessionID() (string, error) {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("can't generate a session id: %w", err)
	}
	return fmt.Sprintf("%X", b), nil
}
