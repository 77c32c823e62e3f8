package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

const TOKEN_BYTE_LENGTH = 16

// Identity is an anonymous per-browser-profile account. The token is the
// only credential; it never expires and never rotates.
type Identity struct {
	ID        string
	Token     string
	CreatedAt time.Time
}

func NewToken() (string, error) {
	tokenByte := make([]byte, TOKEN_BYTE_LENGTH)
	if _, err := io.ReadFull(rand.Reader, tokenByte); err != nil {
		return "", fmt.Errorf("failed to generate identity token: %w", err)
	}
	return hex.EncodeToString(tokenByte), nil
}
