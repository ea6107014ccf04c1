package ws

import (
	"crypto/rand"
	"encoding/hex"
)

// newConnID mints a random 32-hex-char id for correlating a socket's
// lifecycle across ops events. Empty on entropy failure; callers tolerate it.
func newConnID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return ""
	}
	return hex.EncodeToString(buf[:])
}
