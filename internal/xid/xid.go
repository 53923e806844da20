// Package xid mints prefixed identifiers for ledger rows and records.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id of the form "<prefix>-<unix-nanos>-<entropy>". The
// timestamp keeps ids roughly ordered by creation; the random suffix
// disambiguates ids minted in the same nanosecond.
func New(prefix string) string {
	entropy := make([]byte, 10)
	if _, err := rand.Read(entropy); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(entropy))
}
