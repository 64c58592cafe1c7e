// Package xid mints prefixed, collision-resistant identifiers for ledger rows.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id like "sale-1712345678901234567-a1b2c3d4e5f60718".
// The timestamp keeps ids roughly sortable; the random tail avoids clashes
// when several rows are minted in the same nanosecond.
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
