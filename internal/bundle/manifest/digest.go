package manifest

import (
	"encoding/hex"
	"sync"

	"github.com/zeebo/blake3"
)

// DigestCodec is the one-way token strategy: the token is a blake3 hex digest
// of the joined file list, resolved through a process-wide table.
//
// The table grows monotonically and is never evicted or persisted; tokens
// minted before a process restart no longer resolve. Callers accept that
// trade-off in exchange for tokens that reveal nothing about their contents.
type DigestCodec struct {
	mu    sync.RWMutex
	lists map[string][]string
}

// NewDigestCodec returns a codec with an empty lookup table.
func NewDigestCodec() *DigestCodec {
	return &DigestCodec{lists: make(map[string][]string)}
}

// Encode hashes the joined list and records it in the lookup table.
func (c *DigestCodec) Encode(files []string) (string, error) {
	sum := blake3.Sum256([]byte(joinList(files)))
	token := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.lists[token]; !ok {
		c.lists[token] = append([]string(nil), files...)
	}
	return token, nil
}

// Decode resolves a token through the table, or returns an empty list for
// tokens this process has never encoded.
func (c *DigestCodec) Decode(token string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	files, ok := c.lists[token]
	if !ok {
		return nil
	}
	return append([]string(nil), files...)
}

// Len reports how many manifests the table currently holds.
func (c *DigestCodec) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lists)
}
