// Package manifest converts ordered script-file lists into opaque URL tokens
// and back.
//
// Two interchangeable strategies exist. The cipher codec embeds the full list
// in the token and needs no shared state, so any process holding the secret
// can resolve it. The digest codec mints a short one-way hash and keeps the
// list in a process-wide table, so tokens stop resolving after a restart.
package manifest

import (
	"fmt"
	"strings"
)

// Name separator inside the encoded payload. Script names are relative paths
// and never contain it.
const listSeparator = ";"

// Codec converts an ordered file list to an opaque token and back.
//
// Encoding is order-sensitive: the order determines concatenation order in
// the built bundle, so [a,b] and [b,a] are different manifests. Decode never
// fails loudly; malformed, foreign, or unknown tokens yield an empty list.
type Codec interface {
	Encode(files []string) (string, error)
	Decode(token string) []string
}

// Strategy names accepted by New.
const (
	StrategyCipher = "cipher"
	StrategyDigest = "digest"
)

// New builds a Codec for the named strategy.
func New(strategy, secret string) (Codec, error) {
	switch strings.TrimSpace(strategy) {
	case StrategyCipher, "":
		return NewCipherCodec(secret)
	case StrategyDigest:
		return NewDigestCodec(), nil
	default:
		return nil, fmt.Errorf("unknown token strategy %q", strategy)
	}
}

func joinList(files []string) string {
	return strings.Join(files, listSeparator)
}

func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, listSeparator)
}
