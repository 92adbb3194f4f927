package bundle

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"

	apperrors "github.com/louisbranch/assetpipe/internal/platform/errors"
)

// tmpPrefix marks artifacts built for a version other than the configured
// one. They share the output directory with canonical artifacts but can
// never collide with them, so a stale or hostile version suffix cannot
// overwrite a cached bundle.
const tmpPrefix = "tmp."

// artifactDigestLen is the number of blake3 bytes kept in artifact names.
// The digest is the only link between a token and its cached content; see
// DESIGN.md for the accepted collision risk at this length.
const artifactDigestLen = 12

// ParseName splits a request segment of the form "{token}-{version}.js" into
// its token and version suffix. The split happens at the last dash so tokens
// may themselves contain dashes. A segment without a dash carries no version.
func ParseName(raw string) (token, version string, err error) {
	name := strings.TrimSpace(raw)
	if name == "" || !strings.HasSuffix(name, ".js") {
		return "", "", apperrors.E(apperrors.KindInvalidInput, "bundle name must end in .js")
	}
	name = strings.TrimSuffix(name, ".js")
	idx := strings.LastIndex(name, "-")
	if idx < 0 {
		return name, "", nil
	}
	return name[:idx], name[idx+1:], nil
}

// artifactName derives the on-disk file name for a token. Hashing the token
// keeps arbitrary-length, arbitrary-character tokens out of file names.
func artifactName(version, token string, canonical bool) string {
	sum := blake3.Sum256([]byte(token))
	name := version + "." + hex.EncodeToString(sum[:artifactDigestLen]) + ".js"
	if !canonical {
		return tmpPrefix + name
	}
	return name
}
