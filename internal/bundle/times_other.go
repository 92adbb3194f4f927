//go:build !linux

package bundle

import (
	"io/fs"
	"time"
)

// accessTime approximates the access time with the modification time on
// platforms where stat does not expose it portably.
func accessTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
