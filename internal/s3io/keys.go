package s3io

import (
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Attachment key layout: attachments/<principalID>/<ULID>/<filename>.
const attachmentPrefix = "attachments"

// BuildKey constructs a fresh attachment key for an upload by principalID.
func BuildKey(principalID, filename string) string {
	return path.Join(attachmentPrefix, safeSegment(principalID), ulid.Make().String(), safeSegment(filename))
}

// ParseKey extracts the owning principal id from an attachment key.
func ParseKey(key string) (principalID string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 4 || parts[0] != attachmentPrefix {
		return "", false
	}
	for _, p := range parts[1:] {
		if p == "" || p == "." || p == ".." {
			return "", false
		}
	}
	if _, err := ulid.ParseStrict(parts[2]); err != nil {
		return "", false
	}
	return parts[1], true
}

// safeSegment keeps a value inside a single path segment.
func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
