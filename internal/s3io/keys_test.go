package s3io

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildAndParseKey(t *testing.T) {
	key := BuildKey("u_alice", "scan.pdf")
	assert.True(t, strings.HasPrefix(key, "attachments/u_alice/"))
	assert.True(t, strings.HasSuffix(key, "/scan.pdf"))

	owner, ok := ParseKey(key)
	assert.True(t, ok)
	assert.Equal(t, "u_alice", owner)
}

func TestBuildKeyKeepsSegmentsFlat(t *testing.T) {
	key := BuildKey("u/../alice", "../../etc/passwd")
	assert.Len(t, strings.Split(key, "/"), 4)

	owner, ok := ParseKey(key)
	assert.True(t, ok)
	assert.Equal(t, "u_.._alice", owner)
}

func TestParseKeyRejects(t *testing.T) {
	for _, key := range []string{
		"",
		"user/u_alice/claim.txt",
		"attachments/u_alice/scan.pdf",
		"attachments/u_alice/not-a-ulid/scan.pdf",
		"attachments//01ARZ3NDEKTSV4RRFFQ69G5FAV/scan.pdf",
		"attachments/u_alice/01ARZ3NDEKTSV4RRFFQ69G5FAV/../x",
		"attachments/u_alice/01ARZ3NDEKTSV4RRFFQ69G5FAV/a/b",
	} {
		_, ok := ParseKey(key)
		assert.False(t, ok, key)
	}
}
