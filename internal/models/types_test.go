package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"Pending", "Approved", "Rejected", " Approved "} {
		got, err := ParseStatus(s)
		require.NoError(t, err, s)
		assert.True(t, got.Valid())
	}
	for _, s := range []string{"", "pending", "Closed"} {
		_, err := ParseStatus(s)
		assert.Error(t, err, s)
		assert.False(t, ClaimStatus(s).Valid())
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Insurer ")
	require.NoError(t, err)
	assert.Equal(t, RoleInsurer, r)

	_, err = ParseRole("admin")
	assert.Error(t, err)
}

func TestSortClaims(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cs := []Claim{
		{ID: "01A", SubmissionDate: base},
		{ID: "01C", SubmissionDate: base.Add(time.Hour)},
		{ID: "01B", SubmissionDate: base},
		{ID: "01D", SubmissionDate: base.Add(-time.Hour)},
	}
	SortClaims(cs)

	var ids []string
	for _, c := range cs {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"01C", "01B", "01A", "01D"}, ids)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.Com "))
}
