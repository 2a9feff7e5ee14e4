package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/claims-portal/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "claims.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store) map[string]string {
	t.Helper()
	ctx := context.Background()
	ids := map[string]string{}
	for name, c := range map[string]models.Claim{
		"dental": {ClaimantName: "A", ClaimantEmail: "a@x.com", ClaimAmount: 500, Description: "dental", Status: models.StatusPending, SubmissionDate: base},
		"vision": {ClaimantName: "A", ClaimantEmail: "a@x.com", ClaimAmount: 120, Description: "vision", Status: models.StatusApproved, SubmissionDate: base.Add(48 * time.Hour)},
		"knee":   {ClaimantName: "B", ClaimantEmail: "b@y.com", ClaimAmount: 500, Description: "knee", Status: models.StatusRejected, SubmissionDate: base.Add(24 * time.Hour)},
	} {
		id, err := s.Create(ctx, c)
		require.NoError(t, err)
		ids[name] = id
	}
	return ids
}

func descriptions(cs []models.Claim) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Description
	}
	return out
}

func TestCreateGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	in := models.Claim{
		ClaimantName:   "Alice",
		ClaimantEmail:  "a@x.com",
		ClaimAmount:    500,
		Description:    "dental",
		DocumentRef:    "attachments/u_alice/01ARZ3NDEKTSV4RRFFQ69G5FAV/xray.png",
		Status:         models.StatusPending,
		SubmissionDate: base.Add(123456789 * time.Nanosecond),
	}
	id, err := s.Create(ctx, in)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	in.ID = id
	assert.Equal(t, in, got)
	assert.Nil(t, got.ApprovedAmount)
	assert.Nil(t, got.InsurerComments)
}

func TestGetMissing(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestFind(t *testing.T) {
	s := setupTestStore(t)
	seed(t, s)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter models.ClaimFilter
		want   []string
	}{
		{"no filter, newest first", models.ClaimFilter{}, []string{"vision", "knee", "dental"}},
		{"by email", models.ClaimFilter{ClaimantEmail: "A@X.com"}, []string{"vision", "dental"}},
		{"by status", models.ClaimFilter{Status: models.StatusPending}, []string{"dental"}},
		{"by exact amount", models.ClaimFilter{ClaimAmount: ptr(500.0)}, []string{"knee", "dental"}},
		{"start inclusive", models.ClaimFilter{StartDate: ptr(base.Add(24 * time.Hour))}, []string{"vision", "knee"}},
		{"end inclusive", models.ClaimFilter{EndDate: ptr(base.Add(24 * time.Hour))}, []string{"knee", "dental"}},
		{"range", models.ClaimFilter{StartDate: ptr(base.Add(time.Hour)), EndDate: ptr(base.Add(47 * time.Hour))}, []string{"knee"}},
		{"combined", models.ClaimFilter{Status: models.StatusRejected, ClaimAmount: ptr(120.0)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Find(ctx, tt.filter)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, descriptions(got))
		})
	}
}

func TestFindTieBreaksByID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	var ids []string
	for range 3 {
		id, err := s.Create(ctx, models.Claim{ClaimantName: "A", ClaimantEmail: "a@x.com", ClaimAmount: 1, Description: "same", Status: models.StatusPending, SubmissionDate: base})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got, err := s.Find(ctx, models.ClaimFilter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i-1].ID, got[i].ID)
	}
}

func TestUpdate(t *testing.T) {
	s := setupTestStore(t)
	ids := seed(t, s)
	ctx := context.Background()

	existing, err := s.Get(ctx, ids["dental"])
	require.NoError(t, err)

	changed := existing
	changed.Status = models.StatusApproved
	changed.ApprovedAmount = ptr(400.0)
	changed.InsurerComments = ptr("covered")
	changed.ClaimantEmail = "mallory@evil.com"
	changed.SubmissionDate = base.Add(1000 * time.Hour)

	got, err := s.Update(ctx, ids["dental"], changed)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, 400.0, *got.ApprovedAmount)
	assert.Equal(t, "covered", *got.InsurerComments)
	assert.Equal(t, "a@x.com", got.ClaimantEmail, "ownership never changes")
	assert.True(t, base.Equal(got.SubmissionDate), "submission date never changes")
}

func TestUpdateMissing(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Update(context.Background(), "nope", models.Claim{Status: models.StatusPending})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPrincipals(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetPrincipal(ctx, "u_alice")
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.PutPrincipal(ctx, models.Principal{ID: "u_alice", Email: "A@X.com", Role: models.RolePatient}))
	p, err := s.GetPrincipal(ctx, "u_alice")
	require.NoError(t, err)
	assert.Equal(t, models.Principal{ID: "u_alice", Email: "a@x.com", Role: models.RolePatient}, p)

	require.NoError(t, s.PutPrincipal(ctx, models.Principal{ID: "u_alice", Email: "a@x.com", Role: models.RoleInsurer}))
	p, err = s.GetPrincipal(ctx, "u_alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleInsurer, p.Role)
}
