package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/claims-portal/internal/models"
)

var (
	alice   = models.Principal{ID: "u_alice", Email: "a@x.com", Role: models.RolePatient}
	bob     = models.Principal{ID: "u_bob", Email: "b@y.com", Role: models.RolePatient}
	insurer = models.Principal{ID: "u_ins", Email: "adjuster@insure.co", Role: models.RoleInsurer}
	rogue   = models.Principal{ID: "u_rogue", Email: "r@z.com", Role: models.Role("admin")}
)

func newTestPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := New(Config{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return p
}

func TestNewRejectsBadPolicy(t *testing.T) {
	_, err := New(Config{Logger: zerolog.Nop(), PolicyBytes: []byte("permit (")})
	require.Error(t, err)
}

func TestCanCreate(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()

	assert.NoError(t, p.CanCreate(ctx, alice))
	assert.ErrorIs(t, p.CanCreate(ctx, insurer), ErrDenied)
	assert.ErrorIs(t, p.CanCreate(ctx, rogue), ErrDenied)
}

func TestCanRead(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()
	claim := models.Claim{ID: "c1", ClaimantEmail: "a@x.com"}

	tests := []struct {
		name      string
		principal models.Principal
		allowed   bool
	}{
		{"owner patient", alice, true},
		{"owner patient with different case", models.Principal{ID: "u_alice", Email: "A@X.com", Role: models.RolePatient}, true},
		{"other patient", bob, false},
		{"insurer", insurer, true},
		{"unknown role", rogue, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.CanRead(ctx, tt.principal, claim)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrDenied)
			}
		})
	}
}

func TestCanUpdate(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()
	claim := models.Claim{ID: "c1", ClaimantEmail: "a@x.com"}

	assert.NoError(t, p.CanUpdate(ctx, insurer, claim))
	// Owning a claim does not let a patient adjudicate it.
	assert.ErrorIs(t, p.CanUpdate(ctx, alice, claim), ErrDenied)
	assert.ErrorIs(t, p.CanUpdate(ctx, rogue, claim), ErrDenied)
}

func TestAttachments(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()

	assert.NoError(t, p.CanUploadAttachment(ctx, alice))
	assert.ErrorIs(t, p.CanUploadAttachment(ctx, insurer), ErrDenied)

	assert.NoError(t, p.CanReadAttachment(ctx, alice, "attachments/u_alice/x/scan.pdf", "u_alice"))
	assert.ErrorIs(t, p.CanReadAttachment(ctx, bob, "attachments/u_alice/x/scan.pdf", "u_alice"), ErrDenied)
	assert.NoError(t, p.CanReadAttachment(ctx, insurer, "attachments/u_alice/x/scan.pdf", "u_alice"))
}

func TestListFilter(t *testing.T) {
	p := newTestPolicy(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	amount := 500.0

	requested := models.ClaimFilter{
		ClaimantEmail: "b@y.com",
		Status:        models.StatusPending,
		ClaimAmount:   &amount,
		StartDate:     &start,
	}

	t.Run("patient filter is forced to own email", func(t *testing.T) {
		f, err := p.ListFilter(ctx, alice, requested)
		require.NoError(t, err)
		assert.Equal(t, models.ClaimFilter{ClaimantEmail: "a@x.com"}, f)
	})

	t.Run("insurer keeps requested constraints", func(t *testing.T) {
		f, err := p.ListFilter(ctx, insurer, requested)
		require.NoError(t, err)
		assert.Empty(t, f.ClaimantEmail)
		assert.Equal(t, models.StatusPending, f.Status)
		assert.Equal(t, &amount, f.ClaimAmount)
		assert.Equal(t, &start, f.StartDate)
		assert.Nil(t, f.EndDate)
	})

	t.Run("unknown role is denied", func(t *testing.T) {
		_, err := p.ListFilter(ctx, rogue, requested)
		assert.True(t, errors.Is(err, ErrDenied))
	})
}

func TestDecisionCarriesPolicyID(t *testing.T) {
	p := newTestPolicy(t)
	d := p.Authorize(context.Background(), insurer, ActionRead, Resource{Type: TypeClaim, ID: "c1"})
	assert.True(t, d.Allowed)
	assert.NotEmpty(t, d.PolicyID)
	assert.NoError(t, d.Err())
}
