package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/claims-portal/internal/authz"
	"github.com/kylejryan/claims-portal/internal/config"
	"github.com/kylejryan/claims-portal/internal/models"
)

func sqliteEnv(t *testing.T) config.Env {
	t.Helper()
	return config.Env{
		Backend:    config.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "claims.db"),
		JWTSecret:  []byte("0123456789abcdef0123456789abcdef"),
		MergeMode:  "present",
		PresignTTL: time.Minute,
	}
}

func TestBuildSQLite(t *testing.T) {
	env := sqliteEnv(t)
	ctx := context.Background()

	c, err := Build(ctx, env, zerolog.Nop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	assert.Nil(t, c.Blobs)

	alice := models.Principal{ID: "u_alice", Email: "a@x.com", Role: models.RolePatient}
	require.NoError(t, c.Store.PutPrincipal(ctx, alice))

	tok, err := authz.IssueToken(env.JWTSecret, "", alice.ID, time.Hour, time.Now())
	require.NoError(t, err)
	p, err := c.Service.Authenticate(ctx, map[string]string{"authorization": "Bearer " + tok})
	require.NoError(t, err)
	assert.Equal(t, alice, p)

	amount := 10.0
	created, err := c.Service.Create(ctx, p, models.ClaimSubmission{
		ClaimantName: "Alice", ClaimantEmail: "a@x.com", ClaimAmount: &amount, Description: "checkup",
	})
	require.NoError(t, err)
	got, err := c.Store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkup", got.Description)
}

func TestBuildRejectsUnknownBackend(t *testing.T) {
	env := sqliteEnv(t)
	env.Backend = "mongo"
	_, err := Build(context.Background(), env, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestBuildRejectsUnknownMergeMode(t *testing.T) {
	env := sqliteEnv(t)
	env.MergeMode = "falsy"
	_, err := Build(context.Background(), env, zerolog.Nop(), nil)
	assert.Error(t, err)
}
