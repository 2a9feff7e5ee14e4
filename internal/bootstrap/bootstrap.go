// Package bootstrap wires the stores, policy and resolver behind a claims.Service
// from one config.Env. Every binary builds its service here.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kylejryan/claims-portal/internal/authz"
	"github.com/kylejryan/claims-portal/internal/awsutil"
	"github.com/kylejryan/claims-portal/internal/claims"
	"github.com/kylejryan/claims-portal/internal/config"
	"github.com/kylejryan/claims-portal/internal/ddb"
	"github.com/kylejryan/claims-portal/internal/logging"
	"github.com/kylejryan/claims-portal/internal/metrics"
	"github.com/kylejryan/claims-portal/internal/models"
	"github.com/kylejryan/claims-portal/internal/policy"
	"github.com/kylejryan/claims-portal/internal/s3io"
	"github.com/kylejryan/claims-portal/internal/sqlstore"
)

// PrincipalStore reads and registers principals.
type PrincipalStore interface {
	authz.PrincipalStore
	PutPrincipal(ctx context.Context, p models.Principal) error
}

// Store is a backend holding both claims and principals.
type Store interface {
	claims.ClaimStore
	PrincipalStore
}

// Components are the wired pieces of one process.
type Components struct {
	Service *claims.Service
	Store   Store
	Blobs   *s3io.Store // nil when no bucket is configured

	close func() error
}

// Close releases the store.
func (c *Components) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// OpenStore opens the configured backend without building a service.
func OpenStore(ctx context.Context, env config.Env) (Store, func() error, error) {
	switch env.Backend {
	case config.BackendSQLite:
		s, err := sqlstore.Open(env.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendDynamoDB:
		cfg, err := awsutil.Load(ctx, env.Region, env.AWSEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		repo := &ddb.Repo{DB: awsutil.NewClients(cfg).DynamoDB, Table: env.Table}
		return repo, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", env.Backend)
}

// Build wires a Service for env. m may be nil.
func Build(ctx context.Context, env config.Env, logger zerolog.Logger, m *metrics.Metrics) (*Components, error) {
	store, closeStore, err := OpenStore(ctx, env)
	if err != nil {
		return nil, err
	}
	c := &Components{Store: store, close: closeStore}

	var blobs claims.BlobStore
	if env.Bucket != "" {
		cfg, err := awsutil.Load(ctx, env.Region, env.AWSEndpoint)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		clients := awsutil.NewClients(cfg)
		c.Blobs = s3io.New(clients.S3, clients.Presign, env.Bucket, env.PresignTTL)
		blobs = c.Blobs
	}

	svc, err := NewService(env, store, blobs, logger, m)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Service = svc
	return c, nil
}

// NewService builds the Service over already-open stores. blobs may be nil.
func NewService(env config.Env, store Store, blobs claims.BlobStore, logger zerolog.Logger, m *metrics.Metrics) (*claims.Service, error) {
	pol, err := policy.New(policy.Config{Logger: logger})
	if err != nil {
		return nil, err
	}
	mode, err := claims.ParseMergeMode(env.MergeMode)
	if err != nil {
		return nil, err
	}
	resolver := authz.NewResolver(authz.Config{
		Secret:    env.JWTSecret,
		Issuer:    env.JWTIssuer,
		DevBypass: env.DevBypassAuth,
	}, store)

	if env.DevBypassAuth {
		logger.Warn().Msg("DEV_BYPASS_AUTH is on: x-user-sub is trusted without a token")
	}

	return claims.NewService(claims.Options{
		Store:    store,
		Blobs:    blobs,
		Policy:   pol,
		Resolver: resolver,
		Logger:   logger,
		Metrics:  m,
		Merge:    mode,
	}), nil
}

// MustBuild loads the environment and wires a service for a binary named
// service, exiting the process on any failure.
func MustBuild(ctx context.Context, service string) (*Components, zerolog.Logger) {
	env := config.MustLoad()
	logger := logging.New(env.LogLevel, env.LogFormat, service)
	c, err := Build(ctx, env, logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	return c, logger
}
