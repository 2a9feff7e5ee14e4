// Package authz turns a request's bearer credential into an authenticated principal.
package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kylejryan/claims-portal/internal/models"
)

var (
	// ErrMissingCredential is returned when no Authorization header is present.
	ErrMissingCredential = errors.New("no token, authorization denied")
	// ErrInvalidCredential covers malformed, badly signed or expired tokens and
	// unknown subjects alike, so callers cannot tell which identities exist.
	ErrInvalidCredential = errors.New("not authorized, token failed")
)

const (
	authorizationHeader = "Authorization"
	devBypassHeader     = "x-user-sub"
	bearerScheme        = "bearer"
)

// PrincipalStore loads principals by id. It returns models.ErrNotFound for unknown ids.
type PrincipalStore interface {
	GetPrincipal(ctx context.Context, id string) (models.Principal, error)
}

// TokenClaims are the claims carried by a bearer token. The subject is read from
// "id" when present, else from the registered "sub" claim.
type TokenClaims struct {
	UserID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Config contains options for the Resolver.
type Config struct {
	Secret    []byte
	Issuer    string // required "iss" when non-empty
	DevBypass bool   // accept x-user-sub in place of a token
	Now       func() time.Time
}

// Resolver verifies HS256 tokens against a shared secret and loads the subject
// from the principal store. There is no session cache: every call hits the store.
type Resolver struct {
	cfg   Config
	store PrincipalStore
}

// NewResolver creates a Resolver.
func NewResolver(cfg Config, store PrincipalStore) *Resolver {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{cfg: cfg, store: store}
}

// Resolve authenticates a request given its headers (matched case-insensitively).
// Store failures other than a missing subject are returned wrapped as-is.
func (r *Resolver) Resolve(ctx context.Context, headers map[string]string) (models.Principal, error) {
	if r.cfg.DevBypass {
		if sub := strings.TrimSpace(headerLookup(headers, devBypassHeader)); sub != "" {
			return r.load(ctx, sub)
		}
	}

	auth := strings.TrimSpace(headerLookup(headers, authorizationHeader))
	if auth == "" {
		return models.Principal{}, ErrMissingCredential
	}

	token, err := bearerToken(auth)
	if err != nil {
		return models.Principal{}, err
	}

	sub, err := r.subject(token)
	if err != nil {
		return models.Principal{}, err
	}
	return r.load(ctx, sub)
}

// subject verifies token and extracts the principal id.
func (r *Resolver) subject(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.cfg.Now),
	}
	if r.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.cfg.Issuer))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return r.cfg.Secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	sub := claims.UserID
	if sub == "" {
		sub = claims.Subject
	}
	if strings.TrimSpace(sub) == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidCredential)
	}
	return sub, nil
}

func (r *Resolver) load(ctx context.Context, id string) (models.Principal, error) {
	p, err := r.store.GetPrincipal(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.Principal{}, fmt.Errorf("%w: unknown subject", ErrInvalidCredential)
	}
	if err != nil {
		return models.Principal{}, fmt.Errorf("load principal: %w", err)
	}
	return p, nil
}

// IssueToken signs an HS256 token for subject. A zero ttl produces a token without expiry.
func IssueToken(secret []byte, issuer, subject string, ttl time.Duration, now time.Time) (string, error) {
	claims := TokenClaims{
		UserID: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// --- small utils ---

// bearerToken splits "<scheme> <token>" and requires the bearer scheme.
func bearerToken(auth string) (string, error) {
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidCredential)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}
	return token, nil
}

// headerLookup returns the value of a header key from a map.
func headerLookup(h map[string]string, key string) string {
	if len(h) == 0 {
		return ""
	}
	lk := strings.ToLower(key)
	for k, v := range h {
		if strings.ToLower(k) == lk {
			return v
		}
	}
	return ""
}
