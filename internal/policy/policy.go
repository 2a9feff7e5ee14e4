// Package policy decides which claims a principal may create, see and change.
//
// Role gates and ownership rules live in the embedded Cedar policy set; this
// package builds the entity graph for each request, evaluates it, logs the
// decision and, for list queries, narrows the filter to what the principal is
// entitled to see.
package policy

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/cedar-policy/cedar-go"
	"github.com/rs/zerolog"

	"github.com/kylejryan/claims-portal/internal/models"
)

//go:embed policies.cedar
var policiesContent []byte

// ErrDenied is returned when no policy permits the request.
var ErrDenied = errors.New("policy: access denied")

// Action is a fine-grained operation name as it appears in policies.cedar.
type Action string

// Actions.
const (
	ActionCreate           Action = "claim:create"
	ActionList             Action = "claim:list"
	ActionRead             Action = "claim:read"
	ActionUpdate           Action = "claim:update"
	ActionUploadAttachment Action = "attachment:upload"
	ActionReadAttachment   Action = "attachment:read"
)

// Resource types.
const (
	TypeClaim           = "Claim"
	TypeClaimCollection = "ClaimCollection"
	TypeAttachment      = "Attachment"
)

const principalType = "User"

// Resource is the target of an authorization request.
type Resource struct {
	Type          string
	ID            string
	ClaimantEmail string // owning patient, for claims
	Owner         string // owning principal id, for attachments
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed  bool
	Reason   string
	PolicyID string
	Duration time.Duration
}

// Err returns ErrDenied for a denial and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDenied, d.Reason)
}

// Config contains options for the Policy.
type Config struct {
	Logger zerolog.Logger

	// PolicyBytes replaces the embedded policies.cedar when set.
	PolicyBytes []byte
}

// Policy wraps the Cedar policy set.
type Policy struct {
	policies *cedar.PolicySet
	logger   zerolog.Logger
}

// New parses the policy set.
func New(cfg Config) (*Policy, error) {
	data := cfg.PolicyBytes
	if data == nil {
		data = policiesContent
	}
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}
	return &Policy{policies: ps, logger: cfg.Logger}, nil
}

// Authorize evaluates one request. Principals with an unrecognized role match no
// permit and are denied.
func (p *Policy) Authorize(ctx context.Context, principal models.Principal, action Action, res Resource) Decision {
	start := time.Now()

	entities := buildEntities(principal, res)
	req := cedar.Request{
		Principal: principalUID(principal),
		Action:    cedar.NewEntityUID("Action", cedar.String(string(action))),
		Resource:  resourceUID(res),
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	}

	decision, diag := cedar.Authorize(p.policies, entities, req)

	d := Decision{Allowed: decision == cedar.Allow, Duration: time.Since(start)}
	if len(diag.Reasons) > 0 {
		d.PolicyID = string(diag.Reasons[0].PolicyID)
	}
	if d.Allowed {
		d.Reason = "access permitted"
	} else {
		d.Reason = fmt.Sprintf("%s may not %s", roleLabel(principal.Role), action)
	}

	p.logDecision(ctx, principal, action, res, d, diag)
	return d
}

// CanCreate gates claim submission.
func (p *Policy) CanCreate(ctx context.Context, principal models.Principal) error {
	return p.Authorize(ctx, principal, ActionCreate, Resource{Type: TypeClaimCollection, ID: "all"}).Err()
}

// CanRead gates reading one claim.
func (p *Policy) CanRead(ctx context.Context, principal models.Principal, c models.Claim) error {
	return p.Authorize(ctx, principal, ActionRead, claimResource(c)).Err()
}

// CanUpdate gates adjudication of one claim.
func (p *Policy) CanUpdate(ctx context.Context, principal models.Principal, c models.Claim) error {
	return p.Authorize(ctx, principal, ActionUpdate, claimResource(c)).Err()
}

// CanUploadAttachment gates attachment upload.
func (p *Policy) CanUploadAttachment(ctx context.Context, principal models.Principal) error {
	return p.Authorize(ctx, principal, ActionUploadAttachment, Resource{Type: TypeAttachment, ID: "new", Owner: principal.ID}).Err()
}

// CanReadAttachment gates attachment retrieval. owner is the principal id the
// attachment was stored under.
func (p *Policy) CanReadAttachment(ctx context.Context, principal models.Principal, ref, owner string) error {
	return p.Authorize(ctx, principal, ActionReadAttachment, Resource{Type: TypeAttachment, ID: ref, Owner: owner}).Err()
}

// ListFilter authorizes a list query and rewrites it. A patient always gets
// exactly their own claims whatever they asked for; an insurer gets the
// requested status, amount and date constraints with no ownership constraint.
func (p *Policy) ListFilter(ctx context.Context, principal models.Principal, requested models.ClaimFilter) (models.ClaimFilter, error) {
	if err := p.Authorize(ctx, principal, ActionList, Resource{Type: TypeClaimCollection, ID: "all"}).Err(); err != nil {
		return models.ClaimFilter{}, err
	}
	switch principal.Role {
	case models.RolePatient:
		return models.ClaimFilter{ClaimantEmail: models.NormalizeEmail(principal.Email)}, nil
	case models.RoleInsurer:
		f := requested
		f.ClaimantEmail = ""
		return f, nil
	}
	// Unreachable while policies.cedar only permits the two roles above.
	return models.ClaimFilter{}, fmt.Errorf("%w: unrecognized role", ErrDenied)
}

func claimResource(c models.Claim) Resource {
	return Resource{Type: TypeClaim, ID: c.ID, ClaimantEmail: c.ClaimantEmail}
}

func principalUID(p models.Principal) cedar.EntityUID {
	return cedar.NewEntityUID(principalType, cedar.String(p.ID))
}

func resourceUID(r Resource) cedar.EntityUID {
	return cedar.NewEntityUID(cedar.EntityType(r.Type), cedar.String(r.ID))
}

// buildEntities constructs the Cedar EntityMap for one request. Every attribute a
// policy reads is always present so evaluation never errors on a missing one.
func buildEntities(p models.Principal, r Resource) cedar.EntityMap {
	pUID := principalUID(p)
	rUID := resourceUID(r)
	return cedar.EntityMap{
		pUID: cedar.Entity{
			UID:     pUID,
			Parents: cedar.NewEntityUIDSet(),
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"id":    cedar.String(p.ID),
				"email": cedar.String(models.NormalizeEmail(p.Email)),
				"role":  cedar.String(string(p.Role)),
			}),
		},
		rUID: cedar.Entity{
			UID:     rUID,
			Parents: cedar.NewEntityUIDSet(),
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"claimant_email": cedar.String(models.NormalizeEmail(r.ClaimantEmail)),
				"owner":          cedar.String(r.Owner),
			}),
		},
	}
}

func roleLabel(r models.Role) string {
	if r == "" {
		return "principal without a role"
	}
	return string(r)
}

func (p *Policy) logDecision(ctx context.Context, principal models.Principal, action Action, res Resource, d Decision, diag cedar.Diagnostic) {
	ev := p.logger.Debug()
	if !d.Allowed {
		ev = p.logger.Info()
	}
	ev.Ctx(ctx).
		Str("principal", principal.ID).
		Str("role", string(principal.Role)).
		Str("action", string(action)).
		Str("resource_type", res.Type).
		Str("resource", res.ID).
		Bool("decision", d.Allowed).
		Str("policy_id", d.PolicyID).
		Int64("duration_us", d.Duration.Microseconds()).
		Msg("authorization decision")

	for _, e := range diag.Errors {
		p.logger.Error().
			Str("policy", string(e.PolicyID)).
			Str("error", e.Message).
			Msg("policy evaluation error")
	}
}
