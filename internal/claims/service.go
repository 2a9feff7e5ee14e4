// Package claims owns the claim lifecycle and the operations exposed to the
// transport layer: every call authenticates, authorizes, then validates and
// persists.
//
// Updates replace the whole record after merging. There is no optimistic
// locking: two insurers updating the same claim concurrently race and the last
// write wins.
package claims

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kylejryan/claims-portal/internal/authz"
	"github.com/kylejryan/claims-portal/internal/metrics"
	"github.com/kylejryan/claims-portal/internal/models"
	"github.com/kylejryan/claims-portal/internal/policy"
	"github.com/kylejryan/claims-portal/internal/s3io"
	"github.com/kylejryan/claims-portal/internal/validate"
)

// ClaimStore persists claims. Get and Update return models.ErrNotFound for
// unknown ids; Find returns claims most recent first.
type ClaimStore interface {
	Create(ctx context.Context, c models.Claim) (string, error)
	Get(ctx context.Context, id string) (models.Claim, error)
	Find(ctx context.Context, f models.ClaimFilter) ([]models.Claim, error)
	Update(ctx context.Context, id string, c models.Claim) (models.Claim, error)
}

// BlobStore holds attachment bytes. The service only ever handles references.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Exists(ctx context.Context, key string) error
	Delete(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key, contentType string, meta map[string]string) (s3io.PresignedUpload, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// PrincipalResolver authenticates a request from its headers.
type PrincipalResolver interface {
	Resolve(ctx context.Context, headers map[string]string) (models.Principal, error)
}

// Attachment is a document streamed alongside a new claim.
type Attachment struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Options wires a Service.
type Options struct {
	Store    ClaimStore
	Blobs    BlobStore // nil disables attachments
	Policy   *policy.Policy
	Resolver PrincipalResolver
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Merge    MergeMode
	Now      func() time.Time
}

// Service implements the claim operations.
type Service struct {
	store    ClaimStore
	blobs    BlobStore
	policy   *policy.Policy
	resolver PrincipalResolver
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	merge    MergeMode
	now      func() time.Time
}

// NewService creates a Service.
func NewService(o Options) *Service {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Merge == "" {
		o.Merge = MergePresent
	}
	return &Service{
		store:    o.Store,
		blobs:    o.Blobs,
		policy:   o.Policy,
		resolver: o.Resolver,
		logger:   o.Logger,
		metrics:  o.Metrics,
		merge:    o.Merge,
		now:      o.Now,
	}
}

// Authenticate resolves the calling principal. Missing and invalid credentials
// both surface as unauthenticated.
func (s *Service) Authenticate(ctx context.Context, headers map[string]string) (models.Principal, error) {
	p, err := s.resolver.Resolve(ctx, headers)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, authz.ErrMissingCredential), errors.Is(err, authz.ErrInvalidCredential):
		s.logger.Debug().Ctx(ctx).Err(err).Msg("authentication failed")
		return models.Principal{}, s.done(ctx, "authenticate", unauthenticated(err))
	default:
		return models.Principal{}, s.done(ctx, "authenticate", internal("principal lookup failed", err))
	}
}

// Create files a new claim for a patient. If the submission names a documentRef
// the attachment must already be stored under the caller's prefix.
func (s *Service) Create(ctx context.Context, p models.Principal, in models.ClaimSubmission) (models.Claim, error) {
	c, err := s.create(ctx, p, in)
	return c, s.done(ctx, "create", err)
}

func (s *Service) create(ctx context.Context, p models.Principal, in models.ClaimSubmission) (models.Claim, error) {
	if err := s.policy.CanCreate(ctx, p); err != nil {
		return models.Claim{}, forbidden("only patients can submit claims")
	}
	claim, err := s.prepare(p, in)
	if err != nil {
		return models.Claim{}, err
	}

	if ref := claim.DocumentRef; ref != "" {
		if s.blobs == nil {
			return models.Claim{}, invalid("documentRef", "attachments are not configured")
		}
		owner, ok := s3io.ParseKey(ref)
		if !ok {
			return models.Claim{}, invalid("documentRef", "malformed attachment reference")
		}
		if owner != p.ID {
			return models.Claim{}, forbidden("attachment belongs to another principal")
		}
		if err := s.blobs.Exists(ctx, ref); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.Claim{}, invalid("documentRef", "attachment not found")
			}
			return models.Claim{}, internal("attachment lookup failed", err)
		}
	}

	return s.insert(ctx, claim)
}

// CreateWithAttachment validates the submission, streams the attachment to the
// blob store, then creates the record. The record is never written unless the
// blob stored successfully; if the record write fails the blob is removed.
func (s *Service) CreateWithAttachment(ctx context.Context, p models.Principal, in models.ClaimSubmission, att Attachment) (models.Claim, error) {
	c, err := s.createWithAttachment(ctx, p, in, att)
	return c, s.done(ctx, "create", err)
}

func (s *Service) createWithAttachment(ctx context.Context, p models.Principal, in models.ClaimSubmission, att Attachment) (models.Claim, error) {
	if err := s.policy.CanCreate(ctx, p); err != nil {
		return models.Claim{}, forbidden("only patients can submit claims")
	}
	in.DocumentRef = ""
	claim, err := s.prepare(p, in)
	if err != nil {
		return models.Claim{}, err
	}
	if s.blobs == nil {
		return models.Claim{}, invalid("document", "attachments are not configured")
	}
	contentType, err := attachmentContentType(att)
	if err != nil {
		return models.Claim{}, err
	}

	key := s3io.BuildKey(p.ID, att.Filename)
	if err := s.blobs.Put(ctx, key, contentType, att.Body); err != nil {
		if KindOf(err) == KindTooLarge {
			return models.Claim{}, &Error{Kind: KindTooLarge, Field: "document", Message: "attachment too large", Err: err}
		}
		return models.Claim{}, internal("attachment upload failed", err)
	}
	claim.DocumentRef = key

	created, err := s.insert(ctx, claim)
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			s.logger.Error().Ctx(ctx).Err(derr).Str("document_ref", key).Msg("orphaned attachment after failed create")
		}
		return models.Claim{}, err
	}
	return created, nil
}

// prepare validates the submission and checks it is filed under the caller's email.
func (s *Service) prepare(p models.Principal, in models.ClaimSubmission) (models.Claim, error) {
	claim, err := NewClaim(in, s.now())
	if err != nil {
		return models.Claim{}, err
	}
	if claim.ClaimantEmail != models.NormalizeEmail(p.Email) {
		return models.Claim{}, forbidden("claims can only be filed under your own email")
	}
	return claim, nil
}

func (s *Service) insert(ctx context.Context, claim models.Claim) (models.Claim, error) {
	id, err := s.store.Create(ctx, claim)
	if err != nil {
		return models.Claim{}, internal("create claim failed", err)
	}
	claim.ID = id
	s.logger.Info().Ctx(ctx).Str("claim_id", id).Str("status", string(claim.Status)).Msg("claim created")
	return claim, nil
}

// List returns the claims the principal may see, most recent first.
func (s *Service) List(ctx context.Context, p models.Principal, requested models.ClaimFilter) ([]models.Claim, error) {
	out, err := s.list(ctx, p, requested)
	return out, s.done(ctx, "list", err)
}

func (s *Service) list(ctx context.Context, p models.Principal, requested models.ClaimFilter) ([]models.Claim, error) {
	f, err := s.policy.ListFilter(ctx, p, requested)
	if err != nil {
		return nil, forbidden("access denied")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", fmt.Sprintf("unknown claim status %q", f.Status))
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return nil, invalid("endDate", "must not be before startDate")
	}
	cs, err := s.store.Find(ctx, f)
	if err != nil {
		return nil, internal("list claims failed", err)
	}
	if cs == nil {
		cs = []models.Claim{}
	}
	return cs, nil
}

// Get returns one claim. A missing id is NotFound for every caller; an existing
// claim the caller may not see is Forbidden.
func (s *Service) Get(ctx context.Context, p models.Principal, id string) (models.Claim, error) {
	c, err := s.get(ctx, p, id)
	return c, s.done(ctx, "get", err)
}

func (s *Service) get(ctx context.Context, p models.Principal, id string) (models.Claim, error) {
	c, err := s.fetch(ctx, id)
	if err != nil {
		return models.Claim{}, err
	}
	if err := s.policy.CanRead(ctx, p, c); err != nil {
		return models.Claim{}, forbidden("access denied")
	}
	return c, nil
}

// Update applies an insurer's adjudication to a claim.
func (s *Service) Update(ctx context.Context, p models.Principal, id string, patch models.ClaimPatch) (models.Claim, error) {
	c, err := s.update(ctx, p, id, patch)
	return c, s.done(ctx, "update", err)
}

func (s *Service) update(ctx context.Context, p models.Principal, id string, patch models.ClaimPatch) (models.Claim, error) {
	existing, err := s.fetch(ctx, id)
	if err != nil {
		return models.Claim{}, err
	}
	if err := s.policy.CanUpdate(ctx, p, existing); err != nil {
		return models.Claim{}, forbidden("only insurers can update claims")
	}
	merged, err := ApplyUpdate(existing, patch, s.merge)
	if err != nil {
		return models.Claim{}, err
	}
	saved, err := s.store.Update(ctx, id, merged)
	if errors.Is(err, models.ErrNotFound) {
		return models.Claim{}, notFound(id)
	}
	if err != nil {
		return models.Claim{}, internal("update claim failed", err)
	}
	s.logger.Info().Ctx(ctx).
		Str("claim_id", id).
		Str("insurer", p.ID).
		Str("status", string(saved.Status)).
		Msg("claim updated")
	return saved, nil
}

// PresignAttachment reserves an attachment reference for the caller and returns
// a URL the client uploads to directly. The reference is passed to Create afterwards.
func (s *Service) PresignAttachment(ctx context.Context, p models.Principal, filename, contentType string) (string, s3io.PresignedUpload, error) {
	ref, up, err := s.presignAttachment(ctx, p, filename, contentType)
	return ref, up, s.done(ctx, "presign", err)
}

func (s *Service) presignAttachment(ctx context.Context, p models.Principal, filename, contentType string) (string, s3io.PresignedUpload, error) {
	if err := s.policy.CanUploadAttachment(ctx, p); err != nil {
		return "", s3io.PresignedUpload{}, forbidden("only patients can upload attachments")
	}
	if s.blobs == nil {
		return "", s3io.PresignedUpload{}, invalid("filename", "attachments are not configured")
	}
	ct, err := attachmentContentType(Attachment{Filename: filename, ContentType: contentType})
	if err != nil {
		return "", s3io.PresignedUpload{}, err
	}
	ref := s3io.BuildKey(p.ID, filename)
	up, err := s.blobs.PresignPut(ctx, ref, ct, map[string]string{"principal_id": p.ID})
	if err != nil {
		return "", s3io.PresignedUpload{}, internal("presign failed", err)
	}
	return ref, up, nil
}

// AttachmentURL returns a short-lived download URL for ref.
func (s *Service) AttachmentURL(ctx context.Context, p models.Principal, ref string) (string, error) {
	url, err := s.attachmentURL(ctx, p, ref)
	return url, s.done(ctx, "attachment", err)
}

func (s *Service) attachmentURL(ctx context.Context, p models.Principal, ref string) (string, error) {
	if s.blobs == nil {
		return "", &Error{Kind: KindNotFound, Message: "attachment not found"}
	}
	owner, ok := s3io.ParseKey(ref)
	if !ok {
		return "", &Error{Kind: KindNotFound, Message: "attachment not found"}
	}
	if err := s.policy.CanReadAttachment(ctx, p, ref, owner); err != nil {
		return "", forbidden("access denied")
	}
	url, err := s.blobs.PresignGet(ctx, ref)
	if err != nil {
		return "", internal("presign failed", err)
	}
	return url, nil
}

func (s *Service) fetch(ctx context.Context, id string) (models.Claim, error) {
	if strings.TrimSpace(id) == "" {
		return models.Claim{}, notFound(id)
	}
	c, err := s.store.Get(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.Claim{}, notFound(id)
	}
	if err != nil {
		return models.Claim{}, internal("load claim failed", err)
	}
	return c, nil
}

// done records the outcome of op and logs internal failures with full detail.
func (s *Service) done(ctx context.Context, op string, err error) error {
	if err == nil {
		s.metrics.RecordOperation(op, "ok")
		return nil
	}
	e := AsError(err)
	s.metrics.RecordOperation(op, string(e.Kind))
	if e.Kind == KindInternal {
		s.logger.Error().Ctx(ctx).Err(e).Str("op", op).Msg("claim operation failed")
	}
	return e
}

func attachmentContentType(att Attachment) (string, error) {
	if err := validate.AttachmentFilename(att.Filename); err != nil {
		return "", invalid("filename", err.Error())
	}
	if err := validate.AttachmentContentType(att.Filename, att.ContentType); err != nil {
		return "", invalid("contentType", err.Error())
	}
	return validate.ContentTypeFor(att.Filename), nil
}

// Invalid builds a validation error for field. Transport code uses it for input
// it rejects before reaching the service.
func Invalid(field, msg string) error {
	return invalid(field, msg)
}
