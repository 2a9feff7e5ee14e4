package claims

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kylejryan/claims-portal/internal/models"
	"github.com/kylejryan/claims-portal/internal/validate"
)

// ErrInvalidStatusTransition is wrapped by conflicts raised from ApplyUpdate.
var ErrInvalidStatusTransition = errors.New("claims: invalid status transition")

// MergeMode selects how a patch is folded into an existing claim.
type MergeMode string

const (
	// MergePresent overrides a field whenever the patch supplies it, including 0 and "".
	MergePresent MergeMode = "present"
	// MergeTruthy overrides only with non-zero, non-empty values, so an approved
	// amount of 0 or an empty comment never replaces what is stored.
	MergeTruthy MergeMode = "truthy"
)

// ParseMergeMode converts s into a MergeMode.
func ParseMergeMode(s string) (MergeMode, error) {
	switch m := MergeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case MergePresent, MergeTruthy:
		return m, nil
	case "":
		return MergePresent, nil
	}
	return "", fmt.Errorf("unknown merge mode %q", s)
}

// NewClaim validates a submission and returns a Pending claim stamped with now.
// The id is left empty for the store to assign.
func NewClaim(in models.ClaimSubmission, now time.Time) (models.Claim, error) {
	if err := ValidateSubmission(in); err != nil {
		return models.Claim{}, err
	}
	return models.Claim{
		ClaimantName:   strings.TrimSpace(in.ClaimantName),
		ClaimantEmail:  models.NormalizeEmail(in.ClaimantEmail),
		ClaimAmount:    *in.ClaimAmount,
		Description:    strings.TrimSpace(in.Description),
		DocumentRef:    strings.TrimSpace(in.DocumentRef),
		Status:         models.StatusPending,
		SubmissionDate: now.UTC(),
	}, nil
}

// ValidateSubmission checks every required field of a new claim and reports the first failure.
func ValidateSubmission(in models.ClaimSubmission) error {
	checks := []struct {
		field string
		check func() error
	}{
		{"name", func() error { return validate.ClaimantName(in.ClaimantName) }},
		{"email", func() error { return validate.Email(in.ClaimantEmail) }},
		{"claimAmount", func() error { return validate.RequiredAmount(in.ClaimAmount) }},
		{"description", func() error { return validate.Description(in.Description) }},
	}
	for _, c := range checks {
		if err := c.check(); err != nil {
			return invalid(c.field, err.Error())
		}
	}
	return nil
}

// ApplyUpdate folds patch into existing and returns the merged record.
// Identity, ownership and submission fields are never touched. Approved and
// Rejected are terminal: moving to a different status from either is a conflict.
// Applying the same patch twice yields the same record as applying it once.
func ApplyUpdate(existing models.Claim, patch models.ClaimPatch, mode MergeMode) (models.Claim, error) {
	out := existing

	if supplied(patch.Status, mode) {
		next := *patch.Status
		if !next.Valid() {
			return existing, invalid("status", fmt.Sprintf("unknown claim status %q", next))
		}
		if next != existing.Status && existing.Status.Terminal() {
			return existing, conflict(
				fmt.Sprintf("claim is already %s", existing.Status),
				fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, existing.Status, next),
			)
		}
		out.Status = next
	}

	if supplied(patch.ApprovedAmount, mode) {
		if err := validate.Amount(*patch.ApprovedAmount); err != nil {
			return existing, invalid("approvedAmount", err.Error())
		}
		v := *patch.ApprovedAmount
		out.ApprovedAmount = &v
	}

	if supplied(patch.InsurerComments, mode) {
		if err := validate.Comments(*patch.InsurerComments); err != nil {
			return existing, invalid("insurerComments", err.Error())
		}
		v := *patch.InsurerComments
		out.InsurerComments = &v
	}

	return out, nil
}

// supplied reports whether a patch field should override under mode.
func supplied[T comparable](v *T, mode MergeMode) bool {
	if v == nil {
		return false
	}
	if mode == MergeTruthy {
		var zero T
		return *v != zero
	}
	return true
}
