// Package api contains types for the API requests and responses.
package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/kylejryan/claims-portal/internal/claims"
	"github.com/kylejryan/claims-portal/internal/models"
)

// CreateClaimRequest is the JSON body of a new claim. Field names follow the
// claim form.
type CreateClaimRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	ClaimAmount Amount `json:"claimAmount"`
	Description string `json:"description"`
	DocumentRef string `json:"documentRef"`
}

// Submission converts the request into the service input.
func (r CreateClaimRequest) Submission() models.ClaimSubmission {
	return models.ClaimSubmission{
		ClaimantName:  r.Name,
		ClaimantEmail: r.Email,
		ClaimAmount:   r.ClaimAmount.Value,
		Description:   r.Description,
		DocumentRef:   r.DocumentRef,
	}
}

// UpdateClaimRequest is the JSON body of an insurer update. Absent fields are nil.
type UpdateClaimRequest struct {
	Status          *string `json:"status"`
	ApprovedAmount  Amount  `json:"approvedAmount"`
	InsurerComments *string `json:"insurerComments"`
}

// Patch converts the request into a ClaimPatch. Status values are checked when
// the patch is applied.
func (r UpdateClaimRequest) Patch() models.ClaimPatch {
	var p models.ClaimPatch
	if r.Status != nil {
		s := models.ClaimStatus(strings.TrimSpace(*r.Status))
		p.Status = &s
	}
	p.ApprovedAmount = r.ApprovedAmount.Value
	p.InsurerComments = r.InsurerComments
	return p
}

// PresignRequest asks for a direct upload URL for one attachment.
type PresignRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// PresignResponse carries the upload URL and the documentRef to submit with the claim.
type PresignResponse struct {
	DocumentRef   string            `json:"documentRef"`
	PresignedURL  string            `json:"presignedUrl"`
	ExpiresIn     int               `json:"expiresIn"`
	ContentType   string            `json:"contentType"`
	UploadHeaders map[string]string `json:"uploadHeaders"`
}

// Amount is a number that also accepts its decimal string form, as HTML forms
// submit it. A null, missing or empty value leaves Value nil.
type Amount struct {
	Value *float64
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		a.Value = nil
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	a.Value = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*a.Value)
}

// errNotANumber is reported for amounts that do not parse.
var errNotANumber = errors.New("must be a number")

// ParseAmount parses a decimal amount. An empty string yields nil.
func ParseAmount(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, errNotANumber
	}
	return &v, nil
}

// Decode unmarshals a JSON body into v. Malformed bodies are validation errors.
func Decode(body []byte, v any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return claims.Invalid("body", "request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		if errors.Is(err, errNotANumber) {
			return claims.Invalid("body", "amounts must be numbers")
		}
		return claims.Invalid("body", "invalid JSON")
	}
	return nil
}

// ListQueryFor parses the list filters p may supply. Only insurers choose their
// own filters; every other role gets one from the access policy, so their query
// string is never parsed and cannot fail the request.
func ListQueryFor(p models.Principal, get func(string) string) (models.ClaimFilter, error) {
	if p.Role != models.RoleInsurer {
		return models.ClaimFilter{}, nil
	}
	return ParseListQuery(get)
}

// ParseListQuery builds a ClaimFilter from query parameters read through get.
// Status values are checked by the service; dates accept RFC3339 or YYYY-MM-DD.
func ParseListQuery(get func(string) string) (models.ClaimFilter, error) {
	var f models.ClaimFilter
	f.Status = models.ClaimStatus(strings.TrimSpace(get("status")))

	amt, err := ParseAmount(get("claimAmount"))
	if err != nil {
		return models.ClaimFilter{}, claims.Invalid("claimAmount", err.Error())
	}
	f.ClaimAmount = amt

	for _, d := range []struct {
		name string
		dst  **time.Time
	}{
		{"startDate", &f.StartDate},
		{"endDate", &f.EndDate},
	} {
		t, err := ParseDate(get(d.name))
		if err != nil {
			return models.ClaimFilter{}, claims.Invalid(d.name, err.Error())
		}
		*d.dst = t
	}
	return f, nil
}

// ParseDate parses an RFC3339 timestamp or a calendar date (UTC midnight).
// An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errors.New("must be RFC3339 or YYYY-MM-DD")
}
