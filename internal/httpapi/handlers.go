package httpapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kylejryan/claims-portal/internal/api"
	"github.com/kylejryan/claims-portal/internal/claims"
	"github.com/kylejryan/claims-portal/internal/models"
)

// maxFieldBytes bounds each non-file multipart field.
const maxFieldBytes = 64 << 10

// documentField is the multipart part carrying the attachment.
const documentField = "document"

func (s *Server) createClaim(w http.ResponseWriter, r *http.Request) {
	p, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	var c models.Claim
	if isMultipart(r) {
		c, err = s.createMultipart(r, p)
	} else {
		c, err = s.createJSON(r, p)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) createJSON(r *http.Request, p models.Principal) (models.Claim, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return models.Claim{}, bodyErr(err)
	}
	var in api.CreateClaimRequest
	if err := api.Decode(b, &in); err != nil {
		return models.Claim{}, err
	}
	return s.svc.Create(r.Context(), p, in.Submission())
}

// createMultipart reads the form fields in order and streams the document part
// straight to the blob store. Fields must precede the document part.
func (s *Server) createMultipart(r *http.Request, p models.Principal) (models.Claim, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return models.Claim{}, claims.Invalid("body", "malformed multipart body")
	}

	fields := map[string]string{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if err := bodyErr(err); errors.Is(err, claims.ErrTooLarge) {
				return models.Claim{}, err
			}
			return models.Claim{}, claims.Invalid("body", "malformed multipart body")
		}

		if part.FormName() == documentField && part.FileName() != "" {
			in, err := formSubmission(fields)
			if err != nil {
				return models.Claim{}, err
			}
			return s.svc.CreateWithAttachment(r.Context(), p, in, claims.Attachment{
				Filename:    part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Body:        limitedPart{r: part},
			})
		}

		v, err := readField(part)
		if err != nil {
			return models.Claim{}, err
		}
		fields[part.FormName()] = v
	}

	in, err := formSubmission(fields)
	if err != nil {
		return models.Claim{}, err
	}
	return s.svc.Create(r.Context(), p, in)
}

func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", bodyErr(err)
	}
	if len(b) > maxFieldBytes {
		return "", claims.Invalid(part.FormName(), "field too large")
	}
	return string(b), nil
}

func formSubmission(fields map[string]string) (models.ClaimSubmission, error) {
	amount, err := api.ParseAmount(fields["claimAmount"])
	if err != nil {
		return models.ClaimSubmission{}, claims.Invalid("claimAmount", "must be a number")
	}
	return models.ClaimSubmission{
		ClaimantName:  fields["name"],
		ClaimantEmail: fields["email"],
		ClaimAmount:   amount,
		Description:   fields["description"],
		DocumentRef:   fields["documentRef"],
	}, nil
}

func (s *Server) listClaims(w http.ResponseWriter, r *http.Request) {
	p, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := api.ListQueryFor(p, r.URL.Query().Get)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cs, err := s.svc.List(r.Context(), p, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) getClaim(w http.ResponseWriter, r *http.Request) {
	p, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Get(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateClaim(w http.ResponseWriter, r *http.Request) {
	p, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFieldBytes))
	if err != nil {
		writeError(w, r, bodyErr(err))
		return
	}
	var in api.UpdateClaimRequest
	if err := api.Decode(b, &in); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.svc.Update(r.Context(), p, mux.Vars(r)["id"], in.Patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) presignAttachment(w http.ResponseWriter, r *http.Request) {
	p, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFieldBytes))
	if err != nil {
		writeError(w, r, bodyErr(err))
		return
	}
	var in api.PresignRequest
	if err := api.Decode(b, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ref, up, err := s.svc.PresignAttachment(r.Context(), p, in.Filename, in.ContentType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.PresignResponse{
		DocumentRef:   ref,
		PresignedURL:  up.URL,
		ExpiresIn:     int(up.ExpiresIn.Seconds()),
		ContentType:   up.Headers["Content-Type"],
		UploadHeaders: up.Headers,
	})
}

func (s *Server) getAttachment(w http.ResponseWriter, r *http.Request) {
	p, err := s.authenticate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.svc.AttachmentURL(r.Context(), p, mux.Vars(r)["ref"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}
