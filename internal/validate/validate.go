// Package validate provides functions to validate claim payloads and attachment metadata.
package validate

import (
	"errors"
	"math"
	"net/mail"
	"path/filepath"
	"strings"
)

const (
	maxNameLen        = 200
	maxDescriptionLen = 4000
	maxCommentsLen    = 4000
	maxFilenameLen    = 128
)

var allowedExt = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".txt":  "text/plain",
}

// Required checks that s is non-empty after trimming whitespace.
func Required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

// ClaimantName checks that the name is present and of reasonable length.
func ClaimantName(s string) error {
	if err := Required(s); err != nil {
		return err
	}
	if len(s) > maxNameLen {
		return errors.New("too long")
	}
	return nil
}

// Email checks that s is a bare email address.
func Email(s string) error {
	if err := Required(s); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil || addr.Address != strings.TrimSpace(s) {
		return errors.New("invalid email address")
	}
	return nil
}

// Description checks that the description is present and of reasonable length.
func Description(s string) error {
	if err := Required(s); err != nil {
		return err
	}
	if len(s) > maxDescriptionLen {
		return errors.New("too long")
	}
	return nil
}

// Comments checks the insurer comment length. Empty is allowed.
func Comments(s string) error {
	if len(s) > maxCommentsLen {
		return errors.New("too long")
	}
	return nil
}

// Amount checks that v is a finite, non-negative number.
func Amount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("must be a finite number")
	}
	if v < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

// RequiredAmount is Amount for a field that must be supplied.
func RequiredAmount(v *float64) error {
	if v == nil {
		return errors.New("required")
	}
	return Amount(*v)
}

// AttachmentFilename checks that fn is a plain file name with an allowed extension.
func AttachmentFilename(fn string) error {
	fn = strings.TrimSpace(fn)
	if fn == "" {
		return errors.New("filename required")
	}
	if len(fn) > maxFilenameLen {
		return errors.New("filename too long")
	}
	if strings.ContainsAny(fn, `/\`) || fn == "." || fn == ".." {
		return errors.New("filename must not contain a path")
	}
	if _, ok := allowedExt[strings.ToLower(filepath.Ext(fn))]; !ok {
		return errors.New("only .pdf, .png, .jpg, .jpeg and .txt files allowed")
	}
	return nil
}

// ContentTypeFor returns the content type an attachment with this name must be sent as.
func ContentTypeFor(fn string) string {
	return allowedExt[strings.ToLower(filepath.Ext(fn))]
}

// AttachmentContentType checks that ct matches the type expected for fn (case insensitive, trimmed).
// An empty ct is accepted and means "use the default for the extension".
func AttachmentContentType(fn, ct string) error {
	ct = strings.TrimSpace(strings.ToLower(ct))
	if ct == "" {
		return nil
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if want := ContentTypeFor(fn); ct != want {
		return errors.New("Content-Type must be " + want)
	}
	return nil
}
