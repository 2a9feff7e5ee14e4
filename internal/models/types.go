// Package models defines the data models used in the application.
package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ClaimStatus represents the adjudication status of an insurance claim.
type ClaimStatus string

// Possible values for ClaimStatus
const (
	StatusPending  ClaimStatus = "Pending"
	StatusApproved ClaimStatus = "Approved"
	StatusRejected ClaimStatus = "Rejected"
)

// ParseStatus converts s into a ClaimStatus, rejecting anything outside the closed set.
func ParseStatus(s string) (ClaimStatus, error) {
	switch st := ClaimStatus(strings.TrimSpace(s)); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown claim status %q", s)
}

// Valid reports whether s is one of the known statuses.
func (s ClaimStatus) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Terminal reports whether an adjudicator has decided the claim.
func (s ClaimStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Role represents a principal's role in the system.
type Role string

// Possible values for Role
const (
	RolePatient Role = "patient"
	RoleInsurer Role = "insurer"
)

// ParseRole converts s into a Role, rejecting anything outside the closed set.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePatient, RoleInsurer:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Principal is an authenticated actor. It is loaded fresh for every request.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Claim represents an insurance claim submitted by a patient.
type Claim struct {
	ID              string      `json:"id"`
	ClaimantName    string      `json:"claimantName"`
	ClaimantEmail   string      `json:"claimantEmail"` // owner; never changes after creation
	ClaimAmount     float64     `json:"claimAmount"`
	Description     string      `json:"description"`
	DocumentRef     string      `json:"documentRef,omitempty"`
	Status          ClaimStatus `json:"status"`
	SubmissionDate  time.Time   `json:"submissionDate"`
	ApprovedAmount  *float64    `json:"approvedAmount,omitempty"`
	InsurerComments *string     `json:"insurerComments,omitempty"`
}

// ClaimSubmission is the patient-supplied payload for a new claim.
// ClaimAmount is a pointer so that a missing amount can be told apart from zero.
type ClaimSubmission struct {
	ClaimantName  string
	ClaimantEmail string
	ClaimAmount   *float64
	Description   string
	DocumentRef   string
}

// ClaimPatch carries the insurer-editable fields. Nil means "not supplied".
type ClaimPatch struct {
	Status          *ClaimStatus
	ApprovedAmount  *float64
	InsurerComments *string
}

// ClaimFilter narrows a list query. Zero values mean "no constraint".
type ClaimFilter struct {
	ClaimantEmail string
	Status        ClaimStatus
	ClaimAmount   *float64
	StartDate     *time.Time // inclusive
	EndDate       *time.Time // inclusive
}

// SortClaims orders claims most recent first, breaking ties by id (descending).
func SortClaims(cs []Claim) {
	slices.SortStableFunc(cs, func(a, b Claim) int {
		if c := b.SubmissionDate.Compare(a.SubmissionDate); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

// NormalizeEmail lowercases and trims an address for ownership comparisons.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
