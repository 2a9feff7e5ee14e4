// Package httpx provides helper functions for creating HTTP responses, both as
// API Gateway v2 events and on a net/http ResponseWriter.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/kylejryan/claims-portal/internal/claims"
)

// JSON creates a JSON HTTP response with the given status code and value.
func JSON(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(b),
	}, nil
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// Redirect creates a 302 response pointing at location.
func Redirect(location string) (events.APIGatewayV2HTTPResponse, error) {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusFound,
		Headers:    map[string]string{"Location": location},
	}, nil
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k claims.Kind) int {
	switch k {
	case claims.KindUnauthenticated:
		return http.StatusUnauthorized
	case claims.KindForbidden:
		return http.StatusForbidden
	case claims.KindNotFound:
		return http.StatusNotFound
	case claims.KindValidation:
		return http.StatusBadRequest
	case claims.KindConflict:
		return http.StatusConflict
	case claims.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// Describe returns the status and caller-safe body for err. Internal details
// never leave the process.
func Describe(err error) (int, ErrorBody) {
	e := claims.AsError(err)
	return StatusFor(e.Kind), ErrorBody{Error: e.Public(), Field: e.Field}
}

// FromError creates the error response for err.
func FromError(err error) (events.APIGatewayV2HTTPResponse, error) {
	status, body := Describe(err)
	return JSON(status, body)
}

// Write encodes v as the JSON body of a net/http response.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode failure cannot be reported.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the response for err and returns its status.
func WriteError(w http.ResponseWriter, err error) int {
	status, body := Describe(err)
	Write(w, status, body)
	return status
}
