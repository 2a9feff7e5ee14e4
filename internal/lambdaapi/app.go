// Package lambdaapi exposes the claim operations as API Gateway v2 Lambda handlers.
package lambdaapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/kylejryan/claims-portal/internal/api"
	"github.com/kylejryan/claims-portal/internal/claims"
	"github.com/kylejryan/claims-portal/internal/httpx"
	"github.com/kylejryan/claims-portal/internal/models"
)

// App holds the application state shared by every handler.
type App struct {
	svc    *claims.Service
	logger zerolog.Logger
}

// New creates an App.
func New(svc *claims.Service, logger zerolog.Logger) *App {
	return &App{svc: svc, logger: logger}
}

type handlerFunc func(ctx context.Context, p models.Principal, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// handle authenticates the request, runs fn and maps any error to its response.
// The returned error is always nil: failures are HTTP responses, not Lambda errors.
func (a *App) handle(ctx context.Context, op string, req events.APIGatewayV2HTTPRequest, fn handlerFunc) (events.APIGatewayV2HTTPResponse, error) {
	start := time.Now()
	logger := a.logger.With().
		Str("request_id", req.RequestContext.RequestID).
		Str("op", op).
		Logger()

	var resp events.APIGatewayV2HTTPResponse
	p, err := a.svc.Authenticate(ctx, req.Headers)
	if err == nil {
		logger = logger.With().Str("principal", p.ID).Logger()
		resp, err = fn(ctx, p, req)
	}
	if err != nil {
		resp, _ = httpx.FromError(err)
	}

	logger.Info().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("request handled")
	return resp, nil
}

// Create handles POST /claims with a JSON body.
func (a *App) Create(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return a.handle(ctx, "create", req, func(ctx context.Context, p models.Principal, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		b, err := body(req)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		var in api.CreateClaimRequest
		if err := api.Decode(b, &in); err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		c, err := a.svc.Create(ctx, p, in.Submission())
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		return httpx.JSON(http.StatusCreated, c)
	})
}

// List handles GET /claims.
func (a *App) List(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return a.handle(ctx, "list", req, func(ctx context.Context, p models.Principal, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		f, err := api.ListQueryFor(p, func(k string) string { return req.QueryStringParameters[k] })
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		cs, err := a.svc.List(ctx, p, f)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		return httpx.JSON(http.StatusOK, cs)
	})
}

// Get handles GET /claims/{id}.
func (a *App) Get(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return a.handle(ctx, "get", req, func(ctx context.Context, p models.Principal, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		c, err := a.svc.Get(ctx, p, req.PathParameters["id"])
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		return httpx.JSON(http.StatusOK, c)
	})
}

// Update handles PUT /claims/{id}.
func (a *App) Update(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return a.handle(ctx, "update", req, func(ctx context.Context, p models.Principal, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		b, err := body(req)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		var in api.UpdateClaimRequest
		if err := api.Decode(b, &in); err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		c, err := a.svc.Update(ctx, p, req.PathParameters["id"], in.Patch())
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		return httpx.JSON(http.StatusOK, c)
	})
}

// Presign handles POST /attachments/presign.
func (a *App) Presign(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return a.handle(ctx, "presign", req, func(ctx context.Context, p models.Principal, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		b, err := body(req)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		var in api.PresignRequest
		if err := api.Decode(b, &in); err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		ref, up, err := a.svc.PresignAttachment(ctx, p, in.Filename, in.ContentType)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		return httpx.JSON(http.StatusOK, api.PresignResponse{
			DocumentRef:   ref,
			PresignedURL:  up.URL,
			ExpiresIn:     int(up.ExpiresIn.Seconds()),
			ContentType:   up.Headers["Content-Type"],
			UploadHeaders: up.Headers,
		})
	})
}

// Attachment handles GET /attachments/{ref+} by redirecting to a short-lived download URL.
func (a *App) Attachment(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return a.handle(ctx, "attachment", req, func(ctx context.Context, p models.Principal, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		ref, err := url.PathUnescape(req.PathParameters["ref"])
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, claims.Invalid("ref", "malformed attachment reference")
		}
		u, err := a.svc.AttachmentURL(ctx, p, ref)
		if err != nil {
			return events.APIGatewayV2HTTPResponse{}, err
		}
		return httpx.Redirect(u)
	})
}

// body returns the raw request body, decoding it when API Gateway base64-encoded it.
func body(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, claims.Invalid("body", "invalid base64 body")
	}
	return b, nil
}
