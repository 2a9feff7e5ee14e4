// Package httpapi serves the claim operations over plain HTTP with gorilla/mux.
// It backs the standalone server; the Lambda binaries use lambdaapi instead.
package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/kylejryan/claims-portal/internal/claims"
	"github.com/kylejryan/claims-portal/internal/httpx"
	"github.com/kylejryan/claims-portal/internal/metrics"
	"github.com/kylejryan/claims-portal/internal/models"
)

// Config contains options for the Server.
type Config struct {
	Service *claims.Service
	Logger  zerolog.Logger
	Metrics *metrics.Metrics // nil disables /metrics and request metrics

	MaxUploadBytes int64
	RateLimitRPS   int // zero disables rate limiting
	RateLimitBurst int
	AllowedOrigins []string // CORS origins; empty disables CORS
}

// Server routes HTTP requests to the claims service.
type Server struct {
	svc       *claims.Service
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	maxUpload int64
	limiter   *rateLimiter
	cors      *cors
}

// New creates a Server.
func New(cfg Config) *Server {
	s := &Server{
		svc:       cfg.Service,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		maxUpload: cfg.MaxUploadBytes,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 25 << 20
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = cfg.RateLimitRPS
		}
		s.limiter = newRateLimiter(cfg.RateLimitRPS, burst)
	}
	if len(cfg.AllowedOrigins) > 0 {
		s.cors = newCORS(cfg.AllowedOrigins)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(s.logger))
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
	}
	if s.cors != nil {
		r.Use(s.cors.handler)
		// Preflights match no method-restricted route, so one route takes them all.
		r.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	}

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.handler)
	}
	api.HandleFunc("/claims", s.createClaim).Methods(http.MethodPost)
	api.HandleFunc("/claims", s.listClaims).Methods(http.MethodGet)
	api.HandleFunc("/claims/{id}", s.getClaim).Methods(http.MethodGet)
	api.HandleFunc("/claims/{id}", s.updateClaim).Methods(http.MethodPut)
	api.HandleFunc("/attachments/presign", s.presignAttachment).Methods(http.MethodPost)
	api.HandleFunc("/attachments/{ref:.+}", s.getAttachment).Methods(http.MethodGet)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the caller from the request headers.
func (s *Server) authenticate(r *http.Request) (models.Principal, error) {
	headers := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return s.svc.Authenticate(r.Context(), headers)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	httpx.Write(w, status, v)
}

// writeError maps err onto its status code and caller-safe message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status := httpx.WriteError(w, err); status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
}

// bodyErr classifies a failure reading the request body.
func bodyErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return claims.TooLarge(err)
	}
	return claims.Invalid("body", "unreadable request body")
}

// limitedPart reports an upload that overruns the body limit as claims.ErrTooLarge.
type limitedPart struct {
	r io.Reader
}

func (p limitedPart) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = claims.TooLarge(err)
	}
	return n, err
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}
