package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/ssoproxy/internal/accesskey"
	"github.com/opentrusty/ssoproxy/internal/audit"
	"github.com/opentrusty/ssoproxy/internal/auth"
	"github.com/opentrusty/ssoproxy/internal/directory"
	"github.com/opentrusty/ssoproxy/internal/errs"
	"github.com/opentrusty/ssoproxy/internal/observability/logger"
	"github.com/opentrusty/ssoproxy/internal/ratelimit"
	"github.com/opentrusty/ssoproxy/internal/revocation"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// Services are the domain services exposed over HTTP
type Services struct {
	Auth        *auth.Service
	Directory   *directory.Service
	Keys        *accesskey.Service
	Revocations *revocation.Service
	Audit       *audit.Log
	Limiter     *ratelimit.Limiter
}

// Options configure transport behavior
type Options struct {
	// FoldRateLimit answers rate-limited exchanges with 401 instead of 429
	FoldRateLimit bool
	TrustProxy    bool
	ServiceName   string

	// Tokens verifies admin bearer tokens; nil disables the admin API
	Tokens     *AdminTokens
	AdminAudit *logger.AdminAuditLogger

	// Ready reports backing store health for /health
	Ready func(ctx context.Context) error

	AuthDuration metric.Float64Histogram
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	auth        *auth.Service
	directory   *directory.Service
	keys        *accesskey.Service
	revocations *revocation.Service
	audit       *audit.Log
	limiter     *ratelimit.Limiter

	tokens        *AdminTokens
	adminAudit    *logger.AdminAuditLogger
	foldRateLimit bool
	trustProxy    bool
	serviceName   string
	ready         func(ctx context.Context) error
	authDuration  metric.Float64Histogram
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, opts Options) *Handler {
	if opts.AdminAudit == nil {
		opts.AdminAudit = logger.NewAdminAuditLogger(nil)
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "ssoproxy"
	}
	return &Handler{
		auth:          svc.Auth,
		directory:     svc.Directory,
		keys:          svc.Keys,
		revocations:   svc.Revocations,
		audit:         svc.Audit,
		limiter:       svc.Limiter,
		tokens:        opts.Tokens,
		adminAudit:    opts.AdminAudit,
		foldRateLimit: opts.FoldRateLimit,
		trustProxy:    opts.TrustProxy,
		serviceName:   opts.ServiceName,
		ready:         opts.Ready,
		authDuration:  opts.AuthDuration,
	}
}

// NewRouter creates a new HTTP router. rateLimiter may be nil.
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(OriginMiddleware(h.trustProxy))
	if rateLimiter != nil {
		r.Use(RateLimitMiddleware(rateLimiter))
	}
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.HealthCheck)

	// Credential exchange for login clients
	r.Post("/auth", h.Authenticate)
	r.Post("/accounts", h.ListAccessibleAccounts)

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(h.AdminAuthMiddleware)
		h.mountAdmin(r)
	})

	return r
}

// HealthCheck returns the health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", logger.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"service": h.serviceName,
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

// AuthRequest is the login client's exchange request
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// AuthResponse carries the real credential
type AuthResponse struct {
	RealUser string `json:"real_user"`
	RealPass string `json:"real_pass"`
}

// Authenticate exchanges a username and access key for the real credential
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AuthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, err := h.auth.Authenticate(r.Context(), auth.Request{
		TenantID:   req.TenantID,
		Identifier: req.Username,
		Secret:     req.Password,
		Origin:     GetOrigin(r.Context()),
	})
	h.observeAuth(r.Context(), start, err)
	if err != nil {
		h.respondAuthError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{
		RealUser: cred.Identity,
		RealPass: cred.Secret,
	})
}

// ListAccountsRequest asks for the accounts an access key may use
type ListAccountsRequest struct {
	Password string `json:"password"`
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// AccountView is the public view of an accessible account
type AccountView struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
	Tags    []string `json:"tags"`
}

// ListAccessibleAccounts lists the accounts the key holder is authorized for
func (h *Handler) ListAccessibleAccounts(w http.ResponseWriter, r *http.Request) {
	var req ListAccountsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summaries, err := h.auth.ListAccessibleAccounts(r.Context(), auth.ListRequest{
		TenantID: req.TenantID,
		Secret:   req.Password,
		Origin:   GetOrigin(r.Context()),
	})
	if err != nil {
		h.respondAuthError(w, err)
		return
	}

	views := make([]AccountView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, AccountView{
			Name:    s.Name,
			Aliases: nonNil(s.Aliases),
			Tags:    nonNil(s.Tags),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

// respondAuthError keeps denials uniform. Only rate limiting is distinct,
// and only when not folded.
func (h *Handler) respondAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrRateLimited) && !h.foldRateLimit {
		respondError(w, http.StatusTooManyRequests, auth.ErrRateLimited.Error())
		return
	}
	respondError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
}

func (h *Handler) observeAuth(ctx context.Context, start time.Time, err error) {
	if h.authDuration == nil {
		return
	}
	result := "success"
	switch {
	case errors.Is(err, auth.ErrRateLimited):
		result = "rate_limited"
	case err != nil:
		result = "failure"
	}
	h.authDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("result", result)))
}

// Helper functions
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondDomainError maps an error kind to a status. Store failures are not
// described to the caller.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidName), errors.Is(err, revocation.ErrInvalidExpiry):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch errs.KindOf(err) {
	case errs.NotFound:
		respondError(w, http.StatusNotFound, err.Error())
	case errs.Conflict:
		respondError(w, http.StatusConflict, err.Error())
	case errs.RateLimited:
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errs.Unauthorized:
		respondError(w, http.StatusUnauthorized, err.Error())
	case errs.Revoked:
		respondError(w, http.StatusForbidden, err.Error())
	case errs.Exhausted:
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errs.StoreUnavailable:
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
