package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apierrors "github.com/HarshalJain-cs/Dhandha-sub003/internal/errors"
	"github.com/HarshalJain-cs/Dhandha-sub003/internal/license"
)

// Validator is the slice of the license engine the gate needs.
// Satisfied by *license.Manager.
type Validator interface {
	Validate(ctx context.Context) (license.ValidationResult, error)
}

// LicenseGate blocks access to licensed routes when the local license
// is missing or invalid. License management routes themselves are
// always reachable so the user can activate or re-verify.
type LicenseGate struct {
	validator       Validator
	logger          *slog.Logger
	excludePaths    map[string]struct{}
	excludePrefixes []string
}

// NewLicenseGate creates the gate with the default exclusions.
func NewLicenseGate(validator Validator, logger *slog.Logger) *LicenseGate {
	if logger == nil {
		logger = slog.Default()
	}
	gate := &LicenseGate{
		validator: validator,
		logger:    logger.With(slog.String("component", "license_gate")),
		excludePaths: map[string]struct{}{
			"/healthz": {},
			"/metrics": {},
		},
		excludePrefixes: []string{
			"/api/license",
		},
	}
	return gate
}

// ExcludePath adds an exact path exclusion.
func (g *LicenseGate) ExcludePath(path string) {
	g.excludePaths[path] = struct{}{}
}

// Handler returns the gate middleware.
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		result, err := g.validator.Validate(ctx)
		if err != nil {
			g.logger.InfoContext(ctx, "blocking request, no activated license",
				slog.String("path", r.URL.Path),
			)
			render.Render(w, r, apierrors.New(http.StatusForbidden, "LICENSE_NOT_ACTIVATED",
				"No license activated. Activate a license to access this resource."))
			return
		}
		if !result.Valid {
			g.logger.WarnContext(ctx, "blocking request, license invalid",
				slog.String("path", r.URL.Path),
				slog.String("reason", result.Warning),
			)
			message := result.Warning
			if message == "" {
				message = "License is not valid."
			}
			render.Render(w, r, apierrors.New(http.StatusForbidden, "LICENSE_INVALID", message))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *LicenseGate) excluded(path string) bool {
	if _, ok := g.excludePaths[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
