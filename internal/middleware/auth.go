package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tmajkow/coursepulse/internal/auth"
)

// planKey is the context key for the authenticated creator's plan.
type planKey struct{}

// companyIDKey is the context key for the authenticated creator's company.
type companyIDKey struct{}

// SetCompanyID stores the creator's company id in the context.
func SetCompanyID(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, companyIDKey{}, companyID)
}

// GetCompanyID retrieves the creator's company id from the context.
func GetCompanyID(ctx context.Context) string {
	if id, ok := ctx.Value(companyIDKey{}).(string); ok {
		return id
	}
	return ""
}

// SetPlan stores the creator's subscription plan in the context.
func SetPlan(ctx context.Context, plan string) context.Context {
	return context.WithValue(ctx, planKey{}, plan)
}

// GetPlan retrieves the creator's subscription plan from the context.
func GetPlan(ctx context.Context) string {
	if plan, ok := ctx.Value(planKey{}).(string); ok {
		return plan
	}
	return ""
}

// TokenValidator validates a bearer token and returns its claims.
// Satisfied by auth.JWTService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid Bearer access token.
// On success the creator ID and plan are stored in the request context
// for downstream handlers and the logging middleware.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				ctx := SetErrorCode(r.Context(), "missing_token")
				r = r.WithContext(ctx)
				w.Header().Set("WWW-Authenticate", `Bearer realm="coursepulse"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				code := "invalid_token"
				if err == auth.ErrExpiredToken {
					code = "expired_token"
				}
				ctx := SetErrorCode(r.Context(), code)
				r = r.WithContext(ctx)
				w.Header().Set("WWW-Authenticate", `Bearer realm="coursepulse", error="invalid_token"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Refresh tokens cannot be used to call the API.
			if claims.Type != auth.TokenTypeAccess {
				ctx := SetErrorCode(r.Context(), "wrong_token_type")
				r = r.WithContext(ctx)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := SetCreatorID(r.Context(), claims.Subject)
			ctx = SetCompanyID(ctx, claims.CompanyID)
			ctx = SetPlan(ctx, claims.Plan)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
