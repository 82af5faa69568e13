// Package middleware provides HTTP middleware for the storefront
package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/account"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/admin"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	internalhttputil "github.com/mrsbeantempeh/mrsbean-sub000/internal/httputil"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

// CustomerCookie holds the customer's Supabase access token.
const CustomerCookie = "mrsbean_session"

type identityKey struct{}

// CustomerAuthenticator verifies customer access tokens.
type CustomerAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (account.Identity, error)
}

// AdminVerifier verifies admin session tokens.
type AdminVerifier interface {
	Verify(token string) (*admin.Claims, error)
}

// AuthMiddleware attaches customer identities and guards admin routes.
type AuthMiddleware struct {
	customers CustomerAuthenticator
	admins    AdminVerifier
	logger    *logging.Logger
}

// NewAuthMiddleware creates the middleware. customers may be nil when
// customer accounts are disabled.
func NewAuthMiddleware(customers CustomerAuthenticator, admins AdminVerifier, logger *logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{customers: customers, admins: admins, logger: logger}
}

// OptionalCustomer attaches the customer identity when a valid token is
// present and continues anonymously otherwise.
func (m *AuthMiddleware) OptionalCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerOrCookie(r, CustomerCookie)
		if token == "" || m.customers == nil {
			next.ServeHTTP(w, r)
			return
		}
		id, err := m.customers.Authenticate(r.Context(), token)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Debug("customer token rejected")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireCustomer rejects requests without a customer identity. It must run
// after OptionalCustomer.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFrom(r.Context()); !ok {
			if browserNavigation(r) {
				http.Redirect(w, r, "/account?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
				return
			}
			internalhttputil.WriteError(w, r, errors.Unauthorized("sign in required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests without a valid admin session. Browsers are
// sent to the admin login page.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.admins.Verify(bearerOrCookie(r, admin.SessionCookie))
		if err != nil {
			m.logger.LogSecurityEvent(r.Context(), "admin_access_denied", map[string]interface{}{
				"path":   r.URL.Path,
				"method": r.Method,
				"ip":     internalhttputil.ClientIP(r),
			})
			if browserNavigation(r) {
				http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
				return
			}
			internalhttputil.WriteError(w, r, err)
			return
		}
		ctx := logging.WithRole(r.Context(), claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithIdentity stores id in ctx, including the user id used by log entries.
func WithIdentity(ctx context.Context, id account.Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	ctx = logging.WithUserID(ctx, id.UserID)
	return logging.WithRole(ctx, "customer")
}

// IdentityFrom returns the customer identity attached by OptionalCustomer.
func IdentityFrom(ctx context.Context) (account.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(account.Identity)
	return id, ok && id.UserID != ""
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// IsAdmin reports whether RequireAdmin admitted the request.
func IsAdmin(ctx context.Context) bool {
	return logging.GetRole(ctx) == admin.RoleAdmin
}

func bearerOrCookie(r *http.Request, cookie string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(cookie); err == nil {
		return c.Value
	}
	return ""
}

func browserNavigation(r *http.Request) bool {
	return r.Method == http.MethodGet && !internalhttputil.WantsJSON(r) && !strings.HasPrefix(r.URL.Path, "/api/")
}
