package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

// RoleAdmin is the role carried by admin session tokens.
const RoleAdmin = "admin"

const sessionIssuer = "mrsbean-storefront"

// SessionCookie names the cookie holding the admin session token.
const SessionCookie = "mrsbean_admin"

// Claims are the admin session JWT claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth checks the admin password and issues session tokens.
type Auth struct {
	hash   []byte
	secret []byte
	ttl    time.Duration
	log    *logging.Logger
	now    func() time.Time
}

// NewAuth builds an authenticator from a bcrypt hash and the HS256 session
// secret. An empty hash disables admin login.
func NewAuth(passwordHash, sessionSecret string, ttl time.Duration, log *logging.Logger) (*Auth, error) {
	if passwordHash != "" {
		if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
			return nil, fmt.Errorf("admin: password hash is not bcrypt: %w", err)
		}
	}
	if sessionSecret == "" {
		return nil, errors.New("admin: session secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Auth{
		hash:   []byte(passwordHash),
		secret: []byte(sessionSecret),
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}, nil
}

// Enabled reports whether an admin password is configured.
func (a *Auth) Enabled() bool { return len(a.hash) > 0 }

// TTL is the session lifetime.
func (a *Auth) TTL() time.Duration { return a.ttl }

// Login checks password and returns a signed session token.
func (a *Auth) Login(ctx context.Context, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, svcerrors.Forbidden("admin login is not configured")
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(password)); err != nil {
		a.log.LogSecurityEvent(ctx, "admin_login_failed", map[string]interface{}{
			"reason": "password mismatch",
		})
		return "", time.Time{}, svcerrors.Unauthorized("invalid password")
	}

	now := a.now()
	expires := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   RoleAdmin,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, svcerrors.Internal("failed to sign session", err)
	}
	a.log.WithContext(ctx).Info("admin signed in")
	return signed, expires, nil
}

// Verify validates a session token.
func (a *Auth) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, svcerrors.Unauthorized("admin session required")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return nil, svcerrors.InvalidToken(err)
	}
	if claims.Role != RoleAdmin {
		return nil, svcerrors.Forbidden("admin role required")
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
