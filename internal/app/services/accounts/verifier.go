package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/account"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/supabase/client"
)

// SupabaseClaims are the claims Supabase Auth puts in access tokens.
type SupabaseClaims struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserGetter resolves a token remotely. *client.AuthClient satisfies it.
type UserGetter interface {
	GetUser(ctx context.Context, accessToken string) (*client.User, error)
}

// VerifierConfig selects how access tokens are checked. At least one source
// must be set; they are tried in the order HMAC secret, JWKS, remote.
type VerifierConfig struct {
	// JWTSecret verifies HS256 tokens signed with the project secret.
	JWTSecret string
	// JWKS verifies asymmetric tokens. See NewJWKS.
	JWKS jwt.Keyfunc
	// Remote asks Supabase Auth about the token.
	Remote UserGetter
}

// TokenVerifier turns a Supabase access token into an Identity.
type TokenVerifier struct {
	secret []byte
	jwks   jwt.Keyfunc
	remote UserGetter
}

// NewTokenVerifier builds a verifier.
func NewTokenVerifier(cfg VerifierConfig) (*TokenVerifier, error) {
	if cfg.JWTSecret == "" && cfg.JWKS == nil && cfg.Remote == nil {
		return nil, errors.New("accounts: no token verification source configured")
	}
	return &TokenVerifier{secret: []byte(cfg.JWTSecret), jwks: cfg.JWKS, remote: cfg.Remote}, nil
}

// NewJWKS fetches and keeps refreshing the project's JSON Web Key Set until
// ctx is cancelled.
func NewJWKS(ctx context.Context, supabaseURL string) (jwt.Keyfunc, error) {
	url := strings.TrimSuffix(supabaseURL, "/") + "/auth/v1/.well-known/jwks.json"
	k, err := keyfunc.NewDefaultCtx(ctx, []string{url})
	if err != nil {
		return nil, fmt.Errorf("load jwks: %w", err)
	}
	return k.Keyfunc, nil
}

// Verify validates token and returns the caller.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (account.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return account.Identity{}, svcerrors.Unauthorized("sign in required")
	}

	alg := tokenAlg(token)
	switch {
	case alg == jwt.SigningMethodHS256.Alg() && len(v.secret) > 0:
		return v.parse(token, func(*jwt.Token) (interface{}, error) { return v.secret, nil }, jwt.SigningMethodHS256.Alg())
	case alg != "" && !strings.HasPrefix(alg, "HS") && v.jwks != nil:
		return v.parse(token, v.jwks, "RS256", "ES256", "EdDSA")
	case v.remote != nil:
		user, err := v.remote.GetUser(ctx, token)
		if err != nil {
			return account.Identity{}, svcerrors.InvalidToken(err)
		}
		return account.Identity{UserID: user.ID, Email: user.Email, Role: user.Role}, nil
	default:
		return account.Identity{}, svcerrors.InvalidToken(fmt.Errorf("no verifier for alg %q", alg))
	}
}

func (v *TokenVerifier) parse(token string, kf jwt.Keyfunc, methods ...string) (account.Identity, error) {
	claims := &SupabaseClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, kf,
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return account.Identity{}, svcerrors.InvalidToken(err)
	}
	if claims.Subject == "" {
		return account.Identity{}, svcerrors.InvalidToken(errors.New("token has no subject"))
	}
	if claims.Role == "anon" {
		return account.Identity{}, svcerrors.Unauthorized("sign in required")
	}
	return account.Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

func tokenAlg(token string) string {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	alg, _ := parsed.Header["alg"].(string)
	return alg
}
