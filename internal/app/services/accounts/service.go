// Package accounts handles customer sign-up and sign-in through Supabase
// Auth, customer profiles and order history.
package accounts

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/account"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
	"github.com/mrsbeantempeh/mrsbean-sub000/supabase/client"
)

func errAuthDisabled() error {
	return svcerrors.Forbidden("customer accounts are not enabled")
}

// Authenticator is the Supabase Auth surface the service uses.
// *client.AuthClient satisfies it.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*client.AuthResponse, error)
	SignIn(ctx context.Context, email, password string) (*client.AuthResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Service implements customer accounts.
type Service struct {
	auth         Authenticator
	verifier     *TokenVerifier
	store        storage.Store
	abandonAfter time.Duration
	log          *logging.Logger
	now          func() time.Time
}

// New builds the service. auth and verifier may be nil when accounts are
// disabled; guest order lookup still works.
func New(auth Authenticator, verifier *TokenVerifier, store storage.Store, abandonAfter time.Duration, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{
		auth:         auth,
		verifier:     verifier,
		store:        store,
		abandonAfter: abandonAfter,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether sign-in is available.
func (s *Service) Enabled() bool { return s.auth != nil && s.verifier != nil }

// Session is a signed-in customer session.
type Session struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	// PendingConfirmation is set when Supabase requires email confirmation
	// before the first sign-in.
	PendingConfirmation bool `json:"pending_confirmation"`
}

// SignUpRequest is the sign-up form.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// SignUp registers a customer and creates their profile.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*Session, error) {
	if !s.Enabled() {
		return nil, errAuthDisabled()
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !order.ValidateEmail(req.Email) {
		return nil, svcerrors.Validation("email", "a valid email address is required")
	}
	if len(req.Password) < 6 {
		return nil, svcerrors.Validation("password", "password must be at least 6 characters")
	}
	upd := account.ProfileUpdate{FullName: req.FullName, Phone: req.Phone}
	if field := upd.Normalize(); field != "" {
		return nil, svcerrors.Validation(field, "invalid "+field)
	}

	resp, err := s.auth.SignUp(ctx, req.Email, req.Password, map[string]any{
		"full_name": upd.FullName,
		"phone":     upd.Phone,
	})
	if err != nil {
		return nil, authError(err, "sign up failed")
	}
	sess := sessionFrom(resp)
	if sess.UserID == "" {
		return nil, svcerrors.Upstream("supabase-auth", errors.New("sign up returned no user"))
	}
	sess.PendingConfirmation = sess.AccessToken == ""

	if _, err := s.store.UpsertProfile(ctx, account.Profile{
		ID:       sess.UserID,
		Email:    req.Email,
		FullName: upd.FullName,
		Phone:    upd.Phone,
	}); err != nil {
		// The auth user exists; the profile is recreated on first update.
		s.log.WithContext(ctx).WithError(err).WithField("user_id", sess.UserID).Warn("create profile failed")
	}
	s.log.WithContext(ctx).WithField("user_id", sess.UserID).Info("customer signed up")
	return sess, nil
}

// SignIn exchanges email and password for a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if !s.Enabled() {
		return nil, errAuthDisabled()
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, svcerrors.Validation("email", "email and password are required")
	}
	resp, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, authError(err, "invalid email or password")
	}
	sess := sessionFrom(resp)
	if sess.AccessToken == "" {
		return nil, svcerrors.Unauthorized("invalid email or password")
	}
	return sess, nil
}

// SignOut revokes the session. Failures are logged; the caller clears its
// cookie regardless.
func (s *Service) SignOut(ctx context.Context, accessToken string) {
	if !s.Enabled() || accessToken == "" {
		return
	}
	if err := s.auth.SignOut(ctx, accessToken); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("sign out failed")
	}
}

// Authenticate verifies an access token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (account.Identity, error) {
	if s.verifier == nil {
		return account.Identity{}, errAuthDisabled()
	}
	return s.verifier.Verify(ctx, accessToken)
}

// Profile returns the caller's profile, or an empty one carrying the
// identity's email if none was saved yet.
func (s *Service) Profile(ctx context.Context, id account.Identity) (account.Profile, error) {
	p, err := s.store.GetProfile(ctx, id.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return account.Profile{ID: id.UserID, Email: id.Email}, nil
	}
	if err != nil {
		return account.Profile{}, svcerrors.Internal("failed to load profile", err)
	}
	return p, nil
}

// UpdateProfile saves the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id account.Identity, upd account.ProfileUpdate) (account.Profile, error) {
	if field := upd.Normalize(); field != "" {
		return account.Profile{}, svcerrors.Validation(field, "invalid "+field)
	}
	p, err := s.store.UpsertProfile(ctx, account.Profile{
		ID:       id.UserID,
		Email:    id.Email,
		FullName: upd.FullName,
		Phone:    upd.Phone,
		Address:  upd.Address,
	})
	if err != nil {
		return account.Profile{}, svcerrors.Internal("failed to save profile", err)
	}
	return p, nil
}

// MyOrders lists the caller's orders with derived payment status.
func (s *Service) MyOrders(ctx context.Context, id account.Identity) ([]order.Summary, error) {
	orders, err := s.store.ListOrders(ctx, storage.OrderFilter{UserID: id.UserID})
	if err != nil {
		return nil, svcerrors.Internal("failed to load orders", err)
	}
	return s.summarize(ctx, orders)
}

// GuestOrders looks up orders by contact details. Both email and phone must
// match.
func (s *Service) GuestOrders(ctx context.Context, email, phone string) ([]order.Summary, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !order.ValidateEmail(email) {
		return nil, svcerrors.Validation("email", "a valid email address is required")
	}
	normalized, ok := order.NormalizePhone(phone)
	if !ok {
		return nil, svcerrors.Validation("phone", "a valid 10-digit Indian mobile number is required")
	}
	orders, err := s.store.ListOrders(ctx, storage.OrderFilter{GuestEmail: email, GuestPhone: normalized})
	if err != nil {
		return nil, svcerrors.Internal("failed to load orders", err)
	}
	return s.summarize(ctx, orders)
}

func (s *Service) summarize(ctx context.Context, orders []order.Order) ([]order.Summary, error) {
	if len(orders) == 0 {
		return []order.Summary{}, nil
	}
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}
	txns, err := s.store.ListTransactions(ctx, storage.TransactionFilter{OrderIDs: ids})
	if err != nil {
		return nil, svcerrors.Internal("failed to load transactions", err)
	}
	return order.Summarize(orders, txns, s.now(), s.abandonAfter), nil
}

func sessionFrom(resp *client.AuthResponse) *Session {
	sess := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    resp.ExpiresIn,
	}
	if resp.User != nil {
		sess.UserID = resp.User.ID
		sess.Email = resp.User.Email
	}
	return sess
}

// authError maps Supabase Auth failures. Client errors become the given
// message; everything else is an upstream failure.
func authError(err error, message string) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return svcerrors.RateLimitExceeded(0, "supabase")
		}
		return svcerrors.Unauthorized(message).WithDetails("reason", apiErr.Message)
	}
	return svcerrors.Upstream("supabase-auth", err)
}
