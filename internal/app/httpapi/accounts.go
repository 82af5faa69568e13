package httpapi

import (
	"net/http"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/account"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/accounts"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/httputil"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/middleware"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/web"
)

// Supabase access tokens default to one hour.
const defaultSessionTTL = time.Hour

type accountPage struct {
	Enabled bool
	Profile *account.Profile
	Next    string
	Email   string
}

type ordersPage struct {
	Guest    bool
	Searched bool
	Email    string
	Phone    string
	Orders   []order.Summary
}

func (h *Handler) startSession(w http.ResponseWriter, sess *accounts.Session) {
	if sess.AccessToken == "" {
		return
	}
	ttl := time.Duration(sess.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	h.setCookie(w, middleware.CustomerCookie, sess.AccessToken, ttl)
}

func signUpRequestFrom(fields map[string]string) accounts.SignUpRequest {
	return accounts.SignUpRequest{
		Email:    fields["email"],
		Password: fields["password"],
		FullName: fields["full_name"],
		Phone:    fields["phone"],
	}
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	sess, err := h.accounts.SignUp(r.Context(), signUpRequestFrom(fields))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	h.startSession(w, sess)
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":              true,
		"user_id":              sess.UserID,
		"email":                sess.Email,
		"pending_confirmation": sess.PendingConfirmation,
	})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	sess, err := h.accounts.SignIn(r.Context(), fields["email"], fields["password"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	h.startSession(w, sess)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"user_id":      sess.UserID,
		"email":        sess.Email,
		"access_token": sess.AccessToken,
		"expires_in":   sess.ExpiresIn,
	})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.CustomerCookie); err == nil {
		h.accounts.SignOut(r.Context(), c.Value)
	}
	h.clearCookie(w, middleware.CustomerCookie)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	h.signOut(w, r)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	p, err := h.accounts.Profile(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "profile": p})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	var upd account.ProfileUpdate
	if err := httputil.DecodeJSON(r, &upd); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	p, err := h.accounts.UpdateProfile(r.Context(), id, upd)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "profile": p})
}

// handleOrders lists the caller's orders, or a guest's orders when both
// email and phone are given.
func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []order.Summary
		err    error
	)
	q := r.URL.Query()
	if id, ok := middleware.IdentityFrom(r.Context()); ok && q.Get("email") == "" {
		orders, err = h.accounts.MyOrders(r.Context(), id)
	} else if q.Get("email") != "" || q.Get("phone") != "" {
		orders, err = h.accounts.GuestOrders(r.Context(), q.Get("email"), q.Get("phone"))
	} else {
		err = errors.Unauthorized("sign in or provide email and phone")
	}
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true, "orders": orders})
}

func (h *Handler) pageOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var page ordersPage
	var err error
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		page.Orders, err = h.accounts.MyOrders(r.Context(), id)
	} else {
		page.Guest = true
		page.Email, page.Phone = q.Get("email"), q.Get("phone")
		if page.Email != "" || page.Phone != "" {
			page.Searched = true
			page.Orders, err = h.accounts.GuestOrders(r.Context(), page.Email, page.Phone)
		}
	}

	v := h.view(r, "Orders", &page)
	status := http.StatusOK
	if err != nil {
		se := errors.GetServiceError(err)
		if se == nil || se.HTTPStatus >= http.StatusInternalServerError {
			h.renderError(w, r, err)
			return
		}
		v.Error = se.Message
		status = se.HTTPStatus
	}
	h.views.Render(w, r, status, web.PageOrders, v)
}

func (h *Handler) pageAccount(w http.ResponseWriter, r *http.Request) {
	page := accountPage{Enabled: h.accounts.Enabled(), Next: safeNext(r.URL.Query().Get("next"), "")}
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		p, err := h.accounts.Profile(r.Context(), id)
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		page.Profile = &p
	}
	v := h.view(r, "Account", page)
	if r.URL.Query().Get("saved") == "1" {
		v.Notice = "Profile saved."
	}
	h.views.Render(w, r, http.StatusOK, web.PageAccount, v)
}

func (h *Handler) accountFormError(w http.ResponseWriter, r *http.Request, fields map[string]string, err error) {
	status := http.StatusBadRequest
	if se := errors.GetServiceError(err); se != nil {
		status = se.HTTPStatus
	}
	page := accountPage{Enabled: h.accounts.Enabled(), Next: safeNext(fields["next"], ""), Email: fields["email"]}
	v := h.view(r, "Account", page)
	v.Error = errorMessage(err)
	h.views.Render(w, r, status, web.PageAccount, v)
}

func (h *Handler) submitSignIn(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	sess, err := h.accounts.SignIn(r.Context(), fields["email"], fields["password"])
	if err != nil {
		h.accountFormError(w, r, fields, err)
		return
	}
	h.startSession(w, sess)
	http.Redirect(w, r, safeNext(fields["next"], "/orders"), http.StatusSeeOther)
}

func (h *Handler) submitSignUp(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	sess, err := h.accounts.SignUp(r.Context(), signUpRequestFrom(fields))
	if err != nil {
		h.accountFormError(w, r, fields, err)
		return
	}
	if sess.PendingConfirmation {
		v := h.view(r, "Account", accountPage{Enabled: true, Email: sess.Email})
		v.Notice = "Check your inbox to confirm your email, then sign in."
		h.views.Render(w, r, http.StatusOK, web.PageAccount, v)
		return
	}
	h.startSession(w, sess)
	http.Redirect(w, r, safeNext(fields["next"], "/account"), http.StatusSeeOther)
}

func (h *Handler) submitSignOut(w http.ResponseWriter, r *http.Request) {
	h.signOut(w, r)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) submitProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	p, err := h.accounts.UpdateProfile(r.Context(), id, account.ProfileUpdate{
		FullName: fields["full_name"],
		Phone:    fields["phone"],
		Address:  fields["address"],
	})
	if err != nil {
		se := errors.GetServiceError(err)
		if se == nil || se.HTTPStatus >= http.StatusInternalServerError {
			h.renderError(w, r, err)
			return
		}
		v := h.view(r, "Account", accountPage{Enabled: true, Profile: &p})
		if prev, perr := h.accounts.Profile(r.Context(), id); perr == nil {
			v.Data = accountPage{Enabled: true, Profile: &prev}
		}
		v.Error = se.Message
		h.views.Render(w, r, se.HTTPStatus, web.PageAccount, v)
		return
	}
	http.Redirect(w, r, "/account?saved=1", http.StatusSeeOther)
}
