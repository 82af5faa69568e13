package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/httputil"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/middleware"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/web"
)

// view fills the per-request parts of a page.
func (h *Handler) view(r *http.Request, title string, data interface{}) web.View {
	v := web.View{Title: title, Data: data, Admin: middleware.IsAdmin(r.Context())}
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		v.User = &web.User{ID: id.UserID, Email: id.Email}
	}
	return v
}

// renderError shows err on the error page with its HTTP status.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("Internal server error", err)
	}
	if se.HTTPStatus >= http.StatusInternalServerError {
		h.log.WithContext(r.Context()).WithError(err).Error("request failed")
	}
	v := h.view(r, "Something went wrong", nil)
	v.Error = se.Message
	h.views.Render(w, r, se.HTTPStatus, web.PageError, v)
}

// fail answers an API caller with JSON and a browser with the error page.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httputil.WantsJSON(r) {
		if se := errors.GetServiceError(err); se == nil || se.HTTPStatus >= http.StatusInternalServerError {
			h.log.WithContext(r.Context()).WithError(err).Error("request failed")
		}
		httputil.WriteError(w, r, err)
		return
	}
	h.renderError(w, r, err)
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || httputil.WantsJSON(r) {
		httputil.WriteError(w, r, errors.NotFound("route", r.URL.Path))
		return
	}
	v := h.view(r, "Page not found", nil)
	h.views.Render(w, r, http.StatusNotFound, web.PageError, v)
}

// errorMessage is the user-facing text of err.
func errorMessage(err error) string {
	if se := errors.GetServiceError(err); se != nil && se.HTTPStatus < http.StatusInternalServerError {
		return se.Message
	}
	return "Something went wrong. Please try again."
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// safeNext keeps post-login redirects on this site.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" {
		return fallback
	}
	return next
}

func thankYouURL(orderID string) string {
	return "/thank-you?order_id=" + url.QueryEscape(orderID)
}
