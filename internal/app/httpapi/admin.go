package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/admin"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/httputil"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/web"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type finalStatusRequest struct {
	OrderID     string `json:"order_id"`
	FinalStatus string `json:"final_status"`
}

func (h *Handler) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	dash, err := h.admin.Dashboard(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"orders":       dash.Orders,
		"totals":       dash.Totals,
		"filter":       dash.Filter,
		"generated_at": dash.GeneratedAt,
	})
}

func (h *Handler) handleAdminUpdateOrder(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	req := finalStatusRequest{OrderID: fields["order_id"], FinalStatus: fields["final_status"]}
	if req.OrderID == "" {
		req.OrderID = r.URL.Query().Get("order_id")
	}

	o, err := h.admin.SetFinalStatus(r.Context(), req.OrderID, req.FinalStatus)
	h.audit.record(r, "set_final_status", req.OrderID, req.FinalStatus, err == nil)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"order":   o,
	})
}

func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	var buf bytes.Buffer
	if err := h.admin.Export(r.Context(), &buf, status); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	h.audit.record(r, "export_orders", "", status, true)

	name := fmt.Sprintf("orders-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entries": h.audit.listLimit(limit),
	})
}

// login checks the password and sets the session cookie.
func (h *Handler) login(w http.ResponseWriter, r *http.Request, password string) (time.Time, error) {
	token, expires, err := h.adminAuth.Login(r.Context(), password)
	h.audit.record(r, "admin_login", "", "", err == nil)
	if err != nil {
		return time.Time{}, err
	}
	h.setCookie(w, admin.SessionCookie, token, h.adminAuth.TTL())
	return expires, nil
}

func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	expires, err := h.login(w, r, fields["password"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"expires_at": expires,
	})
}

func (h *Handler) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, admin.SessionCookie)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) pageAdminLogin(w http.ResponseWriter, r *http.Request) {
	data := struct{ Enabled bool }{Enabled: h.adminAuth.Enabled()}
	h.views.Render(w, r, http.StatusOK, web.PageAdminLogin, h.view(r, "Admin sign in", data))
}

func (h *Handler) submitAdminLogin(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err == nil {
		_, err = h.login(w, r, fields["password"])
	}
	if err != nil {
		v := h.view(r, "Admin sign in", struct{ Enabled bool }{Enabled: h.adminAuth.Enabled()})
		v.Error = errorMessage(err)
		status := http.StatusUnauthorized
		if se := errors.GetServiceError(err); se != nil {
			status = se.HTTPStatus
		}
		h.views.Render(w, r, status, web.PageAdminLogin, v)
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *Handler) submitAdminLogout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, admin.SessionCookie)
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

func (h *Handler) pageAdmin(w http.ResponseWriter, r *http.Request) {
	dash, err := h.admin.Dashboard(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.views.Render(w, r, http.StatusOK, web.PageAdmin, h.view(r, "Orders", dash))
}
