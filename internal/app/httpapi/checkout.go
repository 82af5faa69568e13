package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/services/checkout"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/config"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/httputil"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/middleware"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/web"
)

// checkoutForm is the buyer-entered part of the checkout page.
type checkoutForm struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

type checkoutPage struct {
	Product       *config.Product
	Quantity      int
	Total         decimal.Decimal
	Form          checkoutForm
	MagicCheckout bool
}

// widgetConfig is handed to the Razorpay checkout script.
type widgetConfig struct {
	checkout.Session
	MagicCheckout bool `json:"magic_checkout"`
}

type payPage struct {
	Session *checkout.Session
	Total   decimal.Decimal
	Widget  widgetConfig
}

type createOrderResponse struct {
	Success bool `json:"success"`
	widgetConfig
}

type verifyResponse struct {
	Success       bool                `json:"success"`
	OrderID       string              `json:"order_id"`
	PaymentID     string              `json:"payment_id"`
	PaymentStatus order.PaymentStatus `json:"payment_status"`
	Redirect      string              `json:"redirect"`
}

func orderRequestFrom(r *http.Request, fields map[string]string) checkout.OrderRequest {
	qty := fields["quantity"]
	if qty == "" {
		qty = fields["qty"]
	}
	n, _ := strconv.Atoi(qty)
	req := checkout.OrderRequest{
		SKU:      fields["sku"],
		Quantity: n,
		Name:     fields["name"],
		Email:    fields["email"],
		Phone:    fields["phone"],
		Address:  fields["address"],
	}
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		req.UserID = id.UserID
		if req.Email == "" {
			req.Email = id.Email
		}
	}
	return req
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.checkout.CreateOrder(r.Context(), orderRequestFrom(r, fields))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !httputil.WantsJSON(r) {
		h.renderPay(w, r, sess)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, createOrderResponse{
		Success:      true,
		widgetConfig: widgetConfig{Session: *sess, MagicCheckout: h.opts.MagicCheckout},
	})
}

func (h *Handler) renderPay(w http.ResponseWriter, r *http.Request, sess *checkout.Session) {
	page := payPage{
		Session: sess,
		Total:   order.FromPaise(sess.AmountPaise),
		Widget:  widgetConfig{Session: *sess, MagicCheckout: h.opts.MagicCheckout},
	}
	h.views.Render(w, r, http.StatusOK, web.PagePay, h.view(r, "Payment", page))
}

// handleVerify accepts the widget's JSON callback and Razorpay's form POST
// to callback_url alike.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.checkout.VerifyPayment(r.Context(), checkout.VerifyRequest{
		RazorpayOrderID:   fields["razorpay_order_id"],
		RazorpayPaymentID: fields["razorpay_payment_id"],
		Signature:         fields["razorpay_signature"],
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	redirect := thankYouURL(res.OrderID)
	if !httputil.WantsJSON(r) {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		Success:       true,
		OrderID:       res.OrderID,
		PaymentID:     res.PaymentID,
		PaymentStatus: res.PaymentStatus,
		Redirect:      redirect,
	})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadAllStrict(r.Body, httputil.DefaultBodyLimit)
	if err != nil {
		httputil.WriteError(w, r, errors.BadRequest("webhook body too large"))
		return
	}
	outcome, err := h.checkout.HandleWebhook(r.Context(), body,
		r.Header.Get("X-Razorpay-Signature"),
		strings.TrimSpace(r.Header.Get("X-Razorpay-Event-Id")))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  outcome,
	})
}

func (h *Handler) pageHome(w http.ResponseWriter, r *http.Request) {
	data := struct{ Products []*config.Product }{Products: h.checkout.Catalog().Products}
	h.views.Render(w, r, http.StatusOK, web.PageHome, h.view(r, "", data))
}

func (h *Handler) checkoutPage(r *http.Request, sku string, qty int, form checkoutForm) (checkoutPage, error) {
	cat := h.checkout.Catalog()
	product := cat.Default()
	if sku != "" {
		p, ok := cat.Lookup(sku)
		if !ok {
			return checkoutPage{}, errors.NotFound("product", sku)
		}
		product = p
	}
	if qty < 1 {
		qty = 1
	}
	if qty > product.MaxQuantity {
		qty = product.MaxQuantity
	}
	return checkoutPage{
		Product:       product,
		Quantity:      qty,
		Total:         order.LineTotal(product.Price, qty),
		Form:          form,
		MagicCheckout: h.opts.MagicCheckout,
	}, nil
}

func (h *Handler) pageCheckout(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, _ := strconv.Atoi(q.Get("qty"))

	var form checkoutForm
	if id, ok := middleware.IdentityFrom(r.Context()); ok {
		form.Email = id.Email
		if p, err := h.accounts.Profile(r.Context(), id); err == nil {
			form.Name, form.Phone, form.Address = p.FullName, p.Phone, p.Address
		}
	}

	page, err := h.checkoutPage(r, q.Get("sku"), qty, form)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.views.Render(w, r, http.StatusOK, web.PageCheckout, h.view(r, "Checkout", page))
}

func (h *Handler) submitCheckout(w http.ResponseWriter, r *http.Request) {
	fields, err := httputil.ParseAnyBody(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	req := orderRequestFrom(r, fields)
	sess, err := h.checkout.CreateOrder(r.Context(), req)
	if err == nil {
		h.renderPay(w, r, sess)
		return
	}

	se := errors.GetServiceError(err)
	if se == nil || se.HTTPStatus >= http.StatusInternalServerError {
		h.renderError(w, r, err)
		return
	}
	page, perr := h.checkoutPage(r, req.SKU, req.Quantity, checkoutForm{
		Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address,
	})
	if perr != nil {
		h.renderError(w, r, perr)
		return
	}
	v := h.view(r, "Checkout", page)
	v.Error = errorMessage(err)
	h.views.Render(w, r, se.HTTPStatus, web.PageCheckout, v)
}

func (h *Handler) pageThankYou(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	data := struct {
		OrderID string
		Order   *order.Summary
	}{OrderID: orderID}

	if sum, err := h.checkout.OrderStatus(r.Context(), orderID); err == nil {
		data.Order = &sum
	} else if !errors.IsCode(err, errors.CodeNotFound) && !errors.IsCode(err, errors.CodeValidation) {
		h.log.WithContext(r.Context()).WithError(err).WithField("order_id", orderID).Warn("thank-you lookup failed")
	}
	h.views.Render(w, r, http.StatusOK, web.PageThankYou, h.view(r, "Thank you", data))
}
