package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	rzp "github.com/razorpay/razorpay-go"
)

type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Payments(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type paymentAPI interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// Config holds API credentials.
type Config struct {
	KeyID     string
	KeySecret string
	// MagicCheckout sends line items so the hosted widget can show the cart
	// and collect a shipping address.
	MagicCheckout bool
}

// Client is the razorpay-go backed Gateway.
type Client struct {
	keyID    string
	magic    bool
	orders   orderAPI
	payments paymentAPI
}

var _ Gateway = (*Client)(nil)

// New creates a Gateway for the given credentials.
func New(cfg Config) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}
	sdk := rzp.NewClient(cfg.KeyID, cfg.KeySecret)
	return &Client{
		keyID:    cfg.KeyID,
		magic:    cfg.MagicCheckout,
		orders:   sdk.Order,
		payments: sdk.Payment,
	}, nil
}

func (c *Client) KeyID() string { return c.keyID }

// CreateOrder creates a Razorpay order. The receipt must be our order id so
// webhooks can be matched even before razorpay_order_id is stored.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	if req.AmountPaise < 100 {
		return Order{}, fmt.Errorf("razorpay order amount %d paise is below the minimum", req.AmountPaise)
	}
	currency := req.Currency
	if currency == "" {
		currency = CurrencyINR
	}

	data := map[string]interface{}{
		"amount":          req.AmountPaise,
		"currency":        currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
	}
	if len(req.Notes) > 0 {
		n := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			n[k] = v
		}
		data["notes"] = n
	}
	if c.magic && len(req.LineItems) > 0 {
		var total int64
		items := make([]map[string]interface{}, 0, len(req.LineItems))
		for _, li := range req.LineItems {
			total += li.PricePaise * int64(li.Quantity)
			items = append(items, map[string]interface{}{
				"sku":         li.SKU,
				"variant_id":  li.SKU,
				"name":        li.Name,
				"description": li.Description,
				"image_url":   li.ImageURL,
				"weight":      li.WeightGrams,
				"price":       li.PricePaise,
				"offer_price": li.PricePaise,
				"quantity":    li.Quantity,
			})
		}
		data["line_items_total"] = total
		data["line_items"] = items
	}

	resp, err := c.orders.Create(data, nil)
	if err != nil {
		return Order{}, fmt.Errorf("razorpay create order: %w", err)
	}
	r, err := entity(resp)
	if err != nil {
		return Order{}, err
	}
	o := parseOrder(r)
	if o.ID == "" {
		return Order{}, fmt.Errorf("razorpay create order: %w: no order id", ErrMalformedPayload)
	}
	return o, nil
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	resp, err := c.orders.Fetch(orderID, nil, nil)
	if err != nil {
		return Order{}, fmt.Errorf("razorpay fetch order %s: %w", orderID, err)
	}
	r, err := entity(resp)
	if err != nil {
		return Order{}, err
	}
	return parseOrder(r), nil
}

func (c *Client) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	resp, err := c.payments.Fetch(paymentID, nil, nil)
	if err != nil {
		return Payment{}, fmt.Errorf("razorpay fetch payment %s: %w", paymentID, err)
	}
	r, err := entity(resp)
	if err != nil {
		return Payment{}, err
	}
	return parsePayment(r), nil
}

func (c *Client) OrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.orders.Payments(orderID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay order payments %s: %w", orderID, err)
	}
	r, err := entity(resp)
	if err != nil {
		return nil, err
	}
	items := r.Get("items").Array()
	out := make([]Payment, 0, len(items))
	for _, item := range items {
		out = append(out, parsePayment(item))
	}
	return out, nil
}

// NormalizeMethod maps an empty gateway method onto the generic label.
func NormalizeMethod(method string) string {
	if m := strings.ToLower(strings.TrimSpace(method)); m != "" {
		return m
	}
	return "razorpay"
}
