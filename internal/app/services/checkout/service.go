// Package checkout creates Razorpay-backed orders and records the payment
// outcomes reported by the checkout callback, webhooks and the reconciler.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/events"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/idempotency"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/metrics"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/notify/whatsapp"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/payments/razorpay"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/config"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

// Deps are the collaborators the service needs. Publisher, Guard and
// Notifier fall back to no-op or in-process implementations when nil.
type Deps struct {
	Store     storage.Store
	Gateway   razorpay.Gateway
	Catalog   *config.Catalog
	Guard     idempotency.Guard
	Publisher events.Publisher
	Notifier  *whatsapp.Notifier
	Log       *logging.Logger
}

// Options configure behaviour.
type Options struct {
	KeySecret     string
	WebhookSecret string
	// AbandonAfter is how long an unpaid order stays pending before it is
	// shown as an abandoned cart.
	AbandonAfter time.Duration
	// SyncNotifications sends WhatsApp confirmations before returning, for
	// runtimes that freeze the process between requests.
	SyncNotifications bool
}

// Service implements the checkout flow.
type Service struct {
	store     storage.Store
	gateway   razorpay.Gateway
	catalog   *config.Catalog
	guard     idempotency.Guard
	publisher events.Publisher
	notifier  *whatsapp.Notifier
	log       *logging.Logger
	opts      Options
	now       func() time.Time

	bg sync.WaitGroup
}

// New validates deps and builds the service.
func New(deps Deps, opts Options) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("checkout: store is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout: payment gateway is required")
	}
	if deps.Catalog == nil {
		deps.Catalog = config.DefaultCatalog()
	}
	if deps.Guard == nil {
		deps.Guard = idempotency.NewMemory(idempotency.Options{})
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Notifier == nil {
		deps.Notifier = whatsapp.NewNotifier(nil, "", deps.Catalog.Brand, "", deps.Log)
	}
	if deps.Log == nil {
		deps.Log = logging.NewNop()
	}
	return &Service{
		store:     deps.Store,
		gateway:   deps.Gateway,
		catalog:   deps.Catalog,
		guard:     deps.Guard,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		log:       deps.Log,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// AbandonAfter exposes the pending window so views derive statuses alike.
func (s *Service) AbandonAfter() time.Duration { return s.opts.AbandonAfter }

// Catalog returns the product catalog.
func (s *Service) Catalog() *config.Catalog { return s.catalog }

// Wait blocks until background notifications finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OrderRequest is the checkout form.
type OrderRequest struct {
	SKU      string
	Quantity int
	Name     string
	Email    string
	Phone    string
	Address  string
	// UserID is set when the customer is signed in.
	UserID string
}

// Prefill is passed to the checkout widget.
type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// Session is what the browser needs to open Razorpay checkout.
type Session struct {
	OrderID         string      `json:"order_id"`
	RazorpayOrderID string      `json:"razorpay_order_id"`
	KeyID           string      `json:"key_id"`
	AmountPaise     int64       `json:"amount"`
	Currency        string      `json:"currency"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Prefill         Prefill     `json:"prefill"`
	Order           order.Order `json:"-"`
}

// validate normalises req in place and returns the product being bought.
func (s *Service) validate(req *OrderRequest) (*config.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Address = strings.TrimSpace(req.Address)

	var product *config.Product
	if strings.TrimSpace(req.SKU) == "" {
		product = s.catalog.Default()
	} else {
		p, ok := s.catalog.Lookup(req.SKU)
		if !ok {
			return nil, svcerrors.Validation("sku", "unknown product")
		}
		product = p
	}

	switch {
	case req.Quantity < 1 || req.Quantity > product.MaxQuantity:
		return nil, svcerrors.Validation("quantity", fmt.Sprintf("quantity must be between 1 and %d", product.MaxQuantity))
	case req.Name == "" || len(req.Name) > 120:
		return nil, svcerrors.Validation("name", "name is required")
	case !order.ValidateEmail(req.Email):
		return nil, svcerrors.Validation("email", "a valid email address is required")
	case len(req.Address) > 500:
		return nil, svcerrors.Validation("address", "address is too long")
	}
	phone, ok := order.NormalizePhone(req.Phone)
	if !ok {
		return nil, svcerrors.Validation("phone", "a valid 10-digit Indian mobile number is required")
	}
	req.Phone = phone
	return product, nil
}

// CreateOrder prices the cart from the catalog, creates the Razorpay order and
// stores a pending order row.
func (s *Service) CreateOrder(ctx context.Context, req OrderRequest) (*Session, error) {
	product, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	total := order.LineTotal(product.Price, req.Quantity)
	amountPaise, err := order.ToPaise(total)
	if err != nil {
		return nil, svcerrors.Validation("amount", err.Error())
	}
	unitPaise, err := order.ToPaise(product.Price)
	if err != nil {
		return nil, svcerrors.Internal("catalog price is below the gateway minimum", err)
	}

	now := s.now()
	orderID := order.NewOrderID(now)
	rzpOrder, err := s.gateway.CreateOrder(ctx, razorpay.CreateOrderRequest{
		AmountPaise: amountPaise,
		Currency:    razorpay.CurrencyINR,
		Receipt:     orderID,
		Notes: map[string]string{
			"order_id":    orderID,
			"guest_name":  req.Name,
			"guest_email": req.Email,
			"guest_phone": req.Phone,
		},
		LineItems: []razorpay.LineItem{{
			SKU:         product.SKU,
			Name:        product.Name,
			Description: product.Description,
			ImageURL:    product.ImageURL,
			WeightGrams: product.Grams(),
			PricePaise:  unitPaise,
			Quantity:    req.Quantity,
		}},
	})
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("order_id", orderID).Error("razorpay order creation failed")
		return nil, svcerrors.Upstream("razorpay", err)
	}

	o := order.Order{
		OrderID:         orderID,
		ProductName:     product.Name,
		Quantity:        req.Quantity,
		Price:           product.Price,
		Total:           total,
		Status:          order.StatusPending,
		PaymentMethod:   order.PaymentMethodRazorpay,
		Address:         req.Address,
		GuestName:       req.Name,
		GuestEmail:      req.Email,
		GuestPhone:      req.Phone,
		RazorpayOrderID: rzpOrder.ID,
		CreatedAt:       now,
	}
	if req.UserID != "" {
		uid := req.UserID
		o.UserID = &uid
	}
	stored, err := s.store.CreateOrder(ctx, o)
	if err != nil {
		return nil, svcerrors.Internal("failed to save order", err)
	}

	metrics.RecordOrderCreated()
	ev := events.New(events.OrderCreated, stored.OrderID)
	ev.PaymentStatus = string(order.PaymentPending)
	ev.Amount = stored.Total
	ev.Customer = stored.GuestName
	s.publish(ctx, ev)

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_id":          stored.OrderID,
		"razorpay_order_id": rzpOrder.ID,
		"amount_paise":      amountPaise,
	}).Info("order created")

	return &Session{
		OrderID:         stored.OrderID,
		RazorpayOrderID: rzpOrder.ID,
		KeyID:           s.gateway.KeyID(),
		AmountPaise:     amountPaise,
		Currency:        razorpay.CurrencyINR,
		Name:            s.catalog.Brand,
		Description:     fmt.Sprintf("%s x %d", product.Name, req.Quantity),
		Prefill:         Prefill{Name: req.Name, Email: req.Email, Contact: req.Phone},
		Order:           stored,
	}, nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("event", ev.Type).Warn("publish event failed")
	}
}

// notifyConfirmed sends the WhatsApp confirmation without holding up the
// payment response unless SyncNotifications is set.
func (s *Service) notifyConfirmed(ctx context.Context, o order.Order) {
	if !s.notifier.Enabled() {
		return
	}
	send := func(ctx context.Context) {
		err := s.notifier.OrderConfirmed(ctx, o)
		metrics.RecordWhatsApp(s.notifier.Provider(), err == nil)
		if err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("order_id", o.OrderID).Warn("order confirmation not delivered")
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 20*time.Second)
	if s.opts.SyncNotifications {
		defer cancel()
		send(ctx)
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer cancel()
		send(ctx)
	}()
}
