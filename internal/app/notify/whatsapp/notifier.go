package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

// Notifier formats and sends the storefront's order messages.
type Notifier struct {
	sender      Sender
	adminNumber string
	brand       string
	baseURL     string
	log         *logging.Logger
}

// NewNotifier wraps sender. adminNumber may be empty to skip admin alerts.
func NewNotifier(sender Sender, adminNumber, brand, baseURL string, log *logging.Logger) *Notifier {
	if sender == nil {
		sender = Nop{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Notifier{
		sender:      sender,
		adminNumber: strings.TrimSpace(adminNumber),
		brand:       brand,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		log:         log,
	}
}

// Enabled reports whether a real provider is configured.
func (n *Notifier) Enabled() bool {
	_, nop := n.sender.(Nop)
	return !nop
}

// Provider names the configured provider.
func (n *Notifier) Provider() string { return n.sender.Provider() }

// Send delivers a free-form message.
func (n *Notifier) Send(ctx context.Context, to, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message is empty")
	}
	id, err := n.sender.Send(ctx, to, message)
	if err != nil {
		n.log.WithContext(ctx).WithError(err).WithField("provider", n.sender.Provider()).Warn("whatsapp send failed")
		return "", err
	}
	return id, nil
}

// OrderConfirmed tells the customer their order is paid and alerts the
// admin. Both sends are attempted; errors are joined.
func (n *Notifier) OrderConfirmed(ctx context.Context, o order.Order) error {
	if !n.Enabled() {
		return nil
	}
	var errs []error
	if o.GuestPhone != "" {
		if _, err := n.Send(ctx, o.GuestPhone, n.CustomerMessage(o)); err != nil {
			errs = append(errs, fmt.Errorf("customer message: %w", err))
		}
	}
	if n.adminNumber != "" {
		if _, err := n.Send(ctx, n.adminNumber, n.AdminMessage(o)); err != nil {
			errs = append(errs, fmt.Errorf("admin message: %w", err))
		}
	}
	return errors.Join(errs...)
}

// CustomerMessage is the order confirmation sent to the buyer.
func (n *Notifier) CustomerMessage(o order.Order) string {
	var b strings.Builder
	name := strings.TrimSpace(o.GuestName)
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s, thank you for ordering from %s!\n\n", name, n.brand)
	fmt.Fprintf(&b, "Order: %s\n", o.OrderID)
	fmt.Fprintf(&b, "Item: %s x %d\n", o.ProductName, o.Quantity)
	fmt.Fprintf(&b, "Total: %s\n", order.FormatRupees(o.Total))
	if o.Address != "" {
		fmt.Fprintf(&b, "Delivering to: %s\n", o.Address)
	}
	b.WriteString("\nWe'll message you again when it ships.")
	if n.baseURL != "" {
		fmt.Fprintf(&b, "\nTrack your order: %s/orders", n.baseURL)
	}
	return b.String()
}

// AdminMessage is the new-order alert sent to the shop owner.
func (n *Notifier) AdminMessage(o order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New paid order %s\n", o.OrderID)
	fmt.Fprintf(&b, "%s x %d = %s\n", o.ProductName, o.Quantity, order.FormatRupees(o.Total))
	fmt.Fprintf(&b, "Customer: %s %s %s\n", o.GuestName, o.GuestPhone, o.GuestEmail)
	if o.Address != "" {
		fmt.Fprintf(&b, "Address: %s\n", o.Address)
	}
	if o.PaymentMethod != "" {
		fmt.Fprintf(&b, "Paid via: %s", o.PaymentMethod)
	}
	return strings.TrimRight(b.String(), "\n")
}
