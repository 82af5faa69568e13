// Package events fans order and payment activity out to the admin live feed
// and, when configured, a Kafka topic.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names an event.
type Type string

const (
	OrderCreated        Type = "order.created"
	OrderUpdated        Type = "order.updated"
	TransactionRecorded Type = "transaction.recorded"
)

// Event is a single notification about an order.
type Event struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	OrderID       string          `json:"order_id"`
	PaymentStatus string          `json:"payment_status,omitempty"`
	FinalStatus   string          `json:"final_status,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Customer      string          `json:"customer,omitempty"`
	At            time.Time       `json:"at"`
}

// New stamps an event with an id and time.
func New(t Type, orderID string) Event {
	return Event{ID: uuid.NewString(), Type: t, OrderID: orderID, At: time.Now().UTC()}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
