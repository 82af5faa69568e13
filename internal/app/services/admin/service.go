// Package admin backs the admin dashboard: order listing with derived payment
// status, fulfilment labels, exports and the admin session.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/events"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

// Service reads and updates orders for admins.
type Service struct {
	store        storage.Store
	publisher    events.Publisher
	log          *logging.Logger
	abandonAfter time.Duration
	now          func() time.Time
}

// New builds the admin service. abandonAfter must match the checkout
// service so both views derive the same status.
func New(store storage.Store, publisher events.Publisher, abandonAfter time.Duration, log *logging.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Service{
		store:        store,
		publisher:    publisher,
		log:          log,
		abandonAfter: abandonAfter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard is the admin order list.
type Dashboard struct {
	Orders      []order.Summary     `json:"orders"`
	Totals      order.Totals        `json:"totals"`
	Filter      order.PaymentStatus `json:"filter,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// Dashboard lists every order with its derived payment status. Totals cover
// all orders; status narrows only the returned list.
func (s *Service) Dashboard(ctx context.Context, status string) (*Dashboard, error) {
	var filter order.PaymentStatus
	if status = strings.TrimSpace(status); status != "" && status != "all" {
		ps, ok := order.ParsePaymentStatus(status)
		if !ok {
			return nil, svcerrors.Validation("status", fmt.Sprintf("unknown payment status %q", status))
		}
		filter = ps
	}

	summaries, err := s.summaries(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Orders:      order.Filter(summaries, filter),
		Totals:      order.Tally(summaries),
		Filter:      filter,
		GeneratedAt: s.now(),
	}, nil
}

func (s *Service) summaries(ctx context.Context) ([]order.Summary, error) {
	orders, err := s.store.ListOrders(ctx, storage.OrderFilter{})
	if err != nil {
		return nil, svcerrors.Internal("failed to load orders", err)
	}
	txns, err := s.store.ListTransactions(ctx, storage.TransactionFilter{})
	if err != nil {
		return nil, svcerrors.Internal("failed to load transactions", err)
	}
	return order.Summarize(orders, txns, s.now(), s.abandonAfter), nil
}

// SetFinalStatus sets the fulfilment label. Delivered also moves the order
// status to delivered.
func (s *Service) SetFinalStatus(ctx context.Context, orderID, label string) (order.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return order.Order{}, svcerrors.Validation("order_id", "order_id is required")
	}
	fs, err := order.ParseFinalStatus(label)
	if err != nil {
		return order.Order{}, svcerrors.Validation("final_status", err.Error())
	}

	patch := order.Patch{FinalStatus: &fs}
	if fs == order.FinalDelivered {
		delivered := order.StatusDelivered
		patch.Status = &delivered
	}
	updated, err := s.store.UpdateOrder(ctx, orderID, patch)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Order{}, svcerrors.NotFound("order", orderID)
	}
	if err != nil {
		return order.Order{}, svcerrors.Internal("failed to update order", err)
	}

	ev := events.New(events.OrderUpdated, updated.OrderID)
	ev.FinalStatus = string(updated.FinalStatus)
	ev.Amount = updated.Total
	ev.Customer = updated.GuestName
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("publish order update failed")
	}
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"order_id":     updated.OrderID,
		"final_status": fs,
	}).Info("fulfilment status updated")
	return updated, nil
}
