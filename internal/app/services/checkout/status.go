package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/storage"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
)

// OrderStatus returns one order with its derived payment status, as shown on
// the thank-you page.
func (s *Service) OrderStatus(ctx context.Context, orderID string) (order.Summary, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return order.Summary{}, svcerrors.Validation("order_id", "order_id is required")
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return order.Summary{}, svcerrors.NotFound("order", orderID)
	}
	if err != nil {
		return order.Summary{}, svcerrors.Internal("failed to load order", err)
	}
	txns, err := s.store.ListTransactions(ctx, storage.TransactionFilter{OrderIDs: []string{orderID}})
	if err != nil {
		return order.Summary{}, svcerrors.Internal("failed to load transactions", err)
	}
	return order.Summarize([]order.Order{o}, txns, s.now(), s.opts.AbandonAfter)[0], nil
}
