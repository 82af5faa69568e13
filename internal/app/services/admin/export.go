package admin

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/app/domain/order"
	svcerrors "github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
)

const exportSheet = "Orders"

var exportHeader = []interface{}{
	"Order ID", "Created (UTC)", "Customer", "Email", "Phone", "Address",
	"Product", "Quantity", "Total (INR)", "Payment status", "Payment method",
	"Razorpay payment", "Fulfilment",
}

// Export writes the filtered order list as an XLSX workbook.
func (s *Service) Export(ctx context.Context, w io.Writer, status string) error {
	dash, err := s.Dashboard(ctx, status)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("close workbook failed")
		}
	}()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return svcerrors.Internal("failed to build export", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return svcerrors.Internal("failed to build export", err)
	}
	for i, sum := range dash.Orders {
		row := exportRow(sum)
		if err := f.SetSheetRow(exportSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return svcerrors.Internal("failed to build export", err)
		}
	}
	if err := f.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return svcerrors.Internal("failed to build export", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

func exportRow(s order.Summary) []interface{} {
	paymentID := ""
	if s.Transaction != nil {
		paymentID = s.Transaction.RazorpayPaymentID
	}
	total, _ := s.Total.Float64()
	return []interface{}{
		s.OrderID,
		s.CreatedAt.UTC().Format("2006-01-02 15:04"),
		s.GuestName,
		s.GuestEmail,
		s.GuestPhone,
		s.Address,
		s.ProductName,
		s.Quantity,
		total,
		string(s.PaymentStatus),
		s.PaymentMethod,
		paymentID,
		string(s.FinalStatus),
	}
}
