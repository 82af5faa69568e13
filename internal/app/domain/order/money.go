package order

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MinAmountPaise is the smallest amount Razorpay accepts (₹1).
const MinAmountPaise int64 = 100

var (
	ErrAmountTooSmall = errors.New("amount is below the ₹1 minimum")
	ErrInvalidAmount  = errors.New("invalid amount")

	hundred  = decimal.NewFromInt(100)
	maxPaise = decimal.NewFromInt(math.MaxInt64)
)

// ToPaise converts rupees to integer paise, rounding half away from zero at
// the paisa. Amounts under MinAmountPaise are rejected.
func ToPaise(rupees decimal.Decimal) (int64, error) {
	if rupees.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, rupees)
	}
	paise := rupees.Mul(hundred).Round(0)
	if paise.GreaterThan(maxPaise) {
		return 0, fmt.Errorf("%w: %s does not fit in paise", ErrInvalidAmount, rupees)
	}
	n := paise.IntPart()
	if n < MinAmountPaise {
		return 0, fmt.Errorf("%w: %d paise", ErrAmountTooSmall, n)
	}
	return n, nil
}

// FromPaise converts integer paise to rupees.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// LineTotal is price × quantity rounded to the paisa.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// FormatRupees renders an amount for pages and messages, e.g. "₹240.00".
func FormatRupees(amount decimal.Decimal) string {
	return "₹" + amount.StringFixed(2)
}
