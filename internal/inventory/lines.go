package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"maktaba/m/domain"
	"maktaba/m/internal/apperr"
)

// Line is one (item, quantity, price) entry of a sale or a purchase. Price
// is what was charged or paid per unit and is stored as submitted.
type Line struct {
	ItemID int64           `json:"item_id"`
	Qty    int64           `json:"qty"`
	Price  decimal.Decimal `json:"price"`
}

// LinesTotal is Σ qty*price over lines.
func LinesTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(l.Qty)))
	}
	return total
}

// ValidateLines rejects a line without an item, a non-positive quantity or
// a price that is negative or finer than a cent.
func ValidateLines(lines []Line) error {
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case l.ItemID <= 0:
			return apperr.Invalid(field, "item is required")
		case l.Qty <= 0:
			return apperr.Invalid(field, "quantity must be positive")
		case l.Price.IsNegative():
			return apperr.Invalid(field, "price must not be negative")
		case !domain.WholeCents(l.Price):
			return apperr.Invalid(field, "price has more than two decimal places")
		}
	}
	return nil
}
