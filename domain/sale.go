package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the layout of every date column in a store dataset.
const DateLayout = "2006-01-02 15:04:05"

type Sale struct {
	ID         int64           `db:"id" json:"id"`
	CustomerID *int64          `db:"customer_id" json:"customer_id,omitempty"`
	Date       string          `db:"date" json:"date"`
	Total      decimal.Decimal `db:"total" json:"total"`
}

type SaleItem struct {
	ID     int64           `db:"id" json:"id"`
	SaleID int64           `db:"sale_id" json:"sale_id"`
	ItemID int64           `db:"item_id" json:"item_id"`
	Qty    int64           `db:"qty" json:"qty"`
	Price  decimal.Decimal `db:"price" json:"price"`
}

var dateLayouts = []string{DateLayout, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// ParseDate accepts the date formats a front end submits and returns the
// value normalized to DateLayout.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return "", fmt.Errorf("date %q must look like %s", s, DateLayout)
}
