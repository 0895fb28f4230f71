package domain

import "github.com/shopspring/decimal"

type Item struct {
	ID        int64           `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Name      string          `db:"name" json:"name"`
	BuyPrice  decimal.Decimal `db:"buy_price" json:"buy_price"`
	SellPrice decimal.Decimal `db:"sell_price" json:"sell_price"`
	Qty       int64           `db:"qty" json:"qty"`
}

// WholeCents reports whether d carries at most two decimal places.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
