// Package stats aggregates the figures shown on a store's dashboard and
// statistics page.
package stats

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"maktaba/m/internal/debts"
	"maktaba/m/internal/inventory"
)

type Dashboard struct {
	Items      int64           `json:"items"`
	Sales      int64           `json:"sales"`
	TotalSales decimal.Decimal `json:"total_sales"`
}

// Report is an approximate picture of the store. Profit is total sales
// minus total purchases, not a cost-of-goods figure.
type Report struct {
	TotalSales     decimal.Decimal `json:"total_sales"`
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	Profit         decimal.Decimal `json:"profit"`
	StockValue     decimal.Decimal `json:"stock_value"`
	Receivables    decimal.Decimal `json:"receivables"`
	Payables       decimal.Decimal `json:"payables"`
	Net            decimal.Decimal `json:"net"`
}

type Service struct {
	db     *sqlx.DB
	ledger *debts.Ledger
}

func NewService(db *sqlx.DB, ledger *debts.Ledger) *Service {
	return &Service{db: db, ledger: ledger}
}

func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	var err error
	if d.Items, err = inventory.NewService(s.db).CountItems(ctx); err != nil {
		return Dashboard{}, err
	}
	if err := s.db.GetContext(ctx, &d.Sales, `SELECT COUNT(*) FROM sales`); err != nil {
		return Dashboard{}, fmt.Errorf("stats: count sales: %w", err)
	}
	if d.TotalSales, err = s.sum(ctx, `SELECT total FROM sales`); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func (s *Service) Report(ctx context.Context) (Report, error) {
	var r Report
	var err error
	if r.TotalSales, err = s.sum(ctx, `SELECT total FROM sales`); err != nil {
		return Report{}, err
	}
	if r.TotalPurchases, err = s.sum(ctx, `SELECT total FROM purchases`); err != nil {
		return Report{}, err
	}
	r.Profit = r.TotalSales.Sub(r.TotalPurchases)

	var stock []struct {
		Qty      int64           `db:"qty"`
		BuyPrice decimal.Decimal `db:"buy_price"`
	}
	if err := s.db.SelectContext(ctx, &stock, `SELECT qty, buy_price FROM items`); err != nil {
		return Report{}, fmt.Errorf("stats: stock value: %w", err)
	}
	r.StockValue = decimal.Zero
	for _, it := range stock {
		r.StockValue = r.StockValue.Add(it.BuyPrice.Round(2).Mul(decimal.NewFromInt(it.Qty)))
	}

	pos, err := s.ledger.NetPosition(ctx)
	if err != nil {
		return Report{}, err
	}
	r.Receivables, r.Payables, r.Net = pos.Receivables, pos.Payables, pos.Net
	return r, nil
}

// sum adds up a single money column in Go so REAL rounding never leaks
// into the figure.
func (s *Service) sum(ctx context.Context, query string) (decimal.Decimal, error) {
	var values []decimal.Decimal
	if err := s.db.SelectContext(ctx, &values, query); err != nil {
		return decimal.Zero, fmt.Errorf("stats: sum: %w", err)
	}
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v.Round(2))
	}
	return total, nil
}
