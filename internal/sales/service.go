// Package sales creates, edits and deletes sales (invoices) while keeping
// stored totals and item quantities in step with the line items.
package sales

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"maktaba/m/domain"
	"maktaba/m/internal/apperr"
	"maktaba/m/internal/database"
	"maktaba/m/internal/inventory"
	"maktaba/m/internal/parties"
)

// Line is one submitted (item, quantity, price) entry. Price is the price
// the point of sale charged, which is stored as is.
type Line = inventory.Line

// CreateInput describes a cart being committed.
type CreateInput struct {
	CustomerID *int64
	// NewCustomer with a non-empty NewCustomerName creates the customer
	// inside the sale and bills it.
	NewCustomer     bool
	NewCustomerName string
	Lines           []Line
}

// EditInput replaces the header and every line of a committed sale.
// An empty Date keeps the stored one.
type EditInput struct {
	CustomerID *int64
	Date       string
	Lines      []Line
}

// Summary is a sale row with its customer name.
type Summary struct {
	domain.Sale
	CustomerName *string `db:"customer_name" json:"customer_name,omitempty"`
}

// InvoiceLine is a line item with the current name and code of its item.
// Both are nil when the item has been deleted since.
type InvoiceLine struct {
	domain.SaleItem
	ItemName *string `db:"item_name" json:"item_name,omitempty"`
	ItemCode *string `db:"item_code" json:"item_code,omitempty"`
}

// Invoice is the read projection of one sale.
type Invoice struct {
	Summary
	Lines []InvoiceLine `json:"lines"`
}

// Service runs the sale operations of one store.
type Service struct {
	db  *sqlx.DB
	log zerolog.Logger
	now func() time.Time
}

// NewService binds a Service to a store dataset.
func NewService(db *sqlx.DB, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "sales").Logger(), now: time.Now}
}

// Total is Σ qty*price over lines.
func Total(lines []Line) decimal.Decimal {
	return inventory.LinesTotal(lines)
}

// CreateSale commits a cart: the sale row, one line per cart entry and a
// stock decrement per line, all in one transaction.
func (s *Service) CreateSale(ctx context.Context, input CreateInput) (int64, error) {
	if len(input.Lines) == 0 {
		return 0, apperr.Invalid("lines", "cart is empty")
	}
	lines := input.Lines
	if err := inventory.ValidateLines(lines); err != nil {
		return 0, err
	}
	if err := validateCustomerID(input.CustomerID); err != nil {
		return 0, err
	}
	date := s.now().Format(domain.DateLayout)

	var saleID int64
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		customerID := input.CustomerID
		if input.NewCustomer && strings.TrimSpace(input.NewCustomerName) != "" {
			id, err := parties.InsertCustomer(ctx, tx, parties.Input{Name: input.NewCustomerName})
			if err != nil {
				return err
			}
			customerID = &id
		} else if err := requireCustomer(ctx, tx, customerID); err != nil {
			return err
		}

		for _, l := range lines {
			if err := inventory.RequireItem(ctx, tx, l.ItemID); err != nil {
				return err
			}
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO sales (customer_id, date, total) VALUES (?, ?, ?)`, customerID, date, Total(lines))
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		saleID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sale id: %w", err)
		}
		return insertLines(ctx, tx, saleID, lines)
	})
	if err != nil {
		return 0, s.fail("create sale", err)
	}
	s.log.Info().Int64("sale_id", saleID).Int("lines", len(lines)).Msg("sale committed")
	return saleID, nil
}

// EditSale restores the stock of the stored lines, replaces them with the
// submitted ones and recomputes the total. Restoring always happens before
// decrementing so an item present in both sets never dips below what the
// edit itself implies.
func (s *Service) EditSale(ctx context.Context, saleID int64, input EditInput) error {
	lines := input.Lines
	if err := inventory.ValidateLines(lines); err != nil {
		return err
	}
	if err := validateCustomerID(input.CustomerID); err != nil {
		return err
	}
	var (
		date string
		err  error
	)
	if strings.TrimSpace(input.Date) != "" {
		if date, err = domain.ParseDate(input.Date); err != nil {
			return apperr.Invalid("date", "%v", err)
		}
	}

	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		sale, err := getSale(ctx, tx, saleID)
		if err != nil {
			return err
		}
		if err := requireCustomer(ctx, tx, input.CustomerID); err != nil {
			return err
		}
		if date == "" {
			date = sale.Date
		}
		if err := s.restoreLines(ctx, tx, saleID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sales SET customer_id = ?, date = ? WHERE id = ?`, input.CustomerID, date, saleID); err != nil {
			return fmt.Errorf("update sale: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, saleID); err != nil {
			return fmt.Errorf("delete sale lines: %w", err)
		}
		for _, l := range lines {
			if err := inventory.RequireItem(ctx, tx, l.ItemID); err != nil {
				return err
			}
		}
		if err := insertLines(ctx, tx, saleID, lines); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sales SET total = ? WHERE id = ?`, Total(lines), saleID); err != nil {
			return fmt.Errorf("update total: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail("edit sale", err)
	}
	s.log.Info().Int64("sale_id", saleID).Int("lines", len(lines)).Msg("sale edited")
	return nil
}

// DeleteSale restores the stock of every line and removes the sale.
func (s *Service) DeleteSale(ctx context.Context, saleID int64) error {
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := getSale(ctx, tx, saleID); err != nil {
			return err
		}
		if err := s.restoreLines(ctx, tx, saleID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, saleID); err != nil {
			return fmt.Errorf("delete sale lines: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, saleID); err != nil {
			return fmt.Errorf("delete sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return s.fail("delete sale", err)
	}
	s.log.Info().Int64("sale_id", saleID).Msg("sale deleted")
	return nil
}

// GetInvoice returns a sale with its customer name and lines.
func (s *Service) GetInvoice(ctx context.Context, saleID int64) (Invoice, error) {
	var inv Invoice
	err := s.db.GetContext(ctx, &inv.Summary, `SELECT s.id, s.customer_id, s.date, s.total, c.name AS customer_name
                FROM sales s
                LEFT JOIN customers c ON c.id = s.customer_id
                WHERE s.id = ?`, saleID)
	if errors.Is(err, sql.ErrNoRows) {
		return Invoice{}, apperr.NotFound("sale", saleID)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("sales: get invoice: %w", err)
	}

	inv.Lines = []InvoiceLine{}
	if err := s.db.SelectContext(ctx, &inv.Lines, `SELECT si.id, si.sale_id, si.item_id, si.qty, si.price, it.name AS item_name, it.code AS item_code
                FROM sale_items si
                LEFT JOIN items it ON it.id = si.item_id
                WHERE si.sale_id = ?
                ORDER BY si.id`, saleID); err != nil {
		return Invoice{}, fmt.Errorf("sales: get invoice lines: %w", err)
	}
	return inv, nil
}

// ListInvoices returns every sale, newest first.
func (s *Service) ListInvoices(ctx context.Context) ([]Summary, error) {
	out := []Summary{}
	if err := s.db.SelectContext(ctx, &out, `SELECT s.id, s.customer_id, s.date, s.total, c.name AS customer_name
                FROM sales s
                LEFT JOIN customers c ON c.id = s.customer_id
                ORDER BY s.date DESC, s.id DESC`); err != nil {
		return nil, fmt.Errorf("sales: list invoices: %w", err)
	}
	return out, nil
}

// restoreLines adds back the quantity of every stored line of a sale. A line
// whose item was deleted has nothing to restore.
func (s *Service) restoreLines(ctx context.Context, tx *sqlx.Tx, saleID int64) error {
	var old []domain.SaleItem
	if err := tx.SelectContext(ctx, &old, `SELECT id, sale_id, item_id, qty, price FROM sale_items WHERE sale_id = ?`, saleID); err != nil {
		return fmt.Errorf("load sale lines: %w", err)
	}
	for _, l := range old {
		err := inventory.AdjustQuantity(ctx, tx, l.ItemID, l.Qty)
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Warn().Int64("sale_id", saleID).Int64("item_id", l.ItemID).Msg("line references a deleted item, stock not restored")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) fail(op string, err error) error {
	err = apperr.Consistency(op, err)
	if errors.Is(err, apperr.ErrConsistency) {
		s.log.Error().Err(err).Str("op", op).Msg("transaction rolled back")
	}
	return err
}

func insertLines(ctx context.Context, tx *sqlx.Tx, saleID int64, lines []Line) error {
	for _, l := range lines {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sale_items (sale_id, item_id, qty, price) VALUES (?, ?, ?, ?)`,
			saleID, l.ItemID, l.Qty, l.Price); err != nil {
			return fmt.Errorf("insert sale line: %w", err)
		}
		if err := inventory.AdjustQuantity(ctx, tx, l.ItemID, -l.Qty); err != nil {
			return err
		}
	}
	return nil
}

func getSale(ctx context.Context, q sqlx.QueryerContext, saleID int64) (domain.Sale, error) {
	var sale domain.Sale
	err := sqlx.GetContext(ctx, q, &sale, `SELECT id, customer_id, date, total FROM sales WHERE id = ?`, saleID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, apperr.NotFound("sale", saleID)
	}
	if err != nil {
		return domain.Sale{}, fmt.Errorf("load sale: %w", err)
	}
	return sale, nil
}

func requireCustomer(ctx context.Context, q sqlx.QueryerContext, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := parties.Exists(ctx, q, domain.EntityCustomer, *id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("customer", *id)
	}
	return nil
}

func validateCustomerID(id *int64) error {
	if id != nil && *id <= 0 {
		return apperr.Invalid("customer_id", "must be positive")
	}
	return nil
}
