// Package purchases records stock received from suppliers.
//
// Purchases are create-only. Once committed they cannot be edited or
// deleted, so the stock they added can only be taken back by a sale.
package purchases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

// Line is one received entry. Price is the unit cost paid.
type Line = inventory.Line

type CreateInput struct {
	SupplierID *int64
	Lines      []Line
}

// Summary is a purchase row with its supplier name.
type Summary struct {
	domain.Purchase
	SupplierName *string `db:"supplier_name" json:"supplier_name,omitempty"`
}

type DetailLine struct {
	domain.PurchaseItem
	ItemName *string `db:"item_name" json:"item_name,omitempty"`
	ItemCode *string `db:"item_code" json:"item_code,omitempty"`
}

type Detail struct {
	Summary
	Lines []DetailLine `json:"lines"`
}

type Service struct {
	db  *sqlx.DB
	log zerolog.Logger
	now func() time.Time
}

func NewService(db *sqlx.DB, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "purchases").Logger(), now: time.Now}
}

// Total is Σ qty*price over lines.
func Total(lines []Line) decimal.Decimal {
	return inventory.LinesTotal(lines)
}

// CreatePurchase stores the purchase and its lines and adds every line's
// quantity to stock, all in one transaction.
func (s *Service) CreatePurchase(ctx context.Context, input CreateInput) (int64, error) {
	if len(input.Lines) == 0 {
		return 0, apperr.Invalid("lines", "cart is empty")
	}
	if input.SupplierID != nil && *input.SupplierID <= 0 {
		return 0, apperr.Invalid("supplier_id", "must be positive")
	}
	lines := input.Lines
	if err := inventory.ValidateLines(lines); err != nil {
		return 0, err
	}
	date := s.now().Format(domain.DateLayout)

	var purchaseID int64
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if input.SupplierID != nil {
			ok, err := parties.Exists(ctx, tx, domain.EntitySupplier, *input.SupplierID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound("supplier", *input.SupplierID)
			}
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO purchases (supplier_id, date, total) VALUES (?, ?, ?)`, input.SupplierID, date, Total(lines))
		if err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
		if purchaseID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("purchase id: %w", err)
		}

		for _, l := range lines {
			if _, err := tx.ExecContext(ctx, `INSERT INTO purchase_items (purchase_id, item_id, qty, price) VALUES (?, ?, ?, ?)`,
				purchaseID, l.ItemID, l.Qty, l.Price); err != nil {
				return fmt.Errorf("insert purchase line: %w", err)
			}
			if err := inventory.AdjustQuantity(ctx, tx, l.ItemID, l.Qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = apperr.Consistency("create purchase", err)
		if errors.Is(err, apperr.ErrConsistency) {
			s.log.Error().Err(err).Msg("transaction rolled back")
		}
		return 0, err
	}
	s.log.Info().Int64("purchase_id", purchaseID).Int("lines", len(lines)).Msg("purchase committed")
	return purchaseID, nil
}

func (s *Service) GetPurchase(ctx context.Context, purchaseID int64) (Detail, error) {
	var d Detail
	err := s.db.GetContext(ctx, &d.Summary, `SELECT p.id, p.supplier_id, p.date, p.total, sp.name AS supplier_name
                FROM purchases p
                LEFT JOIN suppliers sp ON sp.id = p.supplier_id
                WHERE p.id = ?`, purchaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return Detail{}, apperr.NotFound("purchase", purchaseID)
	}
	if err != nil {
		return Detail{}, fmt.Errorf("purchases: get: %w", err)
	}

	d.Lines = []DetailLine{}
	if err := s.db.SelectContext(ctx, &d.Lines, `SELECT pi.id, pi.purchase_id, pi.item_id, pi.qty, pi.price, it.name AS item_name, it.code AS item_code
                FROM purchase_items pi
                LEFT JOIN items it ON it.id = pi.item_id
                WHERE pi.purchase_id = ?
                ORDER BY pi.id`, purchaseID); err != nil {
		return Detail{}, fmt.Errorf("purchases: get lines: %w", err)
	}
	return d, nil
}

// ListPurchases returns every purchase, newest first.
func (s *Service) ListPurchases(ctx context.Context) ([]Summary, error) {
	out := []Summary{}
	if err := s.db.SelectContext(ctx, &out, `SELECT p.id, p.supplier_id, p.date, p.total, sp.name AS supplier_name
                FROM purchases p
                LEFT JOIN suppliers sp ON sp.id = p.supplier_id
                ORDER BY p.date DESC, p.id DESC`); err != nil {
		return nil, fmt.Errorf("purchases: list: %w", err)
	}
	return out, nil
}
