package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"maktaba/m/domain"
	"maktaba/m/internal/apperr"
	"maktaba/m/internal/database"
)

// ItemInput carries the editable fields of an item.
type ItemInput struct {
	Code      string
	Name      string
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal
	Qty       int64
}

// DeleteResult describes a deleted item and how many historical lines still
// point at it.
type DeleteResult struct {
	Item       domain.Item `json:"item"`
	References int64       `json:"references"`
}

// Service manages the item catalog of one store.
type Service struct {
	db *sqlx.DB
}

// NewService binds a Service to a store dataset.
func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

const itemColumns = `id, code, name, buy_price, sell_price, qty`

// CreateItem adds an item. A duplicate code is reported as a ConstraintError.
func (s *Service) CreateItem(ctx context.Context, input ItemInput) (domain.Item, error) {
	item, err := normalizeItem(input)
	if err != nil {
		return domain.Item{}, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO items (code, name, buy_price, sell_price, qty) VALUES (?, ?, ?, ?, ?)`,
		item.Code, item.Name, item.BuyPrice, item.SellPrice, item.Qty)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.Item{}, &apperr.ConstraintError{Field: "code", Value: item.Code}
		}
		return domain.Item{}, fmt.Errorf("inventory: insert item: %w", err)
	}
	item.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Item{}, fmt.Errorf("inventory: item id: %w", err)
	}
	return item, nil
}

// UpdateItem overwrites every editable field of an item, quantity included.
func (s *Service) UpdateItem(ctx context.Context, id int64, input ItemInput) (domain.Item, error) {
	item, err := normalizeItem(input)
	if err != nil {
		return domain.Item{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE items SET code = ?, name = ?, buy_price = ?, sell_price = ?, qty = ? WHERE id = ?`,
		item.Code, item.Name, item.BuyPrice, item.SellPrice, item.Qty, id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.Item{}, &apperr.ConstraintError{Field: "code", Value: item.Code}
		}
		return domain.Item{}, fmt.Errorf("inventory: update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Item{}, apperr.NotFound("item", id)
	}
	item.ID = id
	return item, nil
}

// DeleteItem removes an item even when sales or purchases still reference it.
func (s *Service) DeleteItem(ctx context.Context, id int64) (DeleteResult, error) {
	var result DeleteResult
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		item, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		var refs int64
		if err := tx.GetContext(ctx, &refs, `SELECT
                (SELECT COUNT(*) FROM sale_items WHERE item_id = ?) +
                (SELECT COUNT(*) FROM purchase_items WHERE item_id = ?)`, id, id); err != nil {
			return fmt.Errorf("inventory: count references: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("inventory: delete item: %w", err)
		}
		result = DeleteResult{Item: item, References: refs}
		return nil
	})
	return result, err
}

// GetItem loads one item.
func (s *Service) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	return getItem(ctx, s.db, id)
}

// ListItems returns items ordered by name. A non-empty query keeps items
// whose code or name contains it.
func (s *Service) ListItems(ctx context.Context, query string) ([]domain.Item, error) {
	sqlQuery := `SELECT ` + itemColumns + ` FROM items`
	var args []any
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + q + "%"
		sqlQuery += ` WHERE code LIKE ? OR name LIKE ?`
		args = append(args, like, like)
	}
	sqlQuery += ` ORDER BY name, id`

	items := []domain.Item{}
	if err := s.db.SelectContext(ctx, &items, sqlQuery, args...); err != nil {
		return nil, fmt.Errorf("inventory: list items: %w", err)
	}
	return items, nil
}

// CountItems returns how many items the store carries.
func (s *Service) CountItems(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM items`); err != nil {
		return 0, fmt.Errorf("inventory: count items: %w", err)
	}
	return n, nil
}

func getItem(ctx context.Context, q sqlx.QueryerContext, id int64) (domain.Item, error) {
	var item domain.Item
	err := sqlx.GetContext(ctx, q, &item, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, apperr.NotFound("item", id)
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("inventory: get item: %w", err)
	}
	return item, nil
}

func normalizeItem(input ItemInput) (domain.Item, error) {
	item := domain.Item{
		Code:      strings.TrimSpace(input.Code),
		Name:      strings.TrimSpace(input.Name),
		BuyPrice:  input.BuyPrice.Round(2),
		SellPrice: input.SellPrice.Round(2),
		Qty:       input.Qty,
	}
	if item.Code == "" {
		return domain.Item{}, apperr.Invalid("code", "is required")
	}
	if item.Name == "" {
		return domain.Item{}, apperr.Invalid("name", "is required")
	}
	if item.BuyPrice.IsNegative() {
		return domain.Item{}, apperr.Invalid("buy_price", "must not be negative")
	}
	if item.SellPrice.IsNegative() {
		return domain.Item{}, apperr.Invalid("sell_price", "must not be negative")
	}
	return item, nil
}
