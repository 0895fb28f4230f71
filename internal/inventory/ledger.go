// Package inventory owns the items table of a store and the quantity
// adjustments applied to it by sales, purchases and invoice edits.
package inventory

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"maktaba/m/internal/apperr"
)

// AdjustQuantity adds delta to the stored quantity of an item. There is no
// lower bound: overselling leaves a negative quantity behind.
//
// ext must be the transaction that also persists the line the adjustment
// belongs to, so both effects commit or roll back together.
func AdjustQuantity(ctx context.Context, ext sqlx.ExecerContext, itemID, delta int64) error {
	res, err := ext.ExecContext(ctx, `UPDATE items SET qty = qty + ? WHERE id = ?`, delta, itemID)
	if err != nil {
		return fmt.Errorf("inventory: adjust item %d by %d: %w", itemID, delta, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inventory: adjust item %d: %w", itemID, err)
	}
	if n == 0 {
		return apperr.NotFound("item", itemID)
	}
	return nil
}

// RequireItem fails with a NotFoundError when the item does not exist.
func RequireItem(ctx context.Context, q sqlx.QueryerContext, itemID int64) error {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS(SELECT 1 FROM items WHERE id = ?)`, itemID); err != nil {
		return fmt.Errorf("inventory: lookup item %d: %w", itemID, err)
	}
	if !exists {
		return apperr.NotFound("item", itemID)
	}
	return nil
}
