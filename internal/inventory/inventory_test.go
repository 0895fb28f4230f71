package inventory

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"maktaba/m/internal/apperr"
	"maktaba/m/internal/database"
	"maktaba/m/internal/storetest"
)

func TestAdjustQuantityHasNoFloor(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	id := storetest.SeedItem(t, db, "A", 2, "5")

	require.NoError(t, AdjustQuantity(ctx, db, id, -5))
	require.EqualValues(t, -3, storetest.Qty(t, db, id))

	require.NoError(t, AdjustQuantity(ctx, db, id, 10))
	require.EqualValues(t, 7, storetest.Qty(t, db, id))

	err := AdjustQuantity(ctx, db, id+100, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAdjustQuantityRollsBackWithTransaction(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	id := storetest.SeedItem(t, db, "A", 10, "5")

	err := database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if err := AdjustQuantity(ctx, tx, id, -3); err != nil {
			return err
		}
		return AdjustQuantity(ctx, tx, id+1, -1)
	})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.EqualValues(t, 10, storetest.Qty(t, db, id))
}

func TestCreateItemRejectsDuplicateCode(t *testing.T) {
	svc := NewService(storetest.Open(t))
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, ItemInput{Code: " X1 ", Name: "Notebook", BuyPrice: storetest.Dec("2.5"), SellPrice: storetest.Dec("4"), Qty: 3})
	require.NoError(t, err)
	require.Equal(t, "X1", item.Code)
	require.NotZero(t, item.ID)

	_, err = svc.CreateItem(ctx, ItemInput{Code: "X1", Name: "Other"})
	require.ErrorIs(t, err, apperr.ErrConstraint)
	var ce *apperr.ConstraintError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "X1", ce.Value)

	_, err = svc.CreateItem(ctx, ItemInput{Code: "", Name: "No code"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.CreateItem(ctx, ItemInput{Code: "N", Name: "Negative", SellPrice: storetest.Dec("-1")})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateItem(t *testing.T) {
	svc := NewService(storetest.Open(t))
	ctx := context.Background()

	a, err := svc.CreateItem(ctx, ItemInput{Code: "A", Name: "Pen"})
	require.NoError(t, err)
	_, err = svc.CreateItem(ctx, ItemInput{Code: "B", Name: "Pencil"})
	require.NoError(t, err)

	updated, err := svc.UpdateItem(ctx, a.ID, ItemInput{Code: "A2", Name: "Blue pen", SellPrice: storetest.Dec("1.25"), Qty: 40})
	require.NoError(t, err)
	require.Equal(t, "A2", updated.Code)

	got, err := svc.GetItem(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "Blue pen", got.Name)
	require.True(t, got.SellPrice.Equal(storetest.Dec("1.25")))
	require.EqualValues(t, 40, got.Qty)

	_, err = svc.UpdateItem(ctx, a.ID, ItemInput{Code: "B", Name: "Clash"})
	require.ErrorIs(t, err, apperr.ErrConstraint)

	_, err = svc.UpdateItem(ctx, 999, ItemInput{Code: "Z", Name: "Ghost"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteItemReportsReferences(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db)
	ctx := context.Background()
	id := storetest.SeedItem(t, db, "A", 5, "3")

	_, err := db.Exec(`INSERT INTO sale_items (sale_id, item_id, qty, price) VALUES (1, ?, 2, 3)`, id)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO purchase_items (purchase_id, item_id, qty, price) VALUES (1, ?, 2, 1)`, id)
	require.NoError(t, err)

	res, err := svc.DeleteItem(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 2, res.References)
	require.Equal(t, "A", res.Item.Code)

	_, err = svc.GetItem(ctx, id)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	var lines int
	require.NoError(t, db.Get(&lines, `SELECT COUNT(*) FROM sale_items WHERE item_id = ?`, id))
	require.Equal(t, 1, lines)

	_, err = svc.DeleteItem(ctx, id)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListItemsFiltersByCodeOrName(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db)
	ctx := context.Background()
	storetest.SeedItem(t, db, "PEN-1", 1, "1")
	storetest.SeedItem(t, db, "BOOK-1", 1, "1")

	all, err := svc.ListItems(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "BOOK-1", all[0].Code)

	pens, err := svc.ListItems(ctx, "pen")
	require.NoError(t, err)
	require.Len(t, pens, 1)
	require.Equal(t, "PEN-1", pens[0].Code)
}

func TestCountItems(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db)

	n, err := svc.CountItems(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	storetest.SeedItem(t, db, "A", 1, "1")
	storetest.SeedItem(t, db, "B", 1, "1")
	n, err = svc.CountItems(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestValidateLinesAndTotal(t *testing.T) {
	lines := []Line{
		{ItemID: 1, Qty: 3, Price: storetest.Dec("1.10")},
		{ItemID: 2, Qty: 2, Price: storetest.Dec("0")},
	}
	require.NoError(t, ValidateLines(lines))
	require.True(t, LinesTotal(lines).Equal(storetest.Dec("3.3")))

	for _, bad := range []Line{
		{ItemID: 0, Qty: 1, Price: storetest.Dec("1")},
		{ItemID: 1, Qty: 0, Price: storetest.Dec("1")},
		{ItemID: 1, Qty: 1, Price: storetest.Dec("-1")},
		{ItemID: 1, Qty: 1, Price: storetest.Dec("1.005")},
	} {
		require.ErrorIs(t, ValidateLines([]Line{bad}), apperr.ErrValidation)
	}
}
