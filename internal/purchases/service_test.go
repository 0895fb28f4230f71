package purchases

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"maktaba/m/internal/apperr"
	"maktaba/m/internal/storetest"
)

func TestCreatePurchaseAddsStock(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, zerolog.Nop())
	ctx := context.Background()
	a := storetest.SeedItem(t, db, "A", 2, "5")
	b := storetest.SeedItem(t, db, "B", 0, "3")

	id, err := svc.CreatePurchase(ctx, CreateInput{Lines: []Line{
		{ItemID: a, Qty: 10, Price: storetest.Dec("3.5")},
		{ItemID: b, Qty: 4, Price: storetest.Dec("1.25")},
	}})
	require.NoError(t, err)
	require.EqualValues(t, 12, storetest.Qty(t, db, a))
	require.EqualValues(t, 4, storetest.Qty(t, db, b))

	d, err := svc.GetPurchase(ctx, id)
	require.NoError(t, err)
	require.True(t, d.Total.Equal(storetest.Dec("40")), d.Total.String())
	require.Len(t, d.Lines, 2)
	require.Equal(t, "A", *d.Lines[0].ItemCode)
	require.Nil(t, d.SupplierName)
}

func TestCreatePurchaseWithSupplier(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, zerolog.Nop())
	ctx := context.Background()
	a := storetest.SeedItem(t, db, "A", 0, "5")
	res, err := db.Exec(`INSERT INTO suppliers (name) VALUES ('Acme')`)
	require.NoError(t, err)
	supplierID, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = svc.CreatePurchase(ctx, CreateInput{SupplierID: &supplierID, Lines: []Line{{ItemID: a, Qty: 1, Price: storetest.Dec("2")}}})
	require.NoError(t, err)

	list, err := svc.ListPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Acme", *list[0].SupplierName)

	missing := supplierID + 1
	_, err = svc.CreatePurchase(ctx, CreateInput{SupplierID: &missing, Lines: []Line{{ItemID: a, Qty: 1, Price: storetest.Dec("2")}}})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.EqualValues(t, 1, storetest.Qty(t, db, a))
}

func TestCreatePurchaseRejectsBadInput(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, zerolog.Nop())
	ctx := context.Background()
	a := storetest.SeedItem(t, db, "A", 5, "5")

	_, err := svc.CreatePurchase(ctx, CreateInput{})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreatePurchase(ctx, CreateInput{Lines: []Line{{ItemID: a, Qty: -1, Price: storetest.Dec("1")}}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreatePurchase(ctx, CreateInput{Lines: []Line{{ItemID: a, Qty: 2, Price: storetest.Dec("0.005")}}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreatePurchase(ctx, CreateInput{Lines: []Line{
		{ItemID: a, Qty: 3, Price: storetest.Dec("1")},
		{ItemID: a + 9, Qty: 1, Price: storetest.Dec("1")},
	}})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.EqualValues(t, 5, storetest.Qty(t, db, a))

	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM purchases`))
	require.Zero(t, n)

	_, err = svc.GetPurchase(ctx, 77)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
