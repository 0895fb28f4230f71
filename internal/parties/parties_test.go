package parties

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"maktaba/m/domain"
	"maktaba/m/internal/apperr"
	"maktaba/m/internal/storetest"
)

func TestCustomersAndSuppliers(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db)
	ctx := context.Background()

	zed, err := svc.CreateCustomer(ctx, Input{Name: " Zed ", Phone: "0555"})
	require.NoError(t, err)
	require.Equal(t, "Zed", zed.Name)
	_, err = svc.CreateCustomer(ctx, Input{Name: "Amina"})
	require.NoError(t, err)

	customers, err := svc.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 2)
	require.Equal(t, "Amina", customers[0].Name)

	got, err := svc.GetCustomer(ctx, zed.ID)
	require.NoError(t, err)
	require.Equal(t, "0555", got.Phone)

	sup, err := svc.CreateSupplier(ctx, Input{Name: "Paper Co", Note: "weekly"})
	require.NoError(t, err)
	suppliers, err := svc.ListSuppliers(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Supplier{sup}, suppliers)

	_, err = svc.GetSupplier(ctx, sup.ID+1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.CreateSupplier(ctx, Input{Name: "  "})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestExists(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()

	id, err := InsertCustomer(ctx, db, Input{Name: "Walk-in"})
	require.NoError(t, err)

	ok, err := Exists(ctx, db, domain.EntityCustomer, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Exists(ctx, db, domain.EntitySupplier, id)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = Exists(ctx, db, domain.EntityType("bank"), id)
	require.ErrorIs(t, err, apperr.ErrValidation)
}
