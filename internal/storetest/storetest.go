// Package storetest opens throwaway store datasets for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"maktaba/m/internal/database"
	"maktaba/m/internal/migrations"
)

// Open returns a migrated store dataset living under t.TempDir().
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Connect(database.FileDSN(filepath.Join(t.TempDir(), "store.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.RunStore(db))
	return db
}

// SeedItem inserts an item and returns its id.
func SeedItem(t testing.TB, db *sqlx.DB, code string, qty int64, sellPrice string) int64 {
	t.Helper()
	res, err := db.ExecContext(context.Background(), `INSERT INTO items (code, name, buy_price, sell_price, qty) VALUES (?, ?, 0, ?, ?)`,
		code, "Item "+code, decimal.RequireFromString(sellPrice), qty)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// Qty reads the stored quantity of an item.
func Qty(t testing.TB, db *sqlx.DB, itemID int64) int64 {
	t.Helper()
	var qty int64
	require.NoError(t, db.Get(&qty, `SELECT qty FROM items WHERE id = ?`, itemID))
	return qty
}

// Dec parses a decimal literal.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
