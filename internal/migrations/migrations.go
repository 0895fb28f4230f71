package migrations

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// RunRegistry creates the schema of the registry database: accounts, stores
// and the permissions that tie them together.
func RunRegistry(db *sqlx.DB) error {
	return run(db, []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            created_at TEXT NOT NULL DEFAULT (datetime('now'))
        );`,
		`CREATE TABLE IF NOT EXISTS stores (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            owner_id INTEGER NOT NULL,
            dataset TEXT NOT NULL UNIQUE,
            created_at TEXT NOT NULL DEFAULT (datetime('now'))
        );`,
		`CREATE TABLE IF NOT EXISTS store_permissions (
            store_id INTEGER NOT NULL,
            user_id INTEGER NOT NULL,
            level INTEGER NOT NULL,
            PRIMARY KEY (store_id, user_id)
        );`,
	})
}

// RunStore creates the schema of one store dataset. Item codes are unique
// within the dataset only.
func RunStore(db *sqlx.DB) error {
	return run(db, []string{
		`CREATE TABLE IF NOT EXISTS items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL,
            buy_price REAL NOT NULL DEFAULT 0,
            sell_price REAL NOT NULL DEFAULT 0,
            qty INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS customers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            note TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS suppliers (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            note TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS sales (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            customer_id INTEGER,
            date TEXT NOT NULL,
            total REAL NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS sale_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            sale_id INTEGER NOT NULL,
            item_id INTEGER NOT NULL,
            qty INTEGER NOT NULL,
            price REAL NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id);`,
		`CREATE TABLE IF NOT EXISTS purchases (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            supplier_id INTEGER,
            date TEXT NOT NULL,
            total REAL NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS purchase_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            purchase_id INTEGER NOT NULL,
            item_id INTEGER NOT NULL,
            qty INTEGER NOT NULL,
            price REAL NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase ON purchase_items(purchase_id);`,
		`CREATE TABLE IF NOT EXISTS debts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            entity_type TEXT NOT NULL CHECK (entity_type IN ('customer', 'supplier')),
            entity_id INTEGER NOT NULL,
            original_amount REAL NOT NULL CHECK (original_amount > 0),
            paid_amount REAL NOT NULL DEFAULT 0,
            date_created TEXT NOT NULL,
            date_updated TEXT,
            notes TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'paid')),
            version INTEGER NOT NULL DEFAULT 0,
            CHECK (paid_amount >= 0 AND paid_amount <= original_amount)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_debts_open ON debts(entity_type, status);`,
	})
}

func run(db *sqlx.DB, schema []string) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
