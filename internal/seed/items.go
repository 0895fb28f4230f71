// Package seed imports an item catalog from CSV into a store.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"maktaba/m/internal/apperr"
	"maktaba/m/internal/database"
)

// Columns every catalog must carry. buy_price, sell_price and qty are
// optional and default to zero.
var requiredColumns = []string{"code", "name"}

// Result counts what an import did.
type Result struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// LoadItemsFile imports the catalog at path.
func LoadItemsFile(ctx context.Context, db *sqlx.DB, path string, log zerolog.Logger) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("seed: open %s: %w", path, err)
	}
	defer file.Close()
	return LoadItems(ctx, db, file, log)
}

// LoadItems ingests CSV rows into the items table in one transaction.
// Rows whose code already exists are left untouched; malformed rows are
// skipped and logged. A bad header is a validation error.
func LoadItems(ctx context.Context, db *sqlx.DB, r io.Reader, log zerolog.Logger) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Result{}, apperr.Invalid("header", "unreadable: %v", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return Result{}, apperr.Invalid("header", "missing column %q", name)
		}
	}

	var res Result
	err = database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `INSERT OR IGNORE INTO items (code, name, buy_price, sell_price, qty) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare item insert: %w", err)
		}
		defer stmt.Close()

		line := 1
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			line++
			if err != nil {
				log.Warn().Err(err).Int("line", line).Msg("unreadable row skipped")
				res.Skipped++
				continue
			}

			row, err := parseRow(record, cols)
			if err != nil {
				log.Warn().Err(err).Int("line", line).Msg("invalid row skipped")
				res.Skipped++
				continue
			}
			out, err := stmt.ExecContext(ctx, row.code, row.name, row.buy, row.sell, row.qty)
			if err != nil {
				return fmt.Errorf("insert item %s: %w", row.code, err)
			}
			if n, _ := out.RowsAffected(); n == 0 {
				res.Skipped++
				continue
			}
			res.Inserted++
		}
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed: %w", err)
	}
	log.Info().Int("inserted", res.Inserted).Int("skipped", res.Skipped).Msg("item catalog imported")
	return res, nil
}

type itemRow struct {
	code, name string
	buy, sell  decimal.Decimal
	qty        int64
}

func parseRow(record []string, cols map[string]int) (itemRow, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	row := itemRow{code: field("code"), name: field("name"), buy: decimal.Zero, sell: decimal.Zero}
	if row.code == "" || row.name == "" {
		return itemRow{}, errors.New("code and name are required")
	}
	var err error
	if row.buy, err = money(field("buy_price")); err != nil {
		return itemRow{}, fmt.Errorf("buy_price: %w", err)
	}
	if row.sell, err = money(field("sell_price")); err != nil {
		return itemRow{}, fmt.Errorf("sell_price: %w", err)
	}
	if s := field("qty"); s != "" {
		if row.qty, err = strconv.ParseInt(s, 10, 64); err != nil {
			return itemRow{}, fmt.Errorf("qty: %w", err)
		}
	}
	return row, nil
}

func money(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("must not be negative")
	}
	return d.Round(2), nil
}
