// Package debts keeps the receivables and payables of a store and applies
// partial payments against them.
package debts

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
	"maktaba/m/internal/parties"
)

// ErrStaleVersion is returned when a debt changed between the read and the
// update of a payment.
var ErrStaleVersion = errors.New("debt was modified concurrently")

type RecordInput struct {
	EntityType domain.EntityType
	EntityID   int64
	Amount     decimal.Decimal
	Notes      string
}

// PaymentResult is the state of a debt right after a payment.
type PaymentResult struct {
	DebtID     int64             `json:"debt_id"`
	PaidAmount decimal.Decimal   `json:"paid_amount"`
	Remaining  decimal.Decimal   `json:"remaining"`
	Status     domain.DebtStatus `json:"status"`
}

// OpenDebt is an open debt with the current name of its party.
type OpenDebt struct {
	domain.Debt
	EntityName *string         `db:"entity_name" json:"entity_name,omitempty"`
	Remaining  decimal.Decimal `db:"-" json:"remaining"`
}

// NetPosition sums what is still owed in both directions.
type NetPosition struct {
	Receivables decimal.Decimal `json:"receivables"`
	Payables    decimal.Decimal `json:"payables"`
	Net         decimal.Decimal `json:"net"`
}

type Ledger struct {
	db  *sqlx.DB
	log zerolog.Logger
	now func() time.Time
}

func NewLedger(db *sqlx.DB, log zerolog.Logger) *Ledger {
	return &Ledger{db: db, log: log.With().Str("component", "debts").Logger(), now: time.Now}
}

// RecordDebt opens a debt for an existing customer or supplier.
func (l *Ledger) RecordDebt(ctx context.Context, input RecordInput) (int64, error) {
	if !input.EntityType.Valid() {
		return 0, apperr.Invalid("entity_type", "must be customer or supplier")
	}
	if input.EntityID <= 0 {
		return 0, apperr.Invalid("entity_id", "is required")
	}
	amount := input.Amount
	if err := checkAmount(amount); err != nil {
		return 0, err
	}

	ok, err := parties.Exists(ctx, l.db, input.EntityType, input.EntityID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.NotFound(string(input.EntityType), input.EntityID)
	}

	res, err := l.db.ExecContext(ctx, `INSERT INTO debts (entity_type, entity_id, original_amount, paid_amount, date_created, notes, status)
                VALUES (?, ?, ?, 0, ?, ?, ?)`,
		input.EntityType, input.EntityID, amount, l.now().Format(domain.DateLayout), strings.TrimSpace(input.Notes), domain.DebtOpen)
	if err != nil {
		return 0, fmt.Errorf("debts: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("debts: id: %w", err)
	}
	l.log.Info().Int64("debt_id", id).Str("entity_type", string(input.EntityType)).Str("amount", amount.String()).Msg("debt recorded")
	return id, nil
}

// PayDebt applies a partial or full payment. The payment may not exceed what
// is left; once the paid amount reaches the original the debt is paid and
// stays paid.
func (l *Ledger) PayDebt(ctx context.Context, debtID int64, amount decimal.Decimal) (PaymentResult, error) {
	if err := checkAmount(amount); err != nil {
		return PaymentResult{}, err
	}

	var result PaymentResult
	err := database.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		debt, err := getDebt(ctx, tx, debtID)
		if err != nil {
			return err
		}
		result, err = l.applyPayment(ctx, tx, debt, amount)
		return err
	})
	if err != nil {
		err = apperr.Consistency("pay debt", err)
		if errors.Is(err, apperr.ErrConsistency) && !errors.Is(err, ErrStaleVersion) {
			l.log.Error().Err(err).Int64("debt_id", debtID).Msg("transaction rolled back")
		}
		return PaymentResult{}, err
	}
	l.log.Info().Int64("debt_id", debtID).Str("amount", amount.String()).Str("status", string(result.Status)).Msg("payment applied")
	return result, nil
}

// applyPayment writes a payment against debt as it was read. The update only
// lands if the stored version still matches.
func (l *Ledger) applyPayment(ctx context.Context, ext sqlx.ExecerContext, debt domain.Debt, amount decimal.Decimal) (PaymentResult, error) {
	remaining := debt.Remaining()
	if amount.GreaterThan(remaining) {
		return PaymentResult{}, &apperr.OverpaymentError{Remaining: remaining}
	}

	paid := debt.PaidAmount.Add(amount)
	status := domain.StatusFor(debt.OriginalAmount, paid)
	res, err := ext.ExecContext(ctx, `UPDATE debts SET paid_amount = ?, status = ?, date_updated = ?, version = version + 1
                WHERE id = ? AND version = ?`,
		paid, status, l.now().Format(domain.DateLayout), debt.ID, debt.Version)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("update debt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return PaymentResult{}, fmt.Errorf("update debt: %w", err)
	}
	if n == 0 {
		return PaymentResult{}, ErrStaleVersion
	}
	return PaymentResult{DebtID: debt.ID, PaidAmount: paid, Remaining: debt.OriginalAmount.Sub(paid), Status: status}, nil
}

// GetDebt loads one debt.
func (l *Ledger) GetDebt(ctx context.Context, debtID int64) (domain.Debt, error) {
	return getDebt(ctx, l.db, debtID)
}

// ListOpenDebts returns open debts with something left to pay, oldest first.
// An empty entityType lists both sides.
func (l *Ledger) ListOpenDebts(ctx context.Context, entityType domain.EntityType) ([]OpenDebt, error) {
	query := `SELECT d.id, d.entity_type, d.entity_id, d.original_amount, d.paid_amount, d.date_created,
                        d.date_updated, d.notes, d.status, d.version, COALESCE(c.name, sp.name) AS entity_name
                FROM debts d
                LEFT JOIN customers c ON d.entity_type = 'customer' AND c.id = d.entity_id
                LEFT JOIN suppliers sp ON d.entity_type = 'supplier' AND sp.id = d.entity_id
                WHERE d.status = 'open'`
	var args []any
	if entityType != "" {
		if !entityType.Valid() {
			return nil, apperr.Invalid("entity_type", "must be customer or supplier")
		}
		query += ` AND d.entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY d.date_created, d.id`

	var rows []OpenDebt
	if err := l.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("debts: list open: %w", err)
	}
	out := make([]OpenDebt, 0, len(rows))
	for _, d := range rows {
		d.Debt = rounded(d.Debt)
		d.Remaining = d.Debt.Remaining()
		if d.Remaining.IsPositive() {
			out = append(out, d)
		}
	}
	return out, nil
}

// NetPosition is receivables (customer debts) minus payables (supplier debts).
func (l *Ledger) NetPosition(ctx context.Context) (NetPosition, error) {
	var rows []domain.Debt
	if err := l.db.SelectContext(ctx, &rows, `SELECT id, entity_type, entity_id, original_amount, paid_amount, date_created,
                        date_updated, notes, status, version
                FROM debts WHERE status = 'open'`); err != nil {
		return NetPosition{}, fmt.Errorf("debts: net position: %w", err)
	}
	pos := NetPosition{Receivables: decimal.Zero, Payables: decimal.Zero}
	for _, d := range rows {
		remaining := rounded(d).Remaining()
		if !remaining.IsPositive() {
			continue
		}
		switch d.EntityType {
		case domain.EntityCustomer:
			pos.Receivables = pos.Receivables.Add(remaining)
		case domain.EntitySupplier:
			pos.Payables = pos.Payables.Add(remaining)
		}
	}
	pos.Net = pos.Receivables.Sub(pos.Payables)
	return pos, nil
}

func getDebt(ctx context.Context, q sqlx.QueryerContext, debtID int64) (domain.Debt, error) {
	var d domain.Debt
	err := sqlx.GetContext(ctx, q, &d, `SELECT id, entity_type, entity_id, original_amount, paid_amount, date_created,
                        date_updated, notes, status, version
                FROM debts WHERE id = ?`, debtID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Debt{}, apperr.NotFound("debt", debtID)
	}
	if err != nil {
		return domain.Debt{}, fmt.Errorf("load debt: %w", err)
	}
	return rounded(d), nil
}

// checkAmount accepts positive amounts in whole cents. Finer amounts are
// rejected, never rounded.
func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Invalid("amount", "must be positive")
	}
	if !domain.WholeCents(amount) {
		return apperr.Invalid("amount", "has more than two decimal places")
	}
	return nil
}

// rounded drops the float noise REAL columns may carry.
func rounded(d domain.Debt) domain.Debt {
	d.OriginalAmount = d.OriginalAmount.Round(2)
	d.PaidAmount = d.PaidAmount.Round(2)
	return d
}
