package domain

import "github.com/shopspring/decimal"

// EntityType says which side of the counter a debt sits on.
type EntityType string

const (
	// EntityCustomer debts are receivables: money owed to the shop.
	EntityCustomer EntityType = "customer"
	// EntitySupplier debts are payables: money the shop owes.
	EntitySupplier EntityType = "supplier"
)

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	return t == EntityCustomer || t == EntitySupplier
}

type DebtStatus string

const (
	DebtOpen DebtStatus = "open"
	DebtPaid DebtStatus = "paid"
)

type Debt struct {
	ID             int64           `db:"id" json:"id"`
	EntityType     EntityType      `db:"entity_type" json:"entity_type"`
	EntityID       int64           `db:"entity_id" json:"entity_id"`
	OriginalAmount decimal.Decimal `db:"original_amount" json:"original_amount"`
	PaidAmount     decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	DateCreated    string          `db:"date_created" json:"date_created"`
	DateUpdated    *string         `db:"date_updated" json:"date_updated,omitempty"`
	Notes          string          `db:"notes" json:"notes,omitempty"`
	Status         DebtStatus      `db:"status" json:"status"`
	Version        int64           `db:"version" json:"-"`
}

// Remaining is original_amount - paid_amount.
func (d Debt) Remaining() decimal.Decimal {
	return d.OriginalAmount.Sub(d.PaidAmount)
}

// StatusFor derives the status a debt must carry for the given paid amount.
func StatusFor(original, paid decimal.Decimal) DebtStatus {
	if paid.GreaterThanOrEqual(original) {
		return DebtPaid
	}
	return DebtOpen
}
