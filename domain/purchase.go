package domain

import "github.com/shopspring/decimal"

type Purchase struct {
	ID         int64           `db:"id" json:"id"`
	SupplierID *int64          `db:"supplier_id" json:"supplier_id,omitempty"`
	Date       string          `db:"date" json:"date"`
	Total      decimal.Decimal `db:"total" json:"total"`
}

type PurchaseItem struct {
	ID         int64           `db:"id" json:"id"`
	PurchaseID int64           `db:"purchase_id" json:"purchase_id"`
	ItemID     int64           `db:"item_id" json:"item_id"`
	Qty        int64           `db:"qty" json:"qty"`
	Price      decimal.Decimal `db:"price" json:"price"`
}
