package domain

// Customer is someone the shop sells to. Sales and customer debts point at it.
type Customer struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Phone string `db:"phone" json:"phone"`
	Note  string `db:"note" json:"note,omitempty"`
}

// Supplier is someone the shop buys from.
type Supplier struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Phone string `db:"phone" json:"phone"`
	Note  string `db:"note" json:"note,omitempty"`
}
