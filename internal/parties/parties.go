// Package parties keeps the customers and suppliers of a store.
package parties

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"maktaba/m/domain"
	"maktaba/m/internal/apperr"
)

// Input carries the editable fields shared by customers and suppliers.
type Input struct {
	Name  string
	Phone string
	Note  string
}

// Service manages customers and suppliers of one store.
type Service struct {
	db *sqlx.DB
}

// NewService binds a Service to a store dataset.
func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// CreateCustomer adds a customer.
func (s *Service) CreateCustomer(ctx context.Context, input Input) (domain.Customer, error) {
	id, err := InsertCustomer(ctx, s.db, input)
	if err != nil {
		return domain.Customer{}, err
	}
	return domain.Customer{ID: id, Name: strings.TrimSpace(input.Name), Phone: strings.TrimSpace(input.Phone), Note: strings.TrimSpace(input.Note)}, nil
}

// CreateSupplier adds a supplier.
func (s *Service) CreateSupplier(ctx context.Context, input Input) (domain.Supplier, error) {
	name, phone, note, err := normalize(input)
	if err != nil {
		return domain.Supplier{}, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO suppliers (name, phone, note) VALUES (?, ?, ?)`, name, phone, note)
	if err != nil {
		return domain.Supplier{}, fmt.Errorf("parties: insert supplier: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Supplier{}, fmt.Errorf("parties: supplier id: %w", err)
	}
	return domain.Supplier{ID: id, Name: name, Phone: phone, Note: note}, nil
}

// ListCustomers returns customers ordered by name.
func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers := []domain.Customer{}
	if err := s.db.SelectContext(ctx, &customers, `SELECT id, name, phone, note FROM customers ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("parties: list customers: %w", err)
	}
	return customers, nil
}

// ListSuppliers returns suppliers ordered by name.
func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers := []domain.Supplier{}
	if err := s.db.SelectContext(ctx, &suppliers, `SELECT id, name, phone, note FROM suppliers ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("parties: list suppliers: %w", err)
	}
	return suppliers, nil
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	var c domain.Customer
	err := s.db.GetContext(ctx, &c, `SELECT id, name, phone, note FROM customers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, apperr.NotFound("customer", id)
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("parties: get customer: %w", err)
	}
	return c, nil
}

// GetSupplier loads one supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (domain.Supplier, error) {
	var sp domain.Supplier
	err := s.db.GetContext(ctx, &sp, `SELECT id, name, phone, note FROM suppliers WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Supplier{}, apperr.NotFound("supplier", id)
	}
	if err != nil {
		return domain.Supplier{}, fmt.Errorf("parties: get supplier: %w", err)
	}
	return sp, nil
}

// InsertCustomer adds a customer through ext, which may be a transaction.
// The sales engine uses it to create a walk-in customer inside the sale.
func InsertCustomer(ctx context.Context, ext sqlx.ExecerContext, input Input) (int64, error) {
	name, phone, note, err := normalize(input)
	if err != nil {
		return 0, err
	}
	res, err := ext.ExecContext(ctx, `INSERT INTO customers (name, phone, note) VALUES (?, ?, ?)`, name, phone, note)
	if err != nil {
		return 0, fmt.Errorf("parties: insert customer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("parties: customer id: %w", err)
	}
	return id, nil
}

// Exists reports whether a customer or supplier row with the id exists.
func Exists(ctx context.Context, q sqlx.QueryerContext, entity domain.EntityType, id int64) (bool, error) {
	var table string
	switch entity {
	case domain.EntityCustomer:
		table = "customers"
	case domain.EntitySupplier:
		table = "suppliers"
	default:
		return false, apperr.Invalid("entity_type", "must be customer or supplier")
	}
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = ?)`, id); err != nil {
		return false, fmt.Errorf("parties: lookup %s %d: %w", entity, id, err)
	}
	return exists, nil
}

func normalize(input Input) (name, phone, note string, err error) {
	name = strings.TrimSpace(input.Name)
	if name == "" {
		return "", "", "", apperr.Invalid("name", "is required")
	}
	return name, strings.TrimSpace(input.Phone), strings.TrimSpace(input.Note), nil
}
