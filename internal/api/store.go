package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"maktaba/m/domain"
	"maktaba/m/internal/debts"
	"maktaba/m/internal/inventory"
	"maktaba/m/internal/parties"
	"maktaba/m/internal/purchases"
	"maktaba/m/internal/sales"
	"maktaba/m/internal/seed"
	"maktaba/m/internal/stats"
)

// mountStoreRoutes registers the routes that act on one store's dataset.
// Reads need viewer, writes editor, item deletion manager.
func (h *Handler) mountStoreRoutes(r chi.Router) {
	r.Group(func(vr chi.Router) {
		vr.Use(h.requireStore(domain.PermissionViewer))
		vr.Get("/items", h.listItems)
		vr.Get("/items/{id}", h.getItem)
		vr.Get("/customers", h.listCustomers)
		vr.Get("/suppliers", h.listSuppliers)
		vr.Get("/sales", h.listSales)
		vr.Get("/sales/{id}", h.getInvoice)
		vr.Get("/purchases", h.listPurchases)
		vr.Get("/purchases/{id}", h.getPurchase)
		vr.Get("/debts", h.listOpenDebts)
		vr.Get("/debts/net", h.netPosition)
		vr.Get("/debts/{id}", h.getDebt)
		vr.Get("/stats", h.report)
		vr.Get("/dashboard", h.dashboard)
	})

	r.Group(func(er chi.Router) {
		er.Use(h.requireStore(domain.PermissionEditor))
		er.Post("/items", h.createItem)
		er.Post("/items/import", h.importItems)
		er.Put("/items/{id}", h.updateItem)
		er.Post("/customers", h.createCustomer)
		er.Post("/suppliers", h.createSupplier)
		er.Post("/sales", h.createSale)
		er.Put("/sales/{id}", h.editSale)
		er.Delete("/sales/{id}", h.deleteSale)
		er.Post("/purchases", h.createPurchase)
		er.Post("/debts", h.recordDebt)
		er.Post("/debts/{id}/payments", h.payDebt)
	})

	r.Group(func(mr chi.Router) {
		mr.Use(h.requireStore(domain.PermissionManager))
		mr.Delete("/items/{id}", h.deleteItem)
	})
}

// Items

type itemRequest struct {
	Code      string          `json:"code" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Qty       int64           `json:"qty"`
}

func (req itemRequest) input() inventory.ItemInput {
	return inventory.ItemInput{Code: req.Code, Name: req.Name, BuyPrice: req.BuyPrice, SellPrice: req.SellPrice, Qty: req.Qty}
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := inventory.NewService(storeFrom(r).DB()).ListItems(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	item, err := inventory.NewService(storeFrom(r).DB()).GetItem(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	item, err := inventory.NewService(storeFrom(r).DB()).CreateItem(r.Context(), req.input())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req itemRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	item, err := inventory.NewService(storeFrom(r).DB()).UpdateItem(r.Context(), id, req.input())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	res, err := inventory.NewService(storeFrom(r).DB()).DeleteItem(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// importItems reads a CSV catalog from the request body.
func (h *Handler) importItems(w http.ResponseWriter, r *http.Request) {
	res, err := seed.LoadItems(r.Context(), storeFrom(r).DB(), r.Body, h.log)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Customers and suppliers

type partyRequest struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone"`
	Note  string `json:"note"`
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := parties.NewService(storeFrom(r).DB()).ListCustomers(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	c, err := parties.NewService(storeFrom(r).DB()).CreateCustomer(r.Context(), parties.Input(req))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := parties.NewService(storeFrom(r).DB()).ListSuppliers(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, suppliers)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	s, err := parties.NewService(storeFrom(r).DB()).CreateSupplier(r.Context(), parties.Input(req))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

// Sales

// customerRef is the customer selector of a cart: empty or null for a
// walk-in sale, "new" to create the customer named in the request, or an id.
type customerRef struct {
	ID  *int64
	New bool
}

func (c *customerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = customerRef{}
		return nil
	}
	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		raw = string(data)
	}
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		*c = customerRef{}
	case strings.EqualFold(raw, "new"):
		*c = customerRef{New: true}
	default:
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errors.New(`customer_id must be empty, "new" or an id`)
		}
		*c = customerRef{ID: &id}
	}
	return nil
}

type lineRequest struct {
	ItemID int64            `json:"item_id" validate:"required,gt=0"`
	Qty    int64            `json:"qty" validate:"gt=0"`
	Price  *decimal.Decimal `json:"price" validate:"required"`
}

type createSaleRequest struct {
	CustomerID   customerRef   `json:"customer_id"`
	CustomerName string        `json:"customer_name"`
	Lines        []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type editSaleRequest struct {
	CustomerID customerRef   `json:"customer_id"`
	Date       string        `json:"date"`
	Lines      []lineRequest `json:"lines" validate:"dive"`
}

func cartLines(in []lineRequest) []inventory.Line {
	out := make([]inventory.Line, len(in))
	for i, l := range in {
		out[i] = inventory.Line{ItemID: l.ItemID, Qty: l.Qty, Price: *l.Price}
	}
	return out
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	svc := sales.NewService(storeFrom(r).DB(), h.log)
	saleID, err := svc.CreateSale(r.Context(), sales.CreateInput{
		CustomerID:      req.CustomerID.ID,
		NewCustomer:     req.CustomerID.New,
		NewCustomerName: req.CustomerName,
		Lines:           cartLines(req.Lines),
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	inv, err := svc.GetInvoice(r.Context(), saleID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

func (h *Handler) editSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req editSaleRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	svc := sales.NewService(storeFrom(r).DB(), h.log)
	if err := svc.EditSale(r.Context(), id, sales.EditInput{
		CustomerID: req.CustomerID.ID,
		Date:       req.Date,
		Lines:      cartLines(req.Lines),
	}); err != nil {
		h.respondErr(w, r, err)
		return
	}
	inv, err := svc.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := sales.NewService(storeFrom(r).DB(), h.log).DeleteSale(r.Context(), id); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	inv, err := sales.NewService(storeFrom(r).DB(), h.log).GetInvoice(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	list, err := sales.NewService(storeFrom(r).DB(), h.log).ListInvoices(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Purchases

type purchaseRequest struct {
	SupplierID *int64        `json:"supplier_id" validate:"omitempty,gt=0"`
	Lines      []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	svc := purchases.NewService(storeFrom(r).DB(), h.log)
	id, err := svc.CreatePurchase(r.Context(), purchases.CreateInput{SupplierID: req.SupplierID, Lines: cartLines(req.Lines)})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	detail, err := svc.GetPurchase(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, detail)
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	detail, err := purchases.NewService(storeFrom(r).DB(), h.log).GetPurchase(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	list, err := purchases.NewService(storeFrom(r).DB(), h.log).ListPurchases(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// Debts

type debtRequest struct {
	EntityType domain.EntityType `json:"entity_type" validate:"required,oneof=customer supplier"`
	EntityID   int64             `json:"entity_id" validate:"required,gt=0"`
	Amount     decimal.Decimal   `json:"amount"`
	Notes      string            `json:"notes"`
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) recordDebt(w http.ResponseWriter, r *http.Request) {
	var req debtRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	ledger := debts.NewLedger(storeFrom(r).DB(), h.log)
	id, err := ledger.RecordDebt(r.Context(), debts.RecordInput{
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		Amount:     req.Amount,
		Notes:      req.Notes,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	debt, err := ledger.GetDebt(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, debt)
}

func (h *Handler) payDebt(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	var req paymentRequest
	if !h.decodeValid(w, r, &req) {
		return
	}
	res, err := debts.NewLedger(storeFrom(r).DB(), h.log).PayDebt(r.Context(), id, req.Amount)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (h *Handler) getDebt(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	debt, err := debts.NewLedger(storeFrom(r).DB(), h.log).GetDebt(r.Context(), id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, debt)
}

func (h *Handler) listOpenDebts(w http.ResponseWriter, r *http.Request) {
	entity := domain.EntityType(r.URL.Query().Get("entity_type"))
	list, err := debts.NewLedger(storeFrom(r).DB(), h.log).ListOpenDebts(r.Context(), entity)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) netPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := debts.NewLedger(storeFrom(r).DB(), h.log).NetPosition(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pos)
}

// Reports

func (h *Handler) statsService(r *http.Request) *stats.Service {
	db := storeFrom(r).DB()
	return stats.NewService(db, debts.NewLedger(db, h.log))
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.statsService(r).Report(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.statsService(r).Dashboard(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}
