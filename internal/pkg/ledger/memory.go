package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/payflowhq/payflow/app/models"
	"gorm.io/gorm"
)

// memoryRepository is a thread-safe in-memory Repository with the same
// conflict and CAS semantics as the MySQL implementation. Used by tests and
// local development without a database.
type memoryRepository struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	notes     []models.OrderNote
	invoices  map[string]*models.Invoice
	events    map[string]*models.PaymentWebhookEvent
	customers map[string]*models.GatewayCustomer
	nextID    uint
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		orders:    map[string]*models.Order{},
		invoices:  map[string]*models.Invoice{},
		events:    map[string]*models.PaymentWebhookEvent{},
		customers: map[string]*models.GatewayCustomer{},
		nextID:    1,
	}
}

func (r *memoryRepository) CreateOrder(order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	if order.Version == 0 {
		order.Version = 1
	}
	cp := *order
	r.orders[order.ID] = &cp
	return nil
}

func (r *memoryRepository) GetOrder(id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *order
	cp.Items = append([]models.OrderItem(nil), order.Items...)
	for _, n := range r.notes {
		if n.OrderID == id {
			cp.Notes = append(cp.Notes, n)
		}
	}
	return &cp, nil
}

func (r *memoryRepository) UpdateOrderCAS(id string, version uint, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok || order.Version != version {
		return false, nil
	}
	for col, val := range updates {
		switch col {
		case "payment_transaction_id":
			order.PaymentTransactionID = val.(string)
		case "payment_gateway":
			order.PaymentGateway = val.(string)
		case "payment_status":
			order.PaymentStatus = val.(string)
		case "payment_amount_minor_units":
			order.PaymentAmountMinorUnits = val.(int64)
		case "payment_reference":
			order.PaymentReference = val.(string)
		case "payment_updated_at":
			order.PaymentUpdatedAt = val.(*time.Time)
		case "version":
			order.Version = val.(uint)
		case "status":
			order.Status = val.(string)
		}
	}
	order.UpdatedAt = time.Now()
	return true, nil
}

func (r *memoryRepository) AppendNote(note *models.OrderNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	note.ID = r.nextID
	r.nextID++
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	r.notes = append(r.notes, *note)
	return nil
}

func (r *memoryRepository) ListOrdersByCustomer(customerID string) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRepository) CreateInvoiceIfNotExists(invoice *models.Invoice) (bool, *models.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.invoices[invoice.OrderID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	invoice.ID = r.nextID
	r.nextID++
	if invoice.GeneratedAt.IsZero() {
		invoice.GeneratedAt = time.Now()
	}
	cp := *invoice
	r.invoices[invoice.OrderID] = &cp
	return true, invoice, nil
}

func (r *memoryRepository) SetOrderInvoice(orderID string, invoiceID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if order, ok := r.orders[orderID]; ok {
		order.InvoiceID = &invoiceID
	}
	return nil
}

func (r *memoryRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := event.Gateway + "/" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	event.ID = r.nextID
	r.nextID++
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	cp := *event
	r.events[key] = &cp
	return true, event, nil
}

func (r *memoryRepository) MarkWebhookProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, e := range r.events {
		if e.ID == id {
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

func (r *memoryRepository) GetGatewayCustomer(gateway, customerID string) (*models.GatewayCustomer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gc, ok := r.customers[gateway+"/"+customerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *gc
	return &cp, nil
}

func (r *memoryRepository) UpsertGatewayCustomer(gc *models.GatewayCustomer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := gc.Gateway + "/" + gc.CustomerID
	if existing, ok := r.customers[key]; ok {
		existing.ProviderCustomerID = gc.ProviderCustomerID
		existing.Email = gc.Email
		existing.UpdatedAt = time.Now()
		*gc = *existing
		return nil
	}
	gc.ID = r.nextID
	r.nextID++
	now := time.Now()
	gc.CreatedAt = now
	gc.UpdatedAt = now
	cp := *gc
	r.customers[key] = &cp
	return nil
}
