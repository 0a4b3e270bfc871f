package ledger

import (
	"time"

	"github.com/payflowhq/payflow/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the DB operations used by the order ledger.
type Repository interface {
	CreateOrder(order *models.Order) error
	GetOrder(id string) (*models.Order, error)
	// UpdateOrderCAS applies updates only when the stored row still has the
	// given version. Reports whether the write happened.
	UpdateOrderCAS(id string, version uint, updates map[string]interface{}) (bool, error)
	AppendNote(note *models.OrderNote) error
	ListOrdersByCustomer(customerID string) ([]models.Order, error)
	CreateInvoiceIfNotExists(invoice *models.Invoice) (bool, *models.Invoice, error)
	SetOrderInvoice(orderID string, invoiceID uint) error
	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	GetGatewayCustomer(gateway, customerID string) (*models.GatewayCustomer, error)
	UpsertGatewayCustomer(gc *models.GatewayCustomer) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateOrder(order *models.Order) error {
	return r.db.Create(order).Error
}

func (r *gormRepository) GetOrder(id string) (*models.Order, error) {
	var order models.Order
	err := r.db.Preload("Items").Preload("Notes").Where("id = ?", id).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) UpdateOrderCAS(id string, version uint, updates map[string]interface{}) (bool, error) {
	tx := r.db.Model(&models.Order{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) AppendNote(note *models.OrderNote) error {
	return r.db.Create(note).Error
}

func (r *gormRepository) ListOrdersByCustomer(customerID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (r *gormRepository) CreateInvoiceIfNotExists(invoice *models.Invoice) (bool, *models.Invoice, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(invoice)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Invoice
	if err := r.db.Where("order_id = ?", invoice.OrderID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) SetOrderInvoice(orderID string, invoiceID uint) error {
	return r.db.Model(&models.Order{}).Where("id = ?", orderID).
		Update("invoice_id", invoiceID).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "gateway"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentWebhookEvent
	if err := r.db.Where("gateway = ? AND provider_event_id = ?", event.Gateway, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetGatewayCustomer(gateway, customerID string) (*models.GatewayCustomer, error) {
	var gc models.GatewayCustomer
	err := r.db.Where("gateway = ? AND customer_id = ?", gateway, customerID).First(&gc).Error
	if err != nil {
		return nil, err
	}
	return &gc, nil
}

func (r *gormRepository) UpsertGatewayCustomer(gc *models.GatewayCustomer) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "gateway"},
			{Name: "customer_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_customer_id",
			"email",
			"updated_at",
		}),
	}).Create(gc).Error; err != nil {
		return err
	}

	return r.db.Where("gateway = ? AND customer_id = ?", gc.Gateway, gc.CustomerID).
		First(gc).Error
}
