package models

import "time"

const (
	OrderStatusAwaitingPayment   = "awaiting_payment"
	OrderStatusProcessing        = "processing"
	OrderStatusPaid              = "paid"
	OrderStatusPaymentFailed     = "payment_failed"
	OrderStatusRefunded          = "refunded"
	OrderStatusPartiallyRefunded = "partially_refunded"
	OrderStatusCancelled         = "cancelled"
)

// Order is the ledger-owned business record. The Payment* columns embed the
// last-known transaction snapshot; Status is always derived from
// PaymentStatus, never written independently.
type Order struct {
	ID                   string `gorm:"type:varchar(64);primaryKey" json:"id"`
	CustomerID           string `gorm:"type:varchar(64);not null;index" json:"customer_id"`
	CustomerEmail        string `gorm:"type:varchar(255);not null" json:"customer_email"`
	CustomerName         string `gorm:"type:varchar(255)" json:"customer_name"`
	Status               string `gorm:"type:varchar(32);not null;default:'awaiting_payment';index" json:"status"`
	CurrencyCode         string `gorm:"type:varchar(3);not null" json:"currency_code"`
	TotalMinorUnits      int64  `gorm:"not null" json:"total_minor_units"`
	PaymentCorrelationID string `gorm:"type:varchar(64);not null;index" json:"payment_correlation_id"`

	PaymentTransactionID    string     `gorm:"type:varchar(191);index" json:"payment_transaction_id"`
	PaymentGateway          string     `gorm:"type:varchar(20)" json:"payment_gateway"`
	PaymentStatus           string     `gorm:"type:varchar(32)" json:"payment_status"`
	PaymentAmountMinorUnits int64      `json:"payment_amount_minor_units"`
	PaymentReference        string     `gorm:"type:varchar(64)" json:"payment_reference"`
	PaymentUpdatedAt        *time.Time `gorm:"type:timestamp;default:null" json:"payment_updated_at,omitempty"`

	// Version guards concurrent payment updates (compare-and-set).
	Version uint `gorm:"not null;default:1" json:"version"`

	InvoiceID *uint       `gorm:"default:null" json:"invoice_id,omitempty"`
	Items     []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Notes     []OrderNote `gorm:"foreignKey:OrderID" json:"notes,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ItemsTotal sums the line items in minor units.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.UnitPriceMinor * int64(item.Quantity)
	}
	return total
}

// IsPaid reports whether the order has a settled payment.
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// OrderItem is a purchased line item.
type OrderItem struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	OrderID        string `gorm:"type:varchar(64);not null;index" json:"order_id"`
	SKU            string `gorm:"type:varchar(64);not null" json:"sku"`
	Name           string `gorm:"type:varchar(255);not null" json:"name"`
	Quantity       int    `gorm:"not null;default:1" json:"quantity"`
	UnitPriceMinor int64  `gorm:"not null" json:"unit_price_minor"`
}

// OrderNote is an append-only annotation on an order. Notes are never
// updated or deleted.
type OrderNote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   string    `gorm:"type:varchar(64);not null;index" json:"order_id"`
	Author    string    `gorm:"type:varchar(64);not null;default:'system'" json:"author"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
