package models

import "time"

// GatewayCustomer links a local customer to the identifier a payment gateway
// assigned to them. Saved payment methods live gateway-side; this row is the
// handle needed to list or detach them.
type GatewayCustomer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CustomerID         string    `gorm:"type:varchar(64);not null;index:ux_gateway_customers_gateway_customer,unique,priority:2" json:"customer_id"`
	Gateway            string    `gorm:"type:varchar(20);not null;index:ux_gateway_customers_gateway_customer,unique,priority:1" json:"gateway"`
	ProviderCustomerID string    `gorm:"type:varchar(191);not null;index" json:"provider_customer_id"`
	Email              string    `gorm:"type:varchar(255)" json:"email"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
