package models

import "time"

// Invoice is an immutable snapshot generated at most once per paid order.
// ItemsJSON freezes the line items as they were at generation time.
type Invoice struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Number           string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"number"`
	OrderID          string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"order_id"`
	CustomerID       string    `gorm:"type:varchar(64);not null;index" json:"customer_id"`
	CurrencyCode     string    `gorm:"type:varchar(3);not null" json:"currency_code"`
	AmountMinorUnits int64     `gorm:"not null" json:"amount_minor_units"`
	ItemsJSON        string    `gorm:"type:longtext;not null" json:"items_json"`
	GeneratedAt      time.Time `gorm:"autoCreateTime" json:"generated_at"`
}
