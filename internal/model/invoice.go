package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is the client-facing bill generated from a deal's approved quote.
// Amounts are whole yen.
type Invoice struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNo   string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_no"`
	DealID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"deal_id"`
	QuoteID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"quote_id"`
	ClientID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	TaxRuleID   *uuid.UUID      `gorm:"type:uuid;index" json:"tax_rule_id"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"tax_rate"`
	SubtotalJpy int64           `gorm:"not null" json:"subtotal_jpy"`
	TaxJpy      int64           `gorm:"not null;default:0" json:"tax_jpy"`
	TotalJpy    int64           `gorm:"not null" json:"total_jpy"`
	TotalUsd    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_usd"`
	IssuedBy    *uuid.UUID      `gorm:"type:uuid" json:"issued_by"`
	IssuedAt    time.Time       `gorm:"not null" json:"issued_at"`
	Note        string          `gorm:"type:text" json:"note"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
