package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceRecord is a historical factory price observation. Rows are write-once.
type PriceRecord struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	FactoryID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"factory_id"`
	Factory      *Partner        `gorm:"foreignKey:FactoryID" json:"factory,omitempty"`
	Category     string          `gorm:"type:varchar(100);not null;index:idx_price_records_product,priority:1" json:"category"`
	Material     string          `gorm:"type:varchar(100);not null;index:idx_price_records_product,priority:2" json:"material"`
	Size         string          `gorm:"type:varchar(100)" json:"size"`
	Printing     string          `gorm:"type:varchar(100)" json:"printing"`
	Quantity     int64           `gorm:"not null" json:"quantity"`
	UnitPriceUsd decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price_usd"`
	ShippingUsd  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"shipping_usd"`
	RecordedAt   time.Time       `gorm:"not null;index" json:"recorded_at"`
	Source       string          `gorm:"type:varchar(50)" json:"source"` // MANUAL, IMPORT
	CreatedBy    *uuid.UUID      `gorm:"type:uuid" json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (p *PriceRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
