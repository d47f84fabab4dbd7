package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TaxType enum constants
const (
	TaxTypeConsumption = "CONSUMPTION"
)

// TaxRule stores tax rates with temporal validity
type TaxRule struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TaxType       string          `gorm:"type:varchar(20);not null;index" json:"tax_type"`
	Rate          decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"rate"`        // percent, 10 = 10%
	EffectiveFrom time.Time       `gorm:"type:date;not null;index" json:"effective_from"` // Start date
	EffectiveTo   *time.Time      `gorm:"type:date;index" json:"effective_to"`            // End date, nullable = currently active
	Description   string          `gorm:"type:text" json:"description"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (t *TaxRule) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
