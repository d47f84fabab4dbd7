package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PartnerType enum constants
const (
	PartnerTypeClient  = "CLIENT"
	PartnerTypeFactory = "FACTORY"
)

// Partner is a client buying packaging or a factory producing it
type Partner struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Code          string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	Type          string         `gorm:"type:varchar(20);not null;index" json:"type"` // CLIENT, FACTORY
	Country       string         `gorm:"type:varchar(2)" json:"country"`
	CompanyName   string         `gorm:"type:varchar(255)" json:"company_name"`
	TaxCode       string         `gorm:"type:varchar(50)" json:"tax_code"`
	BankAccount   string         `gorm:"type:varchar(100)" json:"bank_account"`
	ContactPerson string         `gorm:"type:varchar(255)" json:"contact_person"`
	Phone         string         `gorm:"type:varchar(50)" json:"phone"`
	Email         string         `gorm:"type:varchar(255)" json:"email"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Partner) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
