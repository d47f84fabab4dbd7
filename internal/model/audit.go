package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateDeal        = "CREATE_DEAL"
	ActionDealTransition    = "DEAL_TRANSITION"
	ActionAssignFactory     = "ASSIGN_FACTORY"
	ActionCreateQuote       = "CREATE_QUOTE"
	ActionUpdateQuote       = "UPDATE_QUOTE"
	ActionCreatePartner     = "CREATE_PARTNER"
	ActionUpdatePartner     = "UPDATE_PARTNER"
	ActionDeletePartner     = "DELETE_PARTNER"
	ActionCreatePriceRecord = "CREATE_PRICE_RECORD"
	ActionImportPrices      = "IMPORT_PRICE_RECORDS"
	ActionCreateTaxRule     = "CREATE_TAX_RULE"
	ActionUpdateTaxRule     = "UPDATE_TAX_RULE"
	ActionDeleteTaxRule     = "DELETE_TAX_RULE"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // Nullable for automated jobs
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"` // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
