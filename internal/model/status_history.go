package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrAppendOnly is returned when something tries to edit or delete history.
var ErrAppendOnly = errors.New("status history is append-only")

// StatusHistory is one row of a deal's audit trail. FromStatus is nil only
// for the row written when the deal is created.
type StatusHistory struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DealID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_status_history_deal_seq,priority:1" json:"deal_id"`
	Seq        int64      `gorm:"not null;index:idx_status_history_deal_seq,priority:2" json:"seq"`
	FromStatus *string    `gorm:"type:varchar(3)" json:"from_status"`
	ToStatus   string     `gorm:"type:varchar(3);not null" json:"to_status"`
	Action     string     `gorm:"type:varchar(50)" json:"action"`
	ChangedBy  *uuid.UUID `gorm:"type:uuid" json:"changed_by"`
	ChangedAt  time.Time  `gorm:"not null" json:"changed_at"`
	Note       string     `gorm:"type:text" json:"note"`
}

func (StatusHistory) TableName() string { return "status_history" }

func (h *StatusHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

func (h *StatusHistory) BeforeUpdate(tx *gorm.DB) error { return ErrAppendOnly }

func (h *StatusHistory) BeforeDelete(tx *gorm.DB) error { return ErrAppendOnly }
