package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dealdesk/internal/lifecycle"
)

// Deal is one client-factory transaction tracked from inquiry to delivery.
// Status only changes through lifecycle actions; Version guards concurrent writes.
type Deal struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Code       string           `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	Title      string           `gorm:"type:varchar(255)" json:"title"`
	ClientID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"client_id"`
	Client     *Partner         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Category   string           `gorm:"type:varchar(100);not null" json:"category"`
	Material   string           `gorm:"type:varchar(100);not null" json:"material"`
	Size       string           `gorm:"type:varchar(100)" json:"size"`
	Printing   string           `gorm:"type:varchar(100)" json:"printing"`
	Quantity   int64            `gorm:"not null" json:"quantity"`
	Notes      string           `gorm:"type:text" json:"notes"`
	Status     lifecycle.Status `gorm:"type:varchar(3);not null;index" json:"status"`
	Version    int64            `gorm:"not null;default:1" json:"version"`
	RepeatOfID *uuid.UUID       `gorm:"type:uuid;index" json:"repeat_of_id,omitempty"`
	CreatedBy  *uuid.UUID       `gorm:"type:uuid" json:"created_by"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (d *Deal) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// FactoryAssignment status enum constants
const (
	AssignmentCandidate = "candidate"
	AssignmentRequested = "requested"
	AssignmentQuoted    = "quoted"
	AssignmentSelected  = "selected"
	AssignmentDeclined  = "declined"
)

// FactoryAssignment binds a deal to a candidate or selected factory
type FactoryAssignment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DealID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_deal_factory" json:"deal_id"`
	FactoryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_deal_factory" json:"factory_id"`
	Factory   *Partner  `gorm:"foreignKey:FactoryID" json:"factory,omitempty"`
	Status    string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *FactoryAssignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Payment direction / kind / status enum constants
const (
	PaymentInbound  = "IN"
	PaymentOutbound = "OUT"

	PaymentKindClient         = "CLIENT_PAYMENT"
	PaymentKindFactoryAdvance = "FACTORY_ADVANCE"
	PaymentKindFactoryBalance = "FACTORY_BALANCE"

	PaymentRecorded  = "RECORDED"
	PaymentConfirmed = "CONFIRMED"
)

// Payment is money received from the client or sent to the factory. One row
// per deal and kind, so a transition slot can never record two advances.
type Payment struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DealID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_payment_deal_kind" json:"deal_id"`
	Kind        string          `gorm:"type:varchar(30);not null;uniqueIndex:idx_payment_deal_kind" json:"kind"`
	Direction   string          `gorm:"type:varchar(3);not null" json:"direction"`
	PartnerID   *uuid.UUID      `gorm:"type:uuid;index" json:"partner_id"`
	AmountUsd   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount_usd"`
	AmountJpy   int64           `gorm:"not null;default:0" json:"amount_jpy"`
	Status      string          `gorm:"type:varchar(20);not null" json:"status"`
	RecordedBy  *uuid.UUID      `gorm:"type:uuid" json:"recorded_by"`
	ConfirmedAt *time.Time      `json:"confirmed_at"`
	Note        string          `gorm:"type:text" json:"note"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ShippingRecord tracks the physical shipment of a deal
type ShippingRecord struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DealID           uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"deal_id"`
	Carrier          string     `gorm:"type:varchar(100)" json:"carrier"`
	TrackingNumber   string     `gorm:"type:varchar(100)" json:"tracking_number"`
	ArrangedAt       time.Time  `json:"arranged_at"`
	ShippedAt        *time.Time `json:"shipped_at"`
	CustomsClearedAt *time.Time `json:"customs_cleared_at"`
	ArrivedAt        *time.Time `json:"arrived_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (s *ShippingRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
