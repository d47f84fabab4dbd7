package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealdesk/internal/model"
	"dealdesk/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// --- DTOs ---

type InvoiceResponse struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceNo   string          `json:"invoice_no"`
	DealID      uuid.UUID       `json:"deal_id"`
	QuoteID     uuid.UUID       `json:"quote_id"`
	ClientID    uuid.UUID       `json:"client_id"`
	TaxRuleID   *uuid.UUID      `json:"tax_rule_id"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	SubtotalJpy int64           `json:"subtotal_jpy"`
	TaxJpy      int64           `json:"tax_jpy"`
	TotalJpy    int64           `json:"total_jpy"`
	TotalUsd    decimal.Decimal `json:"total_usd"`
	IssuedAt    time.Time       `json:"issued_at"`
	Note        string          `json:"note"`
}

type PaymentResponse struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Direction   string          `json:"direction"`
	PartnerID   *uuid.UUID      `json:"partner_id"`
	AmountUsd   decimal.Decimal `json:"amount_usd"`
	AmountJpy   int64           `json:"amount_jpy"`
	Status      string          `json:"status"`
	ConfirmedAt *time.Time      `json:"confirmed_at"`
	Note        string          `json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SettlementResponse is the money and logistics trail a deal accumulates after approval.
// Invoice and Shipping are nil until the matching transitions have run.
type SettlementResponse struct {
	DealID            uuid.UUID             `json:"deal_id"`
	Invoice           *InvoiceResponse      `json:"invoice"`
	Payments          []PaymentResponse     `json:"payments"`
	Shipping          *model.ShippingRecord `json:"shipping"`
	FactoryPaidUsd    decimal.Decimal       `json:"factory_paid_usd"`
	ClientReceivedJpy int64                 `json:"client_received_jpy"`
}

// --- Interface ---

type InvoiceService interface {
	ListInvoices(ctx context.Context, page, limit int) ([]InvoiceResponse, int64, error)
	Settlement(ctx context.Context, dealID string) (SettlementResponse, error)
}

type invoiceService struct {
	deals    repository.DealRepository
	invoices repository.InvoiceRepository
	payments repository.PaymentRepository
	shipping repository.ShippingRepository
}

func NewInvoiceService(deals repository.DealRepository, invoices repository.InvoiceRepository,
	payments repository.PaymentRepository, shipping repository.ShippingRepository) InvoiceService {
	return &invoiceService{deals: deals, invoices: invoices, payments: payments, shipping: shipping}
}

// --- Implementation ---

func (s *invoiceService) ListInvoices(ctx context.Context, page, limit int) ([]InvoiceResponse, int64, error) {
	invoices, total, err := s.invoices.List(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch invoices: %w", err)
	}
	res := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		res = append(res, toInvoiceResponse(inv))
	}
	return res, total, nil
}

func (s *invoiceService) Settlement(ctx context.Context, dealID string) (SettlementResponse, error) {
	id, err := parseID("id", dealID)
	if err != nil {
		return SettlementResponse{}, err
	}
	if _, err := s.deals.FindByID(ctx, id); err != nil {
		return SettlementResponse{}, notFound(err, "deal")
	}

	out := SettlementResponse{DealID: id, Payments: []PaymentResponse{}, FactoryPaidUsd: decimal.Zero}

	inv, err := s.invoices.FindByDeal(ctx, id)
	switch {
	case err == nil:
		r := toInvoiceResponse(*inv)
		out.Invoice = &r
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return SettlementResponse{}, fmt.Errorf("failed to fetch invoice: %w", err)
	}

	payments, err := s.payments.ListByDeal(ctx, id)
	if err != nil {
		return SettlementResponse{}, fmt.Errorf("failed to fetch payments: %w", err)
	}
	for _, p := range payments {
		out.Payments = append(out.Payments, toPaymentResponse(p))
		if p.Status != model.PaymentConfirmed {
			continue
		}
		if p.Direction == model.PaymentOutbound {
			out.FactoryPaidUsd = out.FactoryPaidUsd.Add(p.AmountUsd)
		} else {
			out.ClientReceivedJpy += p.AmountJpy
		}
	}

	rec, err := s.shipping.FindByDeal(ctx, id)
	switch {
	case err == nil:
		out.Shipping = rec
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return SettlementResponse{}, fmt.Errorf("failed to fetch shipping record: %w", err)
	}
	return out, nil
}

func toInvoiceResponse(i model.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:          i.ID,
		InvoiceNo:   i.InvoiceNo,
		DealID:      i.DealID,
		QuoteID:     i.QuoteID,
		ClientID:    i.ClientID,
		TaxRuleID:   i.TaxRuleID,
		TaxRate:     i.TaxRate,
		SubtotalJpy: i.SubtotalJpy,
		TaxJpy:      i.TaxJpy,
		TotalJpy:    i.TotalJpy,
		TotalUsd:    i.TotalUsd,
		IssuedAt:    i.IssuedAt,
		Note:        i.Note,
	}
}

func toPaymentResponse(p model.Payment) PaymentResponse {
	return PaymentResponse{
		ID:          p.ID,
		Kind:        p.Kind,
		Direction:   p.Direction,
		PartnerID:   p.PartnerID,
		AmountUsd:   p.AmountUsd,
		AmountJpy:   p.AmountJpy,
		Status:      p.Status,
		ConfirmedAt: p.ConfirmedAt,
		Note:        p.Note,
		CreatedAt:   p.CreatedAt,
	}
}
