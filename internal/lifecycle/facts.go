package lifecycle

import "github.com/shopspring/decimal"

// Fact is a business condition a transition requires before it may fire.
type Fact string

const (
	FactFactoryAssigned   Fact = "factory_assigned"
	FactEstimateSupplied  Fact = "estimate_supplied"
	FactDraftQuote        Fact = "draft_quote_exists"
	FactQuoteExists       Fact = "quote_exists"
	FactPresentedQuote    Fact = "presented_quote_exists"
	FactRevisingQuote     Fact = "revising_quote_exists"
	FactApprovedQuote     Fact = "approved_quote_exists"
	FactInvoiceIssued     Fact = "invoice_issued"
	FactInboundRecorded   Fact = "inbound_payment_recorded"
	FactPaymentConfirmed  Fact = "payment_confirmed"
	FactAdvancePaid       Fact = "factory_advance_paid"
	FactFactorySelected   Fact = "factory_selected"
	FactShippingArranged  Fact = "shipping_arranged"
	FactFactoryPaidInFull Fact = "factory_paid_in_full"
	FactTrackingNumber    Fact = "tracking_number_present"
	FactGoodsShipped      Fact = "goods_shipped"
	FactCustomsCleared    Fact = "customs_cleared"
	FactArrivalConfirmed  Fact = "arrival_confirmed"
)

var factMessages = map[Fact]string{
	FactFactoryAssigned:   "assign a factory first",
	FactEstimateSupplied:  "choose an estimate to adopt",
	FactDraftQuote:        "enter the factory quote as a draft first",
	FactQuoteExists:       "create a quote for this deal first",
	FactPresentedQuote:    "present a quote to the client first",
	FactRevisingQuote:     "a quote must be under revision",
	FactApprovedQuote:     "the client must approve a quote first",
	FactInvoiceIssued:     "issue the invoice first",
	FactInboundRecorded:   "record the client's payment first",
	FactPaymentConfirmed:  "confirm the client's payment first",
	FactAdvancePaid:       "pay the factory advance first",
	FactFactorySelected:   "select the producing factory first",
	FactShippingArranged:  "arrange shipping first",
	FactFactoryPaidInFull: "advance plus balance must equal the factory obligation",
	FactTrackingNumber:    "enter a tracking number",
	FactGoodsShipped:      "mark the goods as shipped first",
	FactCustomsCleared:    "customs clearance must be recorded first",
	FactArrivalConfirmed:  "confirm arrival first",
}

// Message is user-facing guidance for satisfying the fact.
func (f Fact) Message() string {
	if m, ok := factMessages[f]; ok {
		return m
	}
	return string(f)
}

// Snapshot is what the deal's stored records say, gathered before a
// transition is evaluated.
type Snapshot struct {
	FactoryAssigned  bool
	EstimateSupplied bool
	DraftQuote       bool
	AnyQuote         bool
	PresentedQuote   bool
	RevisingQuote    bool
	ApprovedQuote    bool
	InvoiceIssued    bool
	InboundRecorded  bool
	InboundConfirmed bool
	AdvancePaid      bool
	FactorySelected  bool
	ShippingArranged bool
	BalancePaid      bool
	TrackingNumber   bool
	Shipped          bool
	CustomsCleared   bool
	Arrived          bool
	ObligationUsd    decimal.Decimal
	AdvanceUsd       decimal.Decimal
	BalanceUsd       decimal.Decimal
}

// Holds reports whether f is satisfied by s.
func (s Snapshot) Holds(f Fact) bool {
	switch f {
	case FactFactoryAssigned:
		return s.FactoryAssigned
	case FactEstimateSupplied:
		return s.EstimateSupplied
	case FactDraftQuote:
		return s.DraftQuote
	case FactQuoteExists:
		return s.AnyQuote
	case FactPresentedQuote:
		return s.PresentedQuote
	case FactRevisingQuote:
		return s.RevisingQuote
	case FactApprovedQuote:
		return s.ApprovedQuote
	case FactInvoiceIssued:
		return s.InvoiceIssued
	case FactInboundRecorded:
		return s.InboundRecorded
	case FactPaymentConfirmed:
		return s.InboundConfirmed
	case FactAdvancePaid:
		return s.AdvancePaid
	case FactFactorySelected:
		return s.FactorySelected
	case FactShippingArranged:
		return s.ShippingArranged
	case FactFactoryPaidInFull:
		return s.BalancePaid && s.ObligationUsd.IsPositive() &&
			s.AdvanceUsd.Add(s.BalanceUsd).Round(2).Equal(s.ObligationUsd.Round(2))
	case FactTrackingNumber:
		return s.TrackingNumber
	case FactGoodsShipped:
		return s.Shipped
	case FactCustomsCleared:
		return s.CustomsCleared
	case FactArrivalConfirmed:
		return s.Arrived
	}
	return false
}
