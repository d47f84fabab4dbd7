package service

import (
	"context"
	"errors"
	"fmt"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// snapshot reads the deal's related records into the facts the transition table checks.
func (s *dealService) snapshot(ctx context.Context, deal *model.Deal, req ActionRequest) (lifecycle.Snapshot, error) {
	snap := lifecycle.Snapshot{EstimateSupplied: req.Estimate != nil}

	assignments, err := s.Assignments.ListByDeal(ctx, deal.ID)
	if err != nil {
		return snap, fmt.Errorf("failed to load factory assignments: %w", err)
	}
	for _, a := range assignments {
		if a.Status != model.AssignmentDeclined {
			snap.FactoryAssigned = true
		}
		if a.Status == model.AssignmentSelected {
			snap.FactorySelected = true
		}
	}

	counts, err := s.Quotes.CountByStatus(ctx, deal.ID)
	if err != nil {
		return snap, fmt.Errorf("failed to count quotes: %w", err)
	}
	snap.DraftQuote = counts[model.QuoteDrafting] > 0
	snap.PresentedQuote = counts[model.QuotePresented] > 0
	snap.RevisingQuote = counts[model.QuoteRevising] > 0
	snap.ApprovedQuote = counts[model.QuoteApproved] > 0
	for status, n := range counts {
		if status != model.QuoteRejected && n > 0 {
			snap.AnyQuote = true
		}
	}

	if snap.ApprovedQuote {
		q, err := s.Quotes.FindApproved(ctx, deal.ID)
		if err != nil {
			return snap, fmt.Errorf("failed to load approved quote: %w", err)
		}
		snap.ObligationUsd = q.FactoryObligationUsd()
	}

	if _, err := s.Invoices.FindByDeal(ctx, deal.ID); err == nil {
		snap.InvoiceIssued = true
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, fmt.Errorf("failed to load invoice: %w", err)
	}

	payments, err := s.Payments.ListByDeal(ctx, deal.ID)
	if err != nil {
		return snap, fmt.Errorf("failed to load payments: %w", err)
	}
	for _, p := range payments {
		switch p.Kind {
		case model.PaymentKindClient:
			snap.InboundRecorded = true
			snap.InboundConfirmed = p.Status == model.PaymentConfirmed
		case model.PaymentKindFactoryAdvance:
			snap.AdvancePaid = true
			snap.AdvanceUsd = p.AmountUsd
		case model.PaymentKindFactoryBalance:
			snap.BalancePaid = true
			snap.BalanceUsd = p.AmountUsd
		}
	}

	shipping, err := s.Shipping.FindByDeal(ctx, deal.ID)
	switch {
	case err == nil:
		snap.ShippingArranged = true
		snap.TrackingNumber = shipping.TrackingNumber != ""
		snap.Shipped = shipping.ShippedAt != nil
		snap.CustomsCleared = shipping.CustomsClearedAt != nil
		snap.Arrived = shipping.ArrivedAt != nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return snap, fmt.Errorf("failed to load shipping record: %w", err)
	}
	if req.TrackingNumber != "" {
		snap.TrackingNumber = true
	}

	return snap, nil
}

func precondition(f lifecycle.Fact, action lifecycle.Action) error {
	return &lifecycle.ActionError{Kind: lifecycle.PreconditionFailed, Action: action, Fact: f}
}

// runEffect performs the side effect bound to the action. It returns the new
// deal when the action spawns one.
func (s *dealService) runEffect(ctx context.Context, deal *model.Deal, t lifecycle.Transition, req ActionRequest, snap lifecycle.Snapshot) (*model.Deal, error) {
	switch t.Action {
	case lifecycle.ActionSendQuoteRequest:
		_, err := s.Assignments.TransitionStatus(ctx, deal.ID, []string{model.AssignmentCandidate}, model.AssignmentRequested)
		return nil, err
	case lifecycle.ActionAdoptEstimate:
		return nil, s.adoptEstimate(ctx, deal, req)
	case lifecycle.ActionReceiveFactoryQuote:
		return nil, s.markQuotedFactories(ctx, deal)
	case lifecycle.ActionFinalizeQuote:
		return nil, s.repriceQuotes(ctx, deal, model.QuoteDrafting, model.QuoteDrafting)
	case lifecycle.ActionPresentQuoteToClient:
		return nil, s.presentQuotes(ctx, deal, req)
	case lifecycle.ActionAcknowledgeQuote:
		_, err := s.Quotes.TransitionStatus(ctx, deal.ID, []string{model.QuoteDrafting}, model.QuotePresented)
		return nil, err
	case lifecycle.ActionRequestRevision:
		n, err := s.Quotes.TransitionStatus(ctx, deal.ID, []string{model.QuotePresented, model.QuoteDrafting}, model.QuoteRevising)
		if err != nil {
			return nil, err
		}
		if n == 0 && !snap.RevisingQuote {
			return nil, precondition(lifecycle.FactPresentedQuote, t.Action)
		}
		return nil, nil
	case lifecycle.ActionResubmitQuote:
		return nil, s.repriceQuotes(ctx, deal, model.QuotePresented, model.QuoteRevising, model.QuoteDrafting)
	case lifecycle.ActionApproveQuote:
		return nil, s.approveQuote(ctx, deal, req)
	case lifecycle.ActionIssueInvoice:
		return nil, s.issueInvoice(ctx, deal, req)
	case lifecycle.ActionRecordClientPayment:
		return nil, s.recordClientPayment(ctx, deal, req)
	case lifecycle.ActionConfirmPayment:
		p, err := s.Payments.FindByDealAndKind(ctx, deal.ID, model.PaymentKindClient)
		if err != nil {
			return nil, err
		}
		if p.Status == model.PaymentConfirmed {
			return nil, nil
		}
		return nil, s.Payments.Confirm(ctx, p.ID, s.now())
	case lifecycle.ActionPayFactoryAdvance:
		return nil, s.payFactory(ctx, deal, req, model.PaymentKindFactoryAdvance, snap)
	case lifecycle.ActionArrangeShipping:
		return nil, s.arrangeShipping(ctx, deal, req)
	case lifecycle.ActionPayFactoryBalance:
		return nil, s.payFactory(ctx, deal, req, model.PaymentKindFactoryBalance, snap)
	case lifecycle.ActionShipGoods, lifecycle.ActionClearCustoms, lifecycle.ActionConfirmArrival:
		return nil, s.updateShipment(ctx, deal, t.Action, req)
	case lifecycle.ActionRepeatOrder:
		return s.repeatOrder(ctx, deal, req)
	}
	// reviewCost, acceptQuote, startRevision, startProduction, completeProduction,
	// passInspection, reconcileFactoryPayments and completeDelivery only move the status.
	return nil, nil
}

func (s *dealService) adoptEstimate(ctx context.Context, deal *model.Deal, req ActionRequest) error {
	est := req.Estimate
	factory, err := s.Partners.FindByID(ctx, est.FactoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid("factory_id", "factory not found")
		}
		return err
	}
	if factory.Type != model.PartnerTypeFactory {
		return invalid("factory_id", "partner %s is not a factory", factory.Code)
	}

	taxRate, _, err := s.Taxes.ActiveRate(ctx, s.now())
	if err != nil {
		return err
	}

	quote := &model.DealQuote{
		DealID:              deal.ID,
		FactoryID:           factory.ID,
		Status:              model.QuoteDrafting,
		Source:              model.QuoteSourceEstimate,
		FactoryUnitPriceUsd: est.UnitPriceUsd,
		Quantity:            deal.Quantity,
		ShippingCostUsd:     est.ShippingUsd,
		CostRatio:           est.CostRatio,
		ExchangeRate:        est.ExchangeRate,
		TaxRate:             taxRate,
		PaymentMethod:       string(est.PaymentMethod),
		Confidence:          est.Confidence,
		CreatedBy:           req.Actor.idPtr(),
	}
	res, err := s.Calculator.Calculate(quote.Input())
	if err != nil {
		return err
	}
	quote.ApplyResult(res)
	if err := s.Quotes.Create(ctx, quote); err != nil {
		return fmt.Errorf("failed to create quote: %w", err)
	}
	s.Metrics.RecordQuoteCalculation("estimate")

	if _, err := s.Assignments.Ensure(ctx, deal.ID, factory.ID, model.AssignmentQuoted); err != nil {
		return err
	}
	return s.Assignments.SetStatus(ctx, deal.ID, factory.ID, model.AssignmentQuoted)
}

func (s *dealService) markQuotedFactories(ctx context.Context, deal *model.Deal) error {
	drafts, err := s.Quotes.ListByDealAndStatus(ctx, deal.ID, model.QuoteDrafting)
	if err != nil {
		return err
	}
	for _, q := range drafts {
		if _, err := s.Assignments.Ensure(ctx, deal.ID, q.FactoryID, model.AssignmentQuoted); err != nil {
			return err
		}
		if err := s.Assignments.SetStatus(ctx, deal.ID, q.FactoryID, model.AssignmentQuoted); err != nil {
			return err
		}
	}
	return nil
}

// repriceQuotes recomputes every quote in one of the from statuses and stores it with status to.
func (s *dealService) repriceQuotes(ctx context.Context, deal *model.Deal, to string, from ...string) error {
	quotes, err := s.Quotes.ListByDealAndStatus(ctx, deal.ID, from...)
	if err != nil {
		return err
	}
	for i := range quotes {
		q := &quotes[i]
		res, err := s.Calculator.Calculate(q.Input())
		if err != nil {
			return err
		}
		q.ApplyResult(res)
		q.Status = to
		if err := s.Quotes.Save(ctx, q); err != nil {
			return fmt.Errorf("failed to save quote: %w", err)
		}
		s.Metrics.RecordQuoteCalculation("reprice")
	}
	return nil
}

func (s *dealService) presentQuotes(ctx context.Context, deal *model.Deal, req ActionRequest) error {
	if req.QuoteID != nil {
		q, err := s.dealQuote(ctx, deal, *req.QuoteID)
		if err != nil {
			return err
		}
		if q.Status != model.QuoteDrafting {
			return invalid("quote_id", "quote is %s, only drafting quotes can be presented", q.Status)
		}
		q.Status = model.QuotePresented
		return s.Quotes.Save(ctx, q)
	}
	n, err := s.Quotes.TransitionStatus(ctx, deal.ID, []string{model.QuoteDrafting}, model.QuotePresented)
	if err != nil {
		return err
	}
	if n == 0 {
		return precondition(lifecycle.FactDraftQuote, lifecycle.ActionPresentQuoteToClient)
	}
	return nil
}

// dealQuote loads a quote and checks it belongs to the deal.
func (s *dealService) dealQuote(ctx context.Context, deal *model.Deal, id uuid.UUID) (*model.DealQuote, error) {
	q, err := s.Quotes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalid("quote_id", "quote not found")
		}
		return nil, err
	}
	if q.DealID != deal.ID {
		return nil, invalid("quote_id", "quote belongs to another deal")
	}
	return q, nil
}

func (s *dealService) approveQuote(ctx context.Context, deal *model.Deal, req ActionRequest) error {
	var quote *model.DealQuote
	if req.QuoteID != nil {
		q, err := s.dealQuote(ctx, deal, *req.QuoteID)
		if err != nil {
			return err
		}
		if q.Status != model.QuotePresented {
			return invalid("quote_id", "quote is %s, only presented quotes can be approved", q.Status)
		}
		quote = q
	} else {
		presented, err := s.Quotes.ListByDealAndStatus(ctx, deal.ID, model.QuotePresented)
		if err != nil {
			return err
		}
		switch len(presented) {
		case 0:
			return precondition(lifecycle.FactPresentedQuote, lifecycle.ActionApproveQuote)
		case 1:
			quote = &presented[0]
		default:
			return invalid("quote_id", "%d quotes are presented, choose one", len(presented))
		}
	}

	if err := s.Quotes.Approve(ctx, deal.ID, quote.ID, s.now()); err != nil {
		return fmt.Errorf("failed to approve quote: %w", err)
	}
	if _, err := s.Quotes.TransitionStatus(ctx, deal.ID, []string{model.QuotePresented}, model.QuoteRejected); err != nil {
		return err
	}
	return s.Assignments.Select(ctx, deal.ID, quote.FactoryID)
}

func (s *dealService) issueInvoice(ctx context.Context, deal *model.Deal, req ActionRequest) error {
	quote, err := s.Quotes.FindApproved(ctx, deal.ID)
	if err != nil {
		return err
	}

	now := s.now()
	prefix := fmt.Sprintf("INV-%s-", now.Format("200601"))
	n, err := s.Invoices.CountByPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	invoice := &model.Invoice{
		InvoiceNo:   fmt.Sprintf("%s%04d", prefix, n+1),
		DealID:      deal.ID,
		QuoteID:     quote.ID,
		ClientID:    deal.ClientID,
		TaxRate:     quote.TaxRate,
		SubtotalJpy: quote.TotalBillingJpy,
		TaxJpy:      quote.TotalBillingTaxJpy - quote.TotalBillingJpy,
		TotalJpy:    quote.TotalBillingTaxJpy,
		TotalUsd:    quote.SellingPriceUsd.Mul(decimal.NewFromInt(quote.Quantity)).Round(2),
		IssuedBy:    req.Actor.idPtr(),
		IssuedAt:    now,
		Note:        req.Note,
	}

	rate, ruleID, err := s.Taxes.ActiveRate(ctx, now)
	if err != nil {
		return err
	}
	if ruleID != nil && rate.Equal(quote.TaxRate) {
		invoice.TaxRuleID = ruleID
	}

	if err := s.Invoices.Create(ctx, invoice); err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (s *dealService) recordClientPayment(ctx context.Context, deal *model.Deal, req ActionRequest) error {
	invoice, err := s.Invoices.FindByDeal(ctx, deal.ID)
	if err != nil {
		return err
	}
	quote, err := s.Quotes.FindByID(ctx, invoice.QuoteID)
	if err != nil {
		return err
	}

	amountJpy := invoice.TotalJpy
	if req.AmountJpy != nil {
		if *req.AmountJpy <= 0 {
			return invalid("amount_jpy", "must be greater than 0")
		}
		amountJpy = *req.AmountJpy
	}
	amountUsd := decimal.NewFromInt(amountJpy).Div(quote.ExchangeRate).Round(2)
	if req.AmountUsd != nil {
		if !req.AmountUsd.IsPositive() {
			return invalid("amount_usd", "must be greater than 0")
		}
		amountUsd = req.AmountUsd.Round(2)
	}

	clientID := deal.ClientID
	return s.Payments.Create(ctx, &model.Payment{
		DealID:     deal.ID,
		Kind:       model.PaymentKindClient,
		Direction:  model.PaymentInbound,
		PartnerID:  &clientID,
		AmountUsd:  amountUsd,
		AmountJpy:  amountJpy,
		Status:     model.PaymentRecorded,
		RecordedBy: req.Actor.idPtr(),
		Note:       req.Note,
	})
}

// payFactory records an outbound factory payment. The advance is a fixed share
// of the obligation; the balance is whatever remains after the advance.
func (s *dealService) payFactory(ctx context.Context, deal *model.Deal, req ActionRequest, kind string, snap lifecycle.Snapshot) error {
	quote, err := s.Quotes.FindApproved(ctx, deal.ID)
	if err != nil {
		return err
	}
	obligation := quote.FactoryObligationUsd().Round(2)

	var amount decimal.Decimal
	if kind == model.PaymentKindFactoryAdvance {
		amount = obligation.Mul(s.AdvanceRatio).Round(2)
	} else {
		amount = obligation.Sub(snap.AdvanceUsd).Round(2)
	}
	if req.AmountUsd != nil {
		if req.AmountUsd.IsNegative() {
			return invalid("amount_usd", "must be >= 0")
		}
		override := req.AmountUsd.Round(2)
		// The balance must close the obligation to the cent.
		if kind == model.PaymentKindFactoryBalance && !override.Equal(amount) {
			return invalid("amount_usd", "balance must be %s USD so that advance plus balance equals the factory obligation of %s USD",
				amount.StringFixed(2), obligation.StringFixed(2))
		}
		amount = override
	}
	if amount.IsNegative() || amount.GreaterThan(obligation) {
		return invalid("amount_usd", "exceeds the factory obligation of %s USD", obligation.StringFixed(2))
	}

	factoryID := quote.FactoryID
	now := s.now()
	return s.Payments.Create(ctx, &model.Payment{
		DealID:      deal.ID,
		Kind:        kind,
		Direction:   model.PaymentOutbound,
		PartnerID:   &factoryID,
		AmountUsd:   amount,
		Status:      model.PaymentConfirmed,
		RecordedBy:  req.Actor.idPtr(),
		ConfirmedAt: &now,
		Note:        req.Note,
	})
}

func (s *dealService) arrangeShipping(ctx context.Context, deal *model.Deal, req ActionRequest) error {
	rec, err := s.Shipping.FindByDeal(ctx, deal.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.Shipping.Create(ctx, &model.ShippingRecord{
			DealID:         deal.ID,
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
			ArrangedAt:     s.now(),
		})
	}
	if err != nil {
		return err
	}
	if req.Carrier != "" {
		rec.Carrier = req.Carrier
	}
	if req.TrackingNumber != "" {
		rec.TrackingNumber = req.TrackingNumber
	}
	rec.ArrangedAt = s.now()
	return s.Shipping.Save(ctx, rec)
}

func (s *dealService) updateShipment(ctx context.Context, deal *model.Deal, action lifecycle.Action, req ActionRequest) error {
	rec, err := s.Shipping.FindByDeal(ctx, deal.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return precondition(lifecycle.FactShippingArranged, action)
		}
		return err
	}
	now := s.now()
	switch action {
	case lifecycle.ActionShipGoods:
		if req.TrackingNumber != "" {
			rec.TrackingNumber = req.TrackingNumber
		}
		if req.Carrier != "" {
			rec.Carrier = req.Carrier
		}
		rec.ShippedAt = &now
	case lifecycle.ActionClearCustoms:
		rec.CustomsClearedAt = &now
	case lifecycle.ActionConfirmArrival:
		rec.ArrivedAt = &now
	}
	return s.Shipping.Save(ctx, rec)
}

// repeatOrder opens a new deal at the initial status with the same client and
// product, and proposes the previously selected factory as a candidate. The
// closed deal is not modified.
func (s *dealService) repeatOrder(ctx context.Context, deal *model.Deal, req ActionRequest) (*model.Deal, error) {
	origin := deal.ID
	next := &model.Deal{
		Title:      deal.Title,
		ClientID:   deal.ClientID,
		Category:   deal.Category,
		Material:   deal.Material,
		Size:       deal.Size,
		Printing:   deal.Printing,
		Quantity:   deal.Quantity,
		Notes:      deal.Notes,
		RepeatOfID: &origin,
		CreatedBy:  req.Actor.idPtr(),
	}
	if err := s.insertDeal(ctx, next, req.Actor, "repeat of "+deal.Code); err != nil {
		return nil, err
	}

	assignments, err := s.Assignments.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if a.Status == model.AssignmentSelected {
			if _, err := s.Assignments.Ensure(ctx, next.ID, a.FactoryID, model.AssignmentCandidate); err != nil {
				return nil, err
			}
		}
	}
	return next, nil
}
