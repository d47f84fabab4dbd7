package service

import (
	"testing"

	"dealdesk/internal/lifecycle"
	"dealdesk/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceService_Settlement(t *testing.T) {
	f := newFixture(t)
	invoices := NewInvoiceService(f.dealRepo, f.invoiceRepo, f.paymentRepo, f.shipRepo)
	deal, _ := f.toApproved()

	t.Run("nothing settled before invoicing", func(t *testing.T) {
		s, err := invoices.Settlement(f.ctx, deal.ID.String())
		require.NoError(t, err)
		assert.Nil(t, s.Invoice)
		assert.Nil(t, s.Shipping)
		assert.Empty(t, s.Payments)
		assert.True(t, s.FactoryPaidUsd.IsZero())
	})

	for _, req := range []ActionRequest{
		{Action: lifecycle.ActionIssueInvoice, Actor: f.accounting},
		{Action: lifecycle.ActionRecordClientPayment, Actor: f.accounting},
		{Action: lifecycle.ActionConfirmPayment, Actor: f.accounting},
		{Action: lifecycle.ActionPayFactoryAdvance, Actor: f.accounting},
	} {
		f.mustAct(deal.ID, req)
	}

	t.Run("invoice and payments after the advance", func(t *testing.T) {
		s, err := invoices.Settlement(f.ctx, deal.ID.String())
		require.NoError(t, err)
		require.NotNil(t, s.Invoice)
		require.Len(t, s.Payments, 2)
		assert.Equal(t, s.Invoice.TotalJpy, s.ClientReceivedJpy)
		assert.True(t, s.FactoryPaidUsd.Equal(dec("780")), s.FactoryPaidUsd.String())
		assert.Nil(t, s.Shipping)

		kinds := []string{s.Payments[0].Kind, s.Payments[1].Kind}
		assert.ElementsMatch(t, []string{model.PaymentKindClient, model.PaymentKindFactoryAdvance}, kinds)
	})

	t.Run("invoice list", func(t *testing.T) {
		list, total, err := invoices.ListInvoices(f.ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, deal.ID, list[0].DealID)
	})

	t.Run("unknown deal", func(t *testing.T) {
		_, err := invoices.Settlement(f.ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
