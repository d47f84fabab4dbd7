package lifecycle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_TableIsConsistent(t *testing.T) {
	require.NoError(t, Validate())
}

func TestAllStatuses_HaveMetadata(t *testing.T) {
	all := AllStatuses()
	require.Len(t, all, 25)
	for i, info := range all {
		assert.Equal(t, i+1, info.Code.Number())
		assert.NotEmpty(t, info.Label)
		assert.NotEmpty(t, info.Description)
		assert.NotEmpty(t, info.Phase)
	}
}

func TestStatus_Number(t *testing.T) {
	assert.Equal(t, 1, M01.Number())
	assert.Equal(t, 25, M25.Number())
	assert.Equal(t, 0, Status("M26").Number())
	assert.Equal(t, 0, Status("X01").Number())
	assert.Equal(t, 0, Status("").Number())
	assert.False(t, Status("M00").Valid())
}

func TestLookup(t *testing.T) {
	tests := []struct {
		from   Status
		action Action
		to     Status
		kind   TransitionKind
	}{
		{M01, ActionSendQuoteRequest, M02, KindForward},
		{M01, ActionAdoptEstimate, M06, KindShortcut},
		{M05, ActionPresentQuoteToClient, M06, KindForward},
		{M06, ActionRequestRevision, M08, KindRevision},
		{M07, ActionAcceptQuote, M10, KindRevision},
		{M08, ActionStartRevision, M09, KindRevision},
		{M09, ActionResubmitQuote, M10, KindRevision},
		{M10, ActionRequestRevision, M08, KindRevision},
		{M11, ActionIssueInvoice, M12, KindForward},
		{M20, ActionReconcileFactoryPayments, M21, KindForward},
		{M24, ActionCompleteDelivery, M25, KindForward},
		{M25, ActionRepeatOrder, M25, KindSpawn},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			tr, err := Lookup(tt.from, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.to, tr.To)
			assert.Equal(t, tt.kind, tr.Kind)
		})
	}
}

func TestLookup_InvalidTransition(t *testing.T) {
	_, err := Lookup(M13, ActionIssueInvoice)
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidTransition))

	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, M13, ae.Status)
	assert.Equal(t, ActionIssueInvoice, ae.Action)

	_, err = Lookup(M04, ActionRequestRevision)
	assert.True(t, IsKind(err, InvalidTransition))
}

func TestActionsFor(t *testing.T) {
	actions := func(s Status) []Action {
		var out []Action
		for _, tr := range ActionsFor(s) {
			out = append(out, tr.Action)
		}
		return out
	}
	assert.Equal(t, []Action{ActionSendQuoteRequest, ActionAdoptEstimate}, actions(M01))
	assert.ElementsMatch(t, []Action{ActionAcknowledgeQuote, ActionRequestRevision}, actions(M06))
	assert.ElementsMatch(t, []Action{ActionAcceptQuote, ActionRequestRevision}, actions(M07))
	assert.ElementsMatch(t, []Action{ActionApproveQuote, ActionRequestRevision}, actions(M10))
	assert.Equal(t, []Action{ActionRepeatOrder}, actions(M25))
	assert.Empty(t, ActionsFor("M99"))
}

func TestEveryStatusBelowTerminalCanAdvance(t *testing.T) {
	for _, info := range AllStatuses() {
		if info.Code == Terminal {
			continue
		}
		assert.NotEmpty(t, ActionsFor(info.Code), "status %s is a dead end", info.Code)
	}
}

func TestCheck_Preconditions(t *testing.T) {
	tr, err := Lookup(M01, ActionSendQuoteRequest)
	require.NoError(t, err)

	err = tr.Check(Snapshot{})
	require.Error(t, err)
	assert.True(t, IsKind(err, PreconditionFailed))
	var ae *ActionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, FactFactoryAssigned, ae.Fact)
	assert.Contains(t, err.Error(), "assign a factory first")

	assert.NoError(t, tr.Check(Snapshot{FactoryAssigned: true}))
}

func TestCheck_FactoryPaidInFull(t *testing.T) {
	tr, err := Lookup(M20, ActionReconcileFactoryPayments)
	require.NoError(t, err)

	s := Snapshot{
		BalancePaid:   true,
		ObligationUsd: decimal.RequireFromString("2600"),
		AdvanceUsd:    decimal.RequireFromString("780"),
		BalanceUsd:    decimal.RequireFromString("1820"),
	}
	assert.NoError(t, tr.Check(s))

	s.BalanceUsd = decimal.RequireFromString("1800")
	assert.True(t, IsKind(tr.Check(s), PreconditionFailed))

	s.BalanceUsd = decimal.RequireFromString("1820")
	s.BalancePaid = false
	assert.True(t, IsKind(tr.Check(s), PreconditionFailed))
}

func TestAllows(t *testing.T) {
	invoice, err := Lookup(M11, ActionIssueInvoice)
	require.NoError(t, err)
	assert.True(t, invoice.Allows(RoleAdmin))
	assert.True(t, invoice.Allows(RoleAccounting))
	assert.False(t, invoice.Allows(RoleStaff))

	review, err := Lookup(M03, ActionReviewCost)
	require.NoError(t, err)
	assert.True(t, review.Allows(RoleStaff))
}

func TestValidate_RejectsIllegalShapes(t *testing.T) {
	original := transitions
	t.Cleanup(func() { transitions = original })

	cases := map[string]Transition{
		"skip forward":     {From: M02, Action: "jump", To: M05, Kind: KindForward},
		"backward jump":    {From: M12, Action: "rewind", To: M11, Kind: KindRevision},
		"second shortcut":  {From: M02, Action: ActionAdoptEstimate, To: M06, Kind: KindShortcut},
		"terminal forward": {From: M25, Action: "reopen", To: M01, Kind: KindForward},
		"duplicate":        {From: M01, Action: ActionSendQuoteRequest, To: M02, Kind: KindForward},
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			transitions = append(Transitions(), bad)
			assert.Error(t, Validate())
		})
	}
}

func TestActionError_Messages(t *testing.T) {
	err := &ActionError{Kind: Conflict, DealID: "d1"}
	assert.Contains(t, err.Error(), "changed concurrently")
	assert.True(t, IsKind(err, Conflict))
	assert.False(t, IsKind(err, NotFound))
	assert.False(t, IsKind(assert.AnError, Conflict))
}
