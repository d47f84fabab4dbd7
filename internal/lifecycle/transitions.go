package lifecycle

import (
	"fmt"
	"slices"
)

// Action names a business step that moves a deal forward.
type Action string

const (
	ActionSendQuoteRequest         Action = "sendQuoteRequest"
	ActionAdoptEstimate            Action = "adoptEstimate"
	ActionReceiveFactoryQuote      Action = "receiveFactoryQuote"
	ActionReviewCost               Action = "reviewCost"
	ActionFinalizeQuote            Action = "finalizeQuote"
	ActionPresentQuoteToClient     Action = "presentQuoteToClient"
	ActionAcknowledgeQuote         Action = "acknowledgeQuote"
	ActionAcceptQuote              Action = "acceptQuote"
	ActionRequestRevision          Action = "requestRevision"
	ActionStartRevision            Action = "startRevision"
	ActionResubmitQuote            Action = "resubmitQuote"
	ActionApproveQuote             Action = "approveQuote"
	ActionIssueInvoice             Action = "issueInvoice"
	ActionRecordClientPayment      Action = "recordClientPayment"
	ActionConfirmPayment           Action = "confirmPayment"
	ActionPayFactoryAdvance        Action = "payFactoryAdvance"
	ActionStartProduction          Action = "startProduction"
	ActionCompleteProduction       Action = "completeProduction"
	ActionPassInspection           Action = "passInspection"
	ActionArrangeShipping          Action = "arrangeShipping"
	ActionPayFactoryBalance        Action = "payFactoryBalance"
	ActionReconcileFactoryPayments Action = "reconcileFactoryPayments"
	ActionShipGoods                Action = "shipGoods"
	ActionClearCustoms             Action = "clearCustoms"
	ActionConfirmArrival           Action = "confirmArrival"
	ActionCompleteDelivery         Action = "completeDelivery"
	ActionRepeatOrder              Action = "repeatOrder"
)

// Roles carried in the auth token.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleStaff      = "staff"
	RoleAccounting = "accounting"
)

// Roles returns every role the system knows.
func Roles() []string {
	return []string{RoleAdmin, RoleManager, RoleStaff, RoleAccounting}
}

// TransitionKind is the shape of an edge in the status graph.
type TransitionKind string

const (
	// KindForward moves to the next status number.
	KindForward TransitionKind = "forward"
	// KindRevision enters, walks or exits the M08-M09 revision loop.
	KindRevision TransitionKind = "revision"
	// KindShortcut is the estimate adoption jump M01 -> M06.
	KindShortcut TransitionKind = "shortcut"
	// KindSpawn leaves the deal untouched and opens a new one at M01.
	KindSpawn TransitionKind = "spawn"
)

// Transition binds an action to the status it leaves from.
type Transition struct {
	From     Status         `json:"from"`
	Action   Action         `json:"action"`
	To       Status         `json:"to"`
	Kind     TransitionKind `json:"kind"`
	Requires []Fact         `json:"requires,omitempty"`
	// Roles limits who may fire the action; empty means any authenticated user.
	Roles []string `json:"roles,omitempty"`
}

var paymentRoles = []string{RoleAdmin, RoleAccounting}

func forward(from Status, action Action, requires ...Fact) Transition {
	return Transition{From: from, Action: action, To: statusFromNumber(from.Number() + 1), Kind: KindForward, Requires: requires}
}

func (t Transition) restrictedTo(roles ...string) Transition {
	t.Roles = roles
	return t
}

var transitions = []Transition{
	forward(M01, ActionSendQuoteRequest, FactFactoryAssigned),
	{From: M01, Action: ActionAdoptEstimate, To: M06, Kind: KindShortcut, Requires: []Fact{FactEstimateSupplied}},
	forward(M02, ActionReceiveFactoryQuote, FactDraftQuote),
	forward(M03, ActionReviewCost, FactDraftQuote),
	forward(M04, ActionFinalizeQuote, FactDraftQuote),
	forward(M05, ActionPresentQuoteToClient, FactQuoteExists),
	forward(M06, ActionAcknowledgeQuote, FactQuoteExists),
	{From: M07, Action: ActionAcceptQuote, To: M10, Kind: KindRevision, Requires: []Fact{FactPresentedQuote}},
	{From: M06, Action: ActionRequestRevision, To: M08, Kind: KindRevision, Requires: []Fact{FactQuoteExists}},
	{From: M07, Action: ActionRequestRevision, To: M08, Kind: KindRevision, Requires: []Fact{FactQuoteExists}},
	{From: M10, Action: ActionRequestRevision, To: M08, Kind: KindRevision, Requires: []Fact{FactQuoteExists}},
	{From: M08, Action: ActionStartRevision, To: M09, Kind: KindRevision, Requires: []Fact{FactRevisingQuote}},
	{From: M09, Action: ActionResubmitQuote, To: M10, Kind: KindRevision, Requires: []Fact{FactRevisingQuote}},
	forward(M10, ActionApproveQuote, FactPresentedQuote),
	forward(M11, ActionIssueInvoice, FactApprovedQuote).restrictedTo(paymentRoles...),
	forward(M12, ActionRecordClientPayment, FactInvoiceIssued).restrictedTo(paymentRoles...),
	forward(M13, ActionConfirmPayment, FactInboundRecorded).restrictedTo(paymentRoles...),
	forward(M14, ActionPayFactoryAdvance, FactPaymentConfirmed, FactApprovedQuote).restrictedTo(paymentRoles...),
	forward(M15, ActionStartProduction, FactAdvancePaid),
	forward(M16, ActionCompleteProduction, FactFactorySelected),
	forward(M17, ActionPassInspection),
	forward(M18, ActionArrangeShipping),
	forward(M19, ActionPayFactoryBalance, FactShippingArranged, FactApprovedQuote).restrictedTo(paymentRoles...),
	forward(M20, ActionReconcileFactoryPayments, FactFactoryPaidInFull).restrictedTo(paymentRoles...),
	forward(M21, ActionShipGoods, FactTrackingNumber),
	forward(M22, ActionClearCustoms, FactGoodsShipped),
	forward(M23, ActionConfirmArrival, FactCustomsCleared),
	forward(M24, ActionCompleteDelivery, FactArrivalConfirmed),
	{From: M25, Action: ActionRepeatOrder, To: M25, Kind: KindSpawn},
}

// Lookup finds the transition bound to action in status from.
func Lookup(from Status, action Action) (Transition, error) {
	for _, t := range transitions {
		if t.From == from && t.Action == action {
			return t, nil
		}
	}
	return Transition{}, &ActionError{Kind: InvalidTransition, Status: from, Action: action}
}

// ActionsFor lists the transitions available from status, in table order.
func ActionsFor(status Status) []Transition {
	var out []Transition
	for _, t := range transitions {
		if t.From == status {
			out = append(out, t)
		}
	}
	return out
}

// Transitions returns a copy of the full table.
func Transitions() []Transition {
	return slices.Clone(transitions)
}

// Allows reports whether role may fire t.
func (t Transition) Allows(role string) bool {
	return len(t.Roles) == 0 || slices.Contains(t.Roles, role)
}

// Check evaluates the transition's preconditions against s and reports the
// first missing fact.
func (t Transition) Check(s Snapshot) error {
	for _, f := range t.Requires {
		if !s.Holds(f) {
			return &ActionError{Kind: PreconditionFailed, Status: t.From, Action: t.Action, Fact: f}
		}
	}
	return nil
}

func inRevisionLoop(s Status) bool {
	return s == M08 || s == M09
}

// Validate checks the table: every status has metadata, every non-terminal
// status has a way out, the terminal status only spawns, and each edge's
// declared kind matches its shape. Backward edges other than the revision
// loop are rejected.
func Validate() error {
	seen := map[string]bool{}
	outgoing := map[Status]int{}
	for _, t := range transitions {
		if _, ok := statusInfo[t.From]; !ok {
			return fmt.Errorf("transition %s from unknown status %q", t.Action, t.From)
		}
		if _, ok := statusInfo[t.To]; !ok {
			return fmt.Errorf("transition %s to unknown status %q", t.Action, t.To)
		}
		key := string(t.From) + "/" + string(t.Action)
		if seen[key] {
			return fmt.Errorf("duplicate transition %s", key)
		}
		seen[key] = true
		outgoing[t.From]++

		from, to := t.From.Number(), t.To.Number()
		switch t.Kind {
		case KindForward:
			if to != from+1 {
				return fmt.Errorf("forward transition %s must advance one step, got %s -> %s", t.Action, t.From, t.To)
			}
		case KindRevision:
			// entering the loop, walking it, leaving it to M10, or jumping over it from M07
			entering := (t.From == M06 || t.From == M07 || t.From == M10) && t.To == M08
			inside := t.From == M08 && t.To == M09
			leaving := t.From == M09 && t.To == M10
			skipping := t.From == M07 && t.To == M10
			if !entering && !inside && !leaving && !skipping {
				return fmt.Errorf("revision transition %s has invalid shape %s -> %s", t.Action, t.From, t.To)
			}
		case KindShortcut:
			if t.From != M01 || t.To != M06 || t.Action != ActionAdoptEstimate {
				return fmt.Errorf("shortcut %s -> %s via %s is not allowed", t.From, t.To, t.Action)
			}
		case KindSpawn:
			if t.From != Terminal || t.To != t.From {
				return fmt.Errorf("spawn transition %s must stay on %s", t.Action, Terminal)
			}
		default:
			return fmt.Errorf("transition %s has unknown kind %q", t.Action, t.Kind)
		}
		if to < from && !(t.Kind == KindRevision && inRevisionLoop(t.To)) {
			return fmt.Errorf("backward transition %s -> %s outside the revision loop", t.From, t.To)
		}
		if t.From == Terminal && t.Kind != KindSpawn {
			return fmt.Errorf("terminal status %s may only spawn, found %s", Terminal, t.Action)
		}
	}
	for n := 1; n <= 25; n++ {
		s := statusFromNumber(n)
		if _, ok := statusInfo[s]; !ok {
			return fmt.Errorf("status %s has no metadata", s)
		}
		if s != Terminal && outgoing[s] == 0 {
			return fmt.Errorf("status %s has no outgoing transition", s)
		}
	}
	return nil
}
