// Package lifecycle holds the deal workflow as data: a presentation table
// describing each master status and a transition table binding each status
// to the actions that may leave it. Nothing here touches storage.
package lifecycle

import (
	"fmt"
	"strconv"
)

// Status is a deal's master status, M01 through M25.
type Status string

const (
	M01 Status = "M01"
	M02 Status = "M02"
	M03 Status = "M03"
	M04 Status = "M04"
	M05 Status = "M05"
	M06 Status = "M06"
	M07 Status = "M07"
	M08 Status = "M08"
	M09 Status = "M09"
	M10 Status = "M10"
	M11 Status = "M11"
	M12 Status = "M12"
	M13 Status = "M13"
	M14 Status = "M14"
	M15 Status = "M15"
	M16 Status = "M16"
	M17 Status = "M17"
	M18 Status = "M18"
	M19 Status = "M19"
	M20 Status = "M20"
	M21 Status = "M21"
	M22 Status = "M22"
	M23 Status = "M23"
	M24 Status = "M24"
	M25 Status = "M25"
)

const (
	Initial  = M01
	Terminal = M25
)

// Number returns the numeric suffix, or 0 for anything that is not M01..M25.
func (s Status) Number() int {
	if len(s) != 3 || s[0] != 'M' {
		return 0
	}
	n, err := strconv.Atoi(string(s[1:]))
	if err != nil || n < 1 || n > 25 {
		return 0
	}
	return n
}

func (s Status) Valid() bool { return s.Number() != 0 }

func statusFromNumber(n int) Status {
	return Status(fmt.Sprintf("M%02d", n))
}

// Phase groups statuses for dashboards.
type Phase string

const (
	PhaseQuoting    Phase = "quoting"
	PhasePayment    Phase = "payment"
	PhaseProduction Phase = "production"
	PhaseLogistics  Phase = "logistics"
	PhaseClosed     Phase = "closed"
)

// StatusInfo is presentation metadata only. Transition rules live in the
// transition table.
type StatusInfo struct {
	Code        Status `json:"code"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Phase       Phase  `json:"phase"`
}

var statusInfo = map[Status]StatusInfo{
	M01: {M01, "Inquiry", "Client inquiry received; product specification captured", PhaseQuoting},
	M02: {M02, "Quote requested", "Quote request sent to the assigned factories", PhaseQuoting},
	M03: {M03, "Factory quote received", "Factory pricing entered as a draft quote", PhaseQuoting},
	M04: {M04, "Cost review", "Landed cost and margin under review", PhaseQuoting},
	M05: {M05, "Quote finalized", "Draft quotes re-priced and ready to present", PhaseQuoting},
	M06: {M06, "Quote presented", "Quote sent to the client", PhaseQuoting},
	M07: {M07, "Client reviewing", "Client acknowledged the quote and is reviewing it", PhaseQuoting},
	M08: {M08, "Revision requested", "Client asked for changes to the quote", PhaseQuoting},
	M09: {M09, "Revising", "Quote being revised", PhaseQuoting},
	M10: {M10, "Awaiting approval", "Quote awaiting client approval", PhaseQuoting},
	M11: {M11, "Quote approved", "Client approved the quote; factory selected", PhasePayment},
	M12: {M12, "Invoice issued", "Invoice sent to the client", PhasePayment},
	M13: {M13, "Client payment recorded", "Client payment received, pending confirmation", PhasePayment},
	M14: {M14, "Payment confirmed", "Client payment confirmed by accounting", PhasePayment},
	M15: {M15, "Factory advance paid", "Advance payment sent to the factory", PhaseProduction},
	M16: {M16, "In production", "Factory production started", PhaseProduction},
	M17: {M17, "Production complete", "Factory reported production complete", PhaseProduction},
	M18: {M18, "Inspection passed", "Goods passed quality inspection", PhaseProduction},
	M19: {M19, "Shipping arranged", "Carrier booked for the shipment", PhaseLogistics},
	M20: {M20, "Factory balance paid", "Balance payment sent to the factory", PhaseLogistics},
	M21: {M21, "Factory settled", "Advance and balance reconciled against the factory obligation", PhaseLogistics},
	M22: {M22, "Shipped", "Goods in transit", PhaseLogistics},
	M23: {M23, "Customs cleared", "Shipment cleared import customs", PhaseLogistics},
	M24: {M24, "Arrived", "Shipment arrived at destination", PhaseLogistics},
	M25: {M25, "Delivered", "Delivery complete; the deal is closed", PhaseClosed},
}

// Info returns the presentation metadata for s.
func Info(s Status) (StatusInfo, bool) {
	info, ok := statusInfo[s]
	return info, ok
}

// AllStatuses returns metadata for M01..M25 in order.
func AllStatuses() []StatusInfo {
	out := make([]StatusInfo, 0, len(statusInfo))
	for n := 1; n <= 25; n++ {
		out = append(out, statusInfo[statusFromNumber(n)])
	}
	return out
}
