package ledger

import (
	"time"

	"github.com/google/uuid"
)

// PartyTypeEmployee is the only party type payroll postings attribute.
const PartyTypeEmployee = "Employee"

// AgainstVoucherTypeSlip tags per-employee lines with their originating slip.
const AgainstVoucherTypeSlip = "Pay Slip"

// Line is one debit or credit against an account. Exactly one of Debit and
// Credit is non-zero, except for the round-off line which may carry zero on
// both sides when the set already balances.
type Line struct {
	AccountID          int64
	Debit              float64
	Credit             float64
	PartyType          string
	PartyID            *int64
	AgainstVoucherID   *int64
	AgainstVoucherType string
	AgainstAccounts    []int64
	CostCenter         string
	PostingDate        time.Time
	Remarks            string
}

// Posting is a balanced set of lines committed atomically against a voucher.
type Posting struct {
	ID          int64
	VoucherID   int64
	SourceID    uuid.UUID
	CompanyID   int64
	PostingDate time.Time
	Cancel      bool
	Lines       []Line
}

// ComponentFlags are the posting-relevant flags of a salary component.
// A component that impacts tax withholding only, without being a flexible
// benefit, never generates a ledger line.
type ComponentFlags struct {
	IsFlexibleBenefit bool
	OnlyTaxImpact     bool
}

// SkipPosting reports whether a component's amounts stay off the ledger.
func (f ComponentFlags) SkipPosting() bool {
	return f.OnlyTaxImpact && !f.IsFlexibleBenefit
}

// RoundOff names the company account absorbing residual rounding error.
type RoundOff struct {
	AccountID  int64
	CostCenter string
}
