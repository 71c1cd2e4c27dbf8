package voucher

import (
	"time"

	"github.com/google/uuid"

	"github.com/theopen-institute/payroll/internal/payroll/periods"
	"github.com/theopen-institute/payroll/internal/payroll/shared"
)

// Status enumerates voucher lifecycle values.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusCancelled Status = "CANCELLED"
)

// RosterStatus mirrors the linked slip's state, or Missing when an eligible
// employee has no slip yet.
type RosterStatus string

const (
	RosterMissing   RosterStatus = "MISSING"
	RosterDraft     RosterStatus = "DRAFT"
	RosterSubmitted RosterStatus = "SUBMITTED"
	RosterCancelled RosterStatus = "CANCELLED"
)

// RosterEntry maps one employee to at most one slip for the voucher's
// period. Entries are owned by the voucher and rebuilt by reconciliation;
// manually curated rows survive a re-fill.
type RosterEntry struct {
	EmployeeID   int64
	EmployeeName string
	SlipID       *int64
	Status       RosterStatus
}

// Filter scopes every employee and slip query a voucher makes.
type Filter struct {
	CompanyID     int64
	BranchID      *int64
	DepartmentID  *int64
	DesignationID *int64
	Frequency     periods.Frequency // empty means any
}

// Validate enforces the required filter fields.
func (f Filter) Validate() error {
	if f.CompanyID == 0 {
		return shared.ErrCompanyRequired
	}
	return nil
}

// Employee is the minimal projection the eligibility query returns.
type Employee struct {
	ID   int64
	Name string
}

// Voucher records one payroll run: the filter criteria, the pay period, and
// the working roster of employee-to-slip mappings.
type Voucher struct {
	ID             int64
	SourceID       uuid.UUID
	Filter         Filter
	Period         periods.PayPeriod
	PostingDate    time.Time
	CostCenter     string
	Project        string
	AggregateSlips bool
	Status         Status
	SlipsCreated   bool
	SlipsSubmitted bool
	Outstanding    float64
	Roster         []RosterEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate checks the voucher carries everything a payroll run needs.
func (v Voucher) Validate() error {
	if err := v.Filter.Validate(); err != nil {
		return err
	}
	return v.Period.Validate()
}

// LinkedSlipIDs returns the slip IDs of all roster entries holding a link.
func (v Voucher) LinkedSlipIDs() []int64 {
	out := make([]int64, 0, len(v.Roster))
	for _, entry := range v.Roster {
		if entry.SlipID != nil {
			out = append(out, *entry.SlipID)
		}
	}
	return out
}
