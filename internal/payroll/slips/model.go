package slips

import (
	"time"

	"github.com/theopen-institute/payroll/internal/payroll/periods"
)

// Status enumerates pay slip lifecycle values.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusCancelled Status = "CANCELLED"
)

// ComponentLine is one earning or deduction on a slip.
type ComponentLine struct {
	ComponentID int64
	Component   string
	Amount      float64
}

// LoanLine is one loan repayment carried on a slip. InterestAccountID is nil
// when the loan has no interest income account configured.
type LoanLine struct {
	LoanID            int64
	EmployeeID        int64
	LoanAccountID     int64
	InterestAccountID *int64
	Principal         float64
	Interest          float64
}

// PaySlip is a per-employee, per-period record of earnings, deductions and
// net pay. The slip body is computed elsewhere; this service only reads it,
// transitions its status and stamps the voucher back-reference.
type PaySlip struct {
	ID           int64
	EmployeeID   int64
	EmployeeName string
	CompanyID    int64
	StartDate    time.Time
	EndDate      time.Time
	Frequency    periods.Frequency
	Status       Status
	NetPay       float64
	Earnings     []ComponentLine
	Deductions   []ComponentLine
	Loans        []LoanLine
	VoucherID    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSlip carries the lineage stamped onto a freshly created draft slip.
type NewSlip struct {
	EmployeeID   int64
	EmployeeName string
	CompanyID    int64
	StartDate    time.Time
	EndDate      time.Time
	Frequency    periods.Frequency
	PostingDate  time.Time
}
