package voucher

import (
	"time"

	"github.com/theopen-institute/payroll/internal/payroll/periods"
)

const dateLayout = "2006-01-02"

// CreateVoucherRequest is the JSON payload for opening a payroll run.
type CreateVoucherRequest struct {
	CompanyID      int64  `json:"company_id" validate:"required,gt=0"`
	BranchID       *int64 `json:"branch_id,omitempty"`
	DepartmentID   *int64 `json:"department_id,omitempty"`
	DesignationID  *int64 `json:"designation_id,omitempty"`
	Frequency      string `json:"frequency" validate:"required,oneof=Daily Weekly Fortnightly Monthly Bimonthly"`
	StartDate      string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PostingDate    string `json:"posting_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CostCenter     string `json:"cost_center" validate:"required"`
	Project        string `json:"project,omitempty"`
	AggregateSlips bool   `json:"aggregate_slips"`
}

func (r CreateVoucherRequest) toInput() (CreateInput, error) {
	start, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return CreateInput{}, err
	}
	in := CreateInput{
		Filter: Filter{
			CompanyID:     r.CompanyID,
			BranchID:      r.BranchID,
			DepartmentID:  r.DepartmentID,
			DesignationID: r.DesignationID,
			Frequency:     periods.Frequency(r.Frequency),
		},
		StartDate:      start,
		CostCenter:     r.CostCenter,
		Project:        r.Project,
		AggregateSlips: r.AggregateSlips,
	}
	if r.EndDate != "" {
		if in.EndDate, err = time.Parse(dateLayout, r.EndDate); err != nil {
			return CreateInput{}, err
		}
	}
	if r.PostingDate != "" {
		if in.PostingDate, err = time.Parse(dateLayout, r.PostingDate); err != nil {
			return CreateInput{}, err
		}
	}
	return in, nil
}

// RosterEntryResponse is one roster row in API responses.
type RosterEntryResponse struct {
	EmployeeID   int64  `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	SlipID       *int64 `json:"slip_id,omitempty"`
	Status       string `json:"status"`
}

// VoucherResponse is the API shape of a voucher.
type VoucherResponse struct {
	ID             int64                 `json:"id"`
	SourceID       string                `json:"source_id"`
	CompanyID      int64                 `json:"company_id"`
	BranchID       *int64                `json:"branch_id,omitempty"`
	DepartmentID   *int64                `json:"department_id,omitempty"`
	DesignationID  *int64                `json:"designation_id,omitempty"`
	Frequency      string                `json:"frequency"`
	StartDate      string                `json:"start_date"`
	EndDate        string                `json:"end_date"`
	PostingDate    string                `json:"posting_date"`
	CostCenter     string                `json:"cost_center"`
	Project        string                `json:"project,omitempty"`
	AggregateSlips bool                  `json:"aggregate_slips"`
	Status         string                `json:"status"`
	SlipsCreated   bool                  `json:"slips_created"`
	SlipsSubmitted bool                  `json:"slips_submitted"`
	Outstanding    float64               `json:"outstanding"`
	Roster         []RosterEntryResponse `json:"roster,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func toVoucherResponse(v Voucher) VoucherResponse {
	resp := VoucherResponse{
		ID:             v.ID,
		SourceID:       v.SourceID.String(),
		CompanyID:      v.Filter.CompanyID,
		BranchID:       v.Filter.BranchID,
		DepartmentID:   v.Filter.DepartmentID,
		DesignationID:  v.Filter.DesignationID,
		Frequency:      string(v.Filter.Frequency),
		StartDate:      v.Period.Start.Format(dateLayout),
		EndDate:        v.Period.End.Format(dateLayout),
		PostingDate:    v.PostingDate.Format(dateLayout),
		CostCenter:     v.CostCenter,
		Project:        v.Project,
		AggregateSlips: v.AggregateSlips,
		Status:         string(v.Status),
		SlipsCreated:   v.SlipsCreated,
		SlipsSubmitted: v.SlipsSubmitted,
		Outstanding:    v.Outstanding,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
	for _, entry := range v.Roster {
		resp.Roster = append(resp.Roster, RosterEntryResponse{
			EmployeeID:   entry.EmployeeID,
			EmployeeName: entry.EmployeeName,
			SlipID:       entry.SlipID,
			Status:       string(entry.Status),
		})
	}
	return resp
}

// FillRosterResponse carries the refreshed roster plus any warnings the
// reconciliation produced.
type FillRosterResponse struct {
	Voucher  VoucherResponse `json:"voucher"`
	Warnings []string        `json:"warnings,omitempty"`
}

// CreateSlipsResponse reports a slip creation run.
type CreateSlipsResponse struct {
	Dispatched bool   `json:"dispatched"`
	Created    int    `json:"created"`
	Linked     int    `json:"linked"`
	Summary    string `json:"summary,omitempty"`
}

// RejectionResponse names a slip that could not be submitted.
type RejectionResponse struct {
	EmployeeID int64  `json:"employee_id"`
	SlipID     int64  `json:"slip_id"`
	Reason     string `json:"reason"`
}

// SubmitSlipsResponse reports a submission run.
type SubmitSlipsResponse struct {
	Dispatched       bool                `json:"dispatched"`
	Submitted        []int64             `json:"submitted,omitempty"`
	AlreadySubmitted []int64             `json:"already_submitted,omitempty"`
	Rejected         []RejectionResponse `json:"rejected,omitempty"`
	Posted           bool                `json:"posted"`
	Outstanding      float64             `json:"outstanding"`
	Summary          string              `json:"summary,omitempty"`
}

func toSubmitResponse(res SubmitResult) SubmitSlipsResponse {
	out := SubmitSlipsResponse{
		Dispatched:       res.Dispatched,
		Submitted:        res.Submitted,
		AlreadySubmitted: res.AlreadySubmitted,
		Posted:           res.Posted,
		Outstanding:      res.Outstanding,
		Summary:          res.Summary,
	}
	for _, rej := range res.Rejected {
		out.Rejected = append(out.Rejected, RejectionResponse{
			EmployeeID: rej.EmployeeID,
			SlipID:     rej.SlipID,
			Reason:     rej.Reason,
		})
	}
	return out
}
