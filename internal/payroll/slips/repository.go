package slips

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/theopen-institute/payroll/internal/payroll/periods"
	"github.com/theopen-institute/payroll/internal/payroll/shared"
)

// Repository is the slip side of the ledger store. Slips persist
// independently of any voucher; the only state this service mutates is the
// status and the voucher back-reference.
type Repository interface {
	// FindForPeriod returns non-cancelled slips for exactly this employee,
	// period and company.
	FindForPeriod(ctx context.Context, employeeID, companyID int64, period periods.PayPeriod) ([]PaySlip, error)
	Get(ctx context.Context, id int64) (PaySlip, error)
	// Insert creates a draft slip. A unique constraint on non-cancelled
	// (employee, start, end, company) backstops concurrent creators; the
	// violation maps to shared.ErrDuplicateSlip.
	Insert(ctx context.Context, in NewSlip) (PaySlip, error)
	// Submit transitions a draft slip to submitted and records the voucher.
	Submit(ctx context.Context, id, voucherID int64) error
	// Cancel transitions a slip to cancelled and clears the voucher link.
	Cancel(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed slip repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const slipColumns = `id, employee_id, employee_name, company_id, start_date, end_date, frequency, status, net_pay, voucher_id, created_at, updated_at`

func (r *repository) FindForPeriod(ctx context.Context, employeeID, companyID int64, period periods.PayPeriod) ([]PaySlip, error) {
	rows, err := r.db.Query(ctx, `SELECT `+slipColumns+` FROM pay_slips
WHERE employee_id=$1 AND company_id=$2 AND start_date=$3 AND end_date=$4 AND status <> 'CANCELLED'
ORDER BY id ASC`, employeeID, companyID, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaySlip
	for rows.Next() {
		slip, err := scanSlip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, slip)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadLines(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *repository) Get(ctx context.Context, id int64) (PaySlip, error) {
	row := r.db.QueryRow(ctx, `SELECT `+slipColumns+` FROM pay_slips WHERE id=$1`, id)
	slip, err := scanSlip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaySlip{}, shared.ErrSlipNotFound
		}
		return PaySlip{}, err
	}
	if err := r.loadLines(ctx, &slip); err != nil {
		return PaySlip{}, err
	}
	return slip, nil
}

func (r *repository) Insert(ctx context.Context, in NewSlip) (PaySlip, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO pay_slips (employee_id, employee_name, company_id, start_date, end_date, frequency, status, posting_date)
VALUES ($1,$2,$3,$4,$5,$6,'DRAFT',$7) RETURNING `+slipColumns,
		in.EmployeeID, in.EmployeeName, in.CompanyID, in.StartDate, in.EndDate, in.Frequency, in.PostingDate)
	slip, err := scanSlip(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PaySlip{}, shared.ErrDuplicateSlip
		}
		return PaySlip{}, err
	}
	return slip, nil
}

func (r *repository) Submit(ctx context.Context, id, voucherID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE pay_slips SET status='SUBMITTED', voucher_id=$2, updated_at=NOW()
WHERE id=$1 AND status='DRAFT'`, id, voucherID)
	if err != nil {
		return fmt.Errorf("slips: submit %d: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

func (r *repository) Cancel(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE pay_slips SET status='CANCELLED', voucher_id=NULL, updated_at=NOW()
WHERE id=$1 AND status <> 'CANCELLED'`, id)
	if err != nil {
		return fmt.Errorf("slips: cancel %d: %w", id, err)
	}
	if cmd.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// transitionError distinguishes a missing slip from a status conflict after
// a guarded UPDATE matched no rows.
func (r *repository) transitionError(ctx context.Context, id int64) error {
	var status Status
	err := r.db.QueryRow(ctx, `SELECT status FROM pay_slips WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrSlipNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: slip %d is %s", shared.ErrInvalidStatus, id, status)
}

func (r *repository) loadLines(ctx context.Context, slip *PaySlip) error {
	rows, err := r.db.Query(ctx, `SELECT kind, component_id, component, amount FROM pay_slip_components
WHERE slip_id=$1 ORDER BY id ASC`, slip.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var line ComponentLine
		if err := rows.Scan(&kind, &line.ComponentID, &line.Component, &line.Amount); err != nil {
			return err
		}
		switch kind {
		case "earning":
			slip.Earnings = append(slip.Earnings, line)
		case "deduction":
			slip.Deductions = append(slip.Deductions, line)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	loanRows, err := r.db.Query(ctx, `SELECT loan_id, employee_id, loan_account_id, interest_account_id, principal, interest
FROM pay_slip_loans WHERE slip_id=$1 ORDER BY id ASC`, slip.ID)
	if err != nil {
		return err
	}
	defer loanRows.Close()
	for loanRows.Next() {
		var loan LoanLine
		if err := loanRows.Scan(&loan.LoanID, &loan.EmployeeID, &loan.LoanAccountID, &loan.InterestAccountID, &loan.Principal, &loan.Interest); err != nil {
			return err
		}
		slip.Loans = append(slip.Loans, loan)
	}
	return loanRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlip(row rowScanner) (PaySlip, error) {
	var s PaySlip
	var freq string
	err := row.Scan(&s.ID, &s.EmployeeID, &s.EmployeeName, &s.CompanyID, &s.StartDate, &s.EndDate, &freq, &s.Status, &s.NetPay, &s.VoucherID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return PaySlip{}, err
	}
	s.Frequency = periods.Frequency(freq)
	return s, nil
}
