package voucher

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/theopen-institute/payroll/internal/payroll/periods"
	"github.com/theopen-institute/payroll/internal/payroll/shared"
	"github.com/theopen-institute/payroll/internal/platform/db"
)

// Repository persists vouchers and answers the eligibility query.
type Repository interface {
	Create(ctx context.Context, v Voucher) (Voucher, error)
	Get(ctx context.Context, id int64) (Voucher, error)
	List(ctx context.Context) ([]Voucher, error)
	// ReplaceRoster rewrites the voucher's roster rows atomically.
	ReplaceRoster(ctx context.Context, voucherID int64, roster []RosterEntry) error
	SetStatus(ctx context.Context, voucherID int64, status Status) error
	SetSlipsCreated(ctx context.Context, voucherID int64) error
	SetSlipsSubmitted(ctx context.Context, voucherID int64, outstanding float64) error
	// EligibleEmployees returns employees holding an active compensation
	// structure assignment overlapping the period, scoped by the filter.
	EligibleEmployees(ctx context.Context, f Filter, period periods.PayPeriod) ([]Employee, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the pgx-backed voucher repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const voucherColumns = `id, source_id, company_id, branch_id, department_id, designation_id, frequency,
start_date, end_date, posting_date, cost_center, project, aggregate_slips, status,
slips_created, slips_submitted, outstanding, created_at, updated_at`

func (r *repository) Create(ctx context.Context, v Voucher) (Voucher, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO payroll_vouchers
(source_id, company_id, branch_id, department_id, designation_id, frequency, start_date, end_date,
 posting_date, cost_center, project, aggregate_slips, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,'DRAFT')
RETURNING `+voucherColumns,
		v.SourceID, v.Filter.CompanyID, v.Filter.BranchID, v.Filter.DepartmentID, v.Filter.DesignationID,
		v.Filter.Frequency, v.Period.Start, v.Period.End, v.PostingDate, v.CostCenter, v.Project, v.AggregateSlips)
	created, err := scanVoucher(row)
	if err != nil {
		return Voucher{}, err
	}
	return created, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Voucher, error) {
	row := r.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM payroll_vouchers WHERE id=$1`, id)
	v, err := scanVoucher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, shared.ErrVoucherNotFound
		}
		return Voucher{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT employee_id, employee_name, slip_id, status
FROM payroll_voucher_slips WHERE voucher_id=$1 ORDER BY idx ASC`, id)
	if err != nil {
		return Voucher{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry RosterEntry
		if err := rows.Scan(&entry.EmployeeID, &entry.EmployeeName, &entry.SlipID, &entry.Status); err != nil {
			return Voucher{}, err
		}
		v.Roster = append(v.Roster, entry)
	}
	return v, rows.Err()
}

func (r *repository) List(ctx context.Context) ([]Voucher, error) {
	rows, err := r.db.Query(ctx, `SELECT `+voucherColumns+` FROM payroll_vouchers ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repository) ReplaceRoster(ctx context.Context, voucherID int64, roster []RosterEntry) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM payroll_voucher_slips WHERE voucher_id=$1`, voucherID); err != nil {
			return err
		}
		for idx, entry := range roster {
			if _, err := tx.Exec(ctx, `INSERT INTO payroll_voucher_slips (voucher_id, idx, employee_id, employee_name, slip_id, status)
VALUES ($1,$2,$3,$4,$5,$6)`, voucherID, idx, entry.EmployeeID, entry.EmployeeName, entry.SlipID, entry.Status); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `UPDATE payroll_vouchers SET updated_at=NOW() WHERE id=$1`, voucherID); err != nil {
			return err
		}
		return nil
	})
}

func (r *repository) SetStatus(ctx context.Context, voucherID int64, status Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE payroll_vouchers SET status=$2, updated_at=NOW() WHERE id=$1`, voucherID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrVoucherNotFound
	}
	return nil
}

func (r *repository) SetSlipsCreated(ctx context.Context, voucherID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE payroll_vouchers SET slips_created=TRUE, updated_at=NOW() WHERE id=$1`, voucherID)
	return err
}

func (r *repository) SetSlipsSubmitted(ctx context.Context, voucherID int64, outstanding float64) error {
	_, err := r.db.Exec(ctx, `UPDATE payroll_vouchers SET slips_submitted=TRUE, outstanding=$2, updated_at=NOW() WHERE id=$1`,
		voucherID, fmt.Sprintf("%.2f", outstanding))
	return err
}

// EligibleEmployees matches active structure assignments against the pay
// period. The overlap test is a three-way OR: either period boundary falls
// inside the assignment interval, or the assignment starts inside the
// period. Open-ended assignments are treated as unbounded.
func (r *repository) EligibleEmployees(ctx context.Context, f Filter, period periods.PayPeriod) ([]Employee, error) {
	query := `SELECT DISTINCT e.id, e.name
FROM employees e
JOIN structure_assignments sa ON sa.employee_id = e.id
WHERE sa.active
  AND e.company_id = $1
  AND (
       $2::date BETWEEN sa.from_date AND COALESCE(sa.to_date, 'infinity'::date)
    OR $3::date BETWEEN sa.from_date AND COALESCE(sa.to_date, 'infinity'::date)
    OR sa.from_date BETWEEN $2::date AND $3::date
  )`
	args := []any{f.CompanyID, period.Start, period.End}
	if f.BranchID != nil {
		args = append(args, *f.BranchID)
		query += fmt.Sprintf(" AND e.branch_id = $%d", len(args))
	}
	if f.DepartmentID != nil {
		args = append(args, *f.DepartmentID)
		query += fmt.Sprintf(" AND e.department_id = $%d", len(args))
	}
	if f.DesignationID != nil {
		args = append(args, *f.DesignationID)
		query += fmt.Sprintf(" AND e.designation_id = $%d", len(args))
	}
	if f.Frequency != "" {
		args = append(args, f.Frequency)
		query += fmt.Sprintf(" AND sa.payroll_frequency = $%d", len(args))
	}
	query += " ORDER BY e.id ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		var emp Employee
		if err := rows.Scan(&emp.ID, &emp.Name); err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row rowScanner) (Voucher, error) {
	var v Voucher
	var freq string
	err := row.Scan(&v.ID, &v.SourceID, &v.Filter.CompanyID, &v.Filter.BranchID, &v.Filter.DepartmentID,
		&v.Filter.DesignationID, &freq, &v.Period.Start, &v.Period.End, &v.PostingDate, &v.CostCenter,
		&v.Project, &v.AggregateSlips, &v.Status, &v.SlipsCreated, &v.SlipsSubmitted, &v.Outstanding,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Voucher{}, err
	}
	v.Filter.Frequency = periods.Frequency(freq)
	v.Period.Frequency = periods.Frequency(freq)
	return v, nil
}
