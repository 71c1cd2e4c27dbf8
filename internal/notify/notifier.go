package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/theopen-institute/payroll/internal/payroll/slips"
	"github.com/theopen-institute/payroll/internal/payroll/voucher"
)

// EmailDirectory resolves an employee's email address. An empty address
// means the employee opted out or has none on file.
type EmailDirectory interface {
	EmployeeEmail(ctx context.Context, employeeID int64) (string, error)
}

// PayslipNotifier emails each employee their slip after submission.
// Delivery is best effort per recipient; one bounce never blocks the rest.
type PayslipNotifier struct {
	mailer    Mailer
	directory EmailDirectory
	logger    *slog.Logger
	enabled   bool
}

// NewPayslipNotifier wires the notifier. When disabled it reports success
// without sending anything.
func NewPayslipNotifier(mailer Mailer, directory EmailDirectory, enabled bool, logger *slog.Logger) *PayslipNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayslipNotifier{mailer: mailer, directory: directory, logger: logger, enabled: enabled}
}

// PayslipsSubmitted implements voucher.Notifier.
func (n *PayslipNotifier) PayslipsSubmitted(ctx context.Context, v voucher.Voucher, submitted []slips.PaySlip) error {
	if !n.enabled {
		return nil
	}
	var failed int
	for _, slip := range submitted {
		if err := n.deliver(ctx, v, slip); err != nil {
			failed++
			n.logger.Error("payslip delivery failed",
				"voucher_id", v.ID, "slip_id", slip.ID, "employee_id", slip.EmployeeID, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("notify: %d of %d payslips failed to deliver", failed, len(submitted))
	}
	return nil
}

func (n *PayslipNotifier) deliver(ctx context.Context, v voucher.Voucher, slip slips.PaySlip) error {
	to, err := n.directory.EmployeeEmail(ctx, slip.EmployeeID)
	if err != nil {
		return err
	}
	if to == "" {
		return nil
	}
	pdf, err := RenderPayslipPDF(slip)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("Pay slip %s to %s",
		slip.StartDate.Format("2006-01-02"), slip.EndDate.Format("2006-01-02"))
	body := fmt.Sprintf("Dear %s,\r\n\r\nYour pay slip for the period %s to %s is attached.\r\n",
		slip.EmployeeName, slip.StartDate.Format("2006-01-02"), slip.EndDate.Format("2006-01-02"))
	return n.mailer.Send(ctx, to, subject, body, Attachment{
		Filename:    fmt.Sprintf("payslip-%d.pdf", slip.ID),
		ContentType: "application/pdf",
		Data:        pdf,
	})
}

type pgDirectory struct {
	db *pgxpool.Pool
}

// NewDirectory builds the pgx-backed email directory.
func NewDirectory(db *pgxpool.Pool) EmailDirectory {
	return &pgDirectory{db: db}
}

func (d *pgDirectory) EmployeeEmail(ctx context.Context, employeeID int64) (string, error) {
	var email *string
	err := d.db.QueryRow(ctx, `SELECT email FROM employees WHERE id=$1`, employeeID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if email == nil {
		return "", nil
	}
	return *email, nil
}
