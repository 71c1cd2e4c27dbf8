package notify

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/theopen-institute/payroll/internal/payroll/slips"
)

// RenderPayslipPDF renders a single pay slip as an A4 PDF.
func RenderPayslipPDF(slip slips.PaySlip) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Pay Slip")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s", slip.EmployeeName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s to %s",
		slip.StartDate.Format("2006-01-02"), slip.EndDate.Format("2006-01-02")))
	pdf.Ln(10)

	renderSection := func(title string, lines []slips.ComponentLine) {
		if len(lines) == 0 {
			return
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, title)
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		for _, line := range lines {
			pdf.Cell(120, 7, line.Component)
			pdf.CellFormat(40, 7, fmt.Sprintf("%.2f", line.Amount), "", 0, "R", false, 0, "")
			pdf.Ln(7)
		}
		pdf.Ln(3)
	}
	renderSection("Earnings", slip.Earnings)
	renderSection("Deductions", slip.Deductions)

	if len(slip.Loans) > 0 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "Loan Repayments")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 11)
		for _, loan := range slip.Loans {
			pdf.Cell(120, 7, fmt.Sprintf("Loan %d", loan.LoanID))
			pdf.CellFormat(40, 7, fmt.Sprintf("%.2f", loan.Principal+loan.Interest), "", 0, "R", false, 0, "")
			pdf.Ln(7)
		}
		pdf.Ln(3)
	}

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(120, 9, "Net Pay")
	pdf.CellFormat(40, 9, fmt.Sprintf("%.2f", slip.NetPay), "", 0, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("notify: render payslip pdf: %w", err)
	}
	return buf.Bytes(), nil
}
