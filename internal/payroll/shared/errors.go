package shared

import "errors"

var (
	// ErrCompanyRequired indicates the voucher has no company set.
	ErrCompanyRequired = errors.New("payroll: company is required")
	// ErrPeriodRequired indicates start or end date is unset.
	ErrPeriodRequired = errors.New("payroll: start date and end date are required")
	// ErrVoucherNotFound indicates a missing voucher document.
	ErrVoucherNotFound = errors.New("payroll: voucher not found")
	// ErrSlipNotFound indicates a missing pay slip.
	ErrSlipNotFound = errors.New("payroll: pay slip not found")
	// ErrInvalidStatus indicates the document cannot move to the requested state.
	ErrInvalidStatus = errors.New("payroll: invalid status transition")
	// ErrNegativeNetPay indicates a slip whose net pay is below zero.
	ErrNegativeNetPay = errors.New("payroll: net pay below zero")
	// ErrDuplicateSlip indicates a slip already exists for employee and period.
	ErrDuplicateSlip = errors.New("payroll: slip already exists for employee and period")
	// ErrNoSubmittedSlips indicates a posting was requested with nothing to post.
	ErrNoSubmittedSlips = errors.New("payroll: no submitted slips to post")
	// ErrUnbalanced indicates total debit != total credit after rounding.
	ErrUnbalanced = errors.New("payroll: ledger lines must balance")
	// ErrMissingComponentAccount indicates a salary component with no account
	// configured for the company. Fatal to the whole posting.
	ErrMissingComponentAccount = errors.New("payroll: salary component has no default account")
	// ErrMissingInterestAccount indicates a loan with interest but no interest
	// income account. Fatal to the whole posting.
	ErrMissingInterestAccount = errors.New("payroll: loan interest income account not set")
	// ErrMissingPayableAccount indicates the company default payroll payable
	// account is not configured. Fatal to the whole posting.
	ErrMissingPayableAccount = errors.New("payroll: default payroll payable account not set")
	// ErrMissingRoundOffAccount indicates the company round-off account is not
	// configured. Fatal to the whole posting.
	ErrMissingRoundOffAccount = errors.New("payroll: round-off account not set")
	// ErrPostingAlreadyExists indicates the voucher already has an active GL posting.
	ErrPostingAlreadyExists = errors.New("payroll: voucher already posted")
	// ErrPostingNotFound indicates a cancellation with no original posting.
	ErrPostingNotFound = errors.New("payroll: posting not found")
)
