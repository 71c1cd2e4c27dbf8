package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/theopen-institute/payroll/internal/payroll/periods"
	"github.com/theopen-institute/payroll/internal/payroll/shared"
	"github.com/theopen-institute/payroll/internal/payroll/slips"
)

// Repository is the general-ledger side of the ledger store: account
// configuration lookups plus the atomic commit of a posting.
type Repository interface {
	// ComponentAccount resolves the ledger account configured for a salary
	// component at a company. shared.ErrMissingComponentAccount when unset.
	ComponentAccount(ctx context.Context, companyID, componentID int64) (int64, error)
	ComponentFlags(ctx context.Context, componentID int64) (ComponentFlags, error)
	// IsPayableAccount resolves the account type classification.
	IsPayableAccount(ctx context.Context, accountID int64) (bool, error)
	// DefaultPayableAccount resolves the company default payroll payable
	// account. shared.ErrMissingPayableAccount when unset.
	DefaultPayableAccount(ctx context.Context, companyID int64) (int64, error)
	// RoundOffAccount resolves the company round-off account and cost
	// center. shared.ErrMissingRoundOffAccount when unset.
	RoundOffAccount(ctx context.Context, companyID int64) (RoundOff, error)
	// Commit writes the posting in one transaction. A regular posting
	// conflicts with an existing active posting for the same voucher; a
	// cancelling posting requires one and marks it cancelled.
	Commit(ctx context.Context, posting Posting) (Posting, error)
}

// PostInput collects everything the poster needs for one voucher.
type PostInput struct {
	VoucherID      int64
	SourceID       uuid.UUID
	CompanyID      int64
	CostCenter     string
	PostingDate    time.Time
	Period         periods.PayPeriod
	Slips          []slips.PaySlip
	AggregateSlips bool
	Cancel         bool
}

// Poster turns a set of finalized pay slips into a balanced ledger posting.
type Poster struct {
	repo   Repository
	logger *slog.Logger
}

// NewPoster builds the posting engine.
func NewPoster(repo Repository, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{repo: repo, logger: logger}
}

// Post builds and commits the ledger posting for the voucher. Any resolution
// failure aborts before a single line reaches the store. With Cancel set the
// identical line set is committed with debit and credit swapped, as the
// compensating transaction against the original posting.
func (p *Poster) Post(ctx context.Context, in PostInput) (Posting, error) {
	submitted := make([]slips.PaySlip, 0, len(in.Slips))
	for _, slip := range in.Slips {
		if slip.Status == slips.StatusSubmitted {
			submitted = append(submitted, slip)
		}
	}
	if len(submitted) == 0 {
		return Posting{}, shared.ErrNoSubmittedSlips
	}

	lines, err := p.buildLines(ctx, in, submitted)
	if err != nil {
		return Posting{}, err
	}

	roundOff, err := p.repo.RoundOffAccount(ctx, in.CompanyID)
	if err != nil {
		return Posting{}, err
	}
	diff := BalanceDiff(lines)
	lines = append(lines, RoundOffLine(diff, roundOff, p.baseLine(in)))

	AnnotateAgainst(lines)
	lines = Merge(lines)
	if in.Cancel {
		lines = Reverse(lines)
	}
	if !Balanced(lines) {
		return Posting{}, shared.ErrUnbalanced
	}

	posting := Posting{
		VoucherID:   in.VoucherID,
		SourceID:    in.SourceID,
		CompanyID:   in.CompanyID,
		PostingDate: in.PostingDate,
		Cancel:      in.Cancel,
		Lines:       lines,
	}
	committed, err := p.repo.Commit(ctx, posting)
	if err != nil {
		return Posting{}, err
	}
	p.logger.Info("payroll posting committed",
		slog.Int64("voucher", in.VoucherID),
		slog.Int("lines", len(lines)),
		slog.Bool("cancel", in.Cancel))
	return committed, nil
}

func (p *Poster) baseLine(in PostInput) Line {
	return Line{
		CostCenter:  in.CostCenter,
		PostingDate: in.PostingDate,
		Remarks: fmt.Sprintf("Accrual for salaries from %s to %s",
			in.Period.Start.Format("2006-01-02"), in.Period.End.Format("2006-01-02")),
	}
}

// contribution is one slip's share of a component total.
type contribution struct {
	slip   *slips.PaySlip
	amount float64
}

type componentTotal struct {
	id     int64
	name   string
	total  float64
	shares []contribution
}

func (p *Poster) buildLines(ctx context.Context, in PostInput, submitted []slips.PaySlip) ([]Line, error) {
	var lines []Line
	base := p.baseLine(in)

	// Earnings debit their component accounts in aggregate. Components that
	// only shape tax withholding stay off the ledger.
	for _, comp := range aggregateComponents(submitted, func(s *slips.PaySlip) []slips.ComponentLine { return s.Earnings }) {
		flags, err := p.repo.ComponentFlags(ctx, comp.id)
		if err != nil {
			return nil, fmt.Errorf("ledger: component %s flags: %w", comp.name, err)
		}
		if flags.SkipPosting() {
			continue
		}
		account, err := p.repo.ComponentAccount(ctx, in.CompanyID, comp.id)
		if err != nil {
			return nil, fmt.Errorf("%w (component %s)", err, comp.name)
		}
		line := base
		line.AccountID = account
		line.Debit = comp.total
		lines = append(lines, line)
	}

	// Deductions credit their component accounts; payable-type accounts are
	// individual liabilities and split per contributing slip with party
	// attribution instead of being commingled.
	for _, comp := range aggregateComponents(submitted, func(s *slips.PaySlip) []slips.ComponentLine { return s.Deductions }) {
		account, err := p.repo.ComponentAccount(ctx, in.CompanyID, comp.id)
		if err != nil {
			return nil, fmt.Errorf("%w (component %s)", err, comp.name)
		}
		payable, err := p.repo.IsPayableAccount(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("ledger: classify account %d: %w", account, err)
		}
		if !payable {
			line := base
			line.AccountID = account
			line.Credit = comp.total
			lines = append(lines, line)
			continue
		}
		for _, share := range comp.shares {
			line := base
			line.AccountID = account
			line.Credit = share.amount
			attachParty(&line, share.slip)
			lines = append(lines, line)
		}
	}

	// Loan repayments credit the loan account per line, interest separately.
	for i := range submitted {
		slip := &submitted[i]
		for _, loan := range slip.Loans {
			line := base
			line.AccountID = loan.LoanAccountID
			line.Credit = loan.Principal
			line.PartyType = PartyTypeEmployee
			employeeID := loan.EmployeeID
			line.PartyID = &employeeID
			lines = append(lines, line)

			if loan.Interest <= 0 {
				continue
			}
			if loan.InterestAccountID == nil {
				return nil, fmt.Errorf("%w (loan %d, employee %d)",
					shared.ErrMissingInterestAccount, loan.LoanID, loan.EmployeeID)
			}
			interest := base
			interest.AccountID = *loan.InterestAccountID
			interest.Credit = loan.Interest
			interest.PartyType = PartyTypeEmployee
			interest.PartyID = &employeeID
			lines = append(lines, interest)
		}
	}

	// Net payable goes to the company default account: one aggregated credit
	// unless the account is payable-type, in which case each slip's net pay
	// becomes its own credit against the employee.
	payableAccount, err := p.repo.DefaultPayableAccount(ctx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	perEmployee := false
	if !in.AggregateSlips {
		perEmployee, err = p.repo.IsPayableAccount(ctx, payableAccount)
		if err != nil {
			return nil, fmt.Errorf("ledger: classify account %d: %w", payableAccount, err)
		}
	}
	if perEmployee {
		for i := range submitted {
			slip := &submitted[i]
			line := base
			line.AccountID = payableAccount
			line.Credit = slip.NetPay
			attachParty(&line, slip)
			lines = append(lines, line)
		}
	} else {
		var total float64
		for _, slip := range submitted {
			total += slip.NetPay
		}
		line := base
		line.AccountID = payableAccount
		line.Credit = total
		lines = append(lines, line)
	}

	return lines, nil
}

func attachParty(line *Line, slip *slips.PaySlip) {
	employeeID := slip.EmployeeID
	slipID := slip.ID
	line.PartyType = PartyTypeEmployee
	line.PartyID = &employeeID
	line.AgainstVoucherID = &slipID
	line.AgainstVoucherType = AgainstVoucherTypeSlip
}

func aggregateComponents(submitted []slips.PaySlip, pick func(*slips.PaySlip) []slips.ComponentLine) []componentTotal {
	byID := make(map[int64]*componentTotal)
	for i := range submitted {
		slip := &submitted[i]
		for _, cl := range pick(slip) {
			agg, ok := byID[cl.ComponentID]
			if !ok {
				agg = &componentTotal{id: cl.ComponentID, name: cl.Component}
				byID[cl.ComponentID] = agg
			}
			agg.total += cl.Amount
			agg.shares = append(agg.shares, contribution{slip: slip, amount: cl.Amount})
		}
	}
	out := make([]componentTotal, 0, len(byID))
	for _, agg := range byID {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
