package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/message"

	"github.com/theopen-institute/payroll/internal/payroll/ledger"
	"github.com/theopen-institute/payroll/internal/payroll/periods"
	"github.com/theopen-institute/payroll/internal/payroll/shared"
	"github.com/theopen-institute/payroll/internal/payroll/slips"
)

// Dispatcher hands voucher batch work to the background queue.
type Dispatcher interface {
	EnqueueCreateSlips(ctx context.Context, voucherID int64) error
	EnqueueSubmitSlips(ctx context.Context, voucherID int64) error
	EnqueueEmailPayslips(ctx context.Context, voucherID int64) error
}

// ProgressSink reports batch progress so operators can watch long runs.
// Implementations must tolerate best-effort delivery; publishing never
// blocks or fails the run itself.
type ProgressSink interface {
	Publish(ctx context.Context, voucherID int64, stage string, done, total int)
	Finish(ctx context.Context, voucherID int64, stage string)
}

// Notifier delivers payslips to employees after a successful submission.
type Notifier interface {
	PayslipsSubmitted(ctx context.Context, v Voucher, submitted []slips.PaySlip) error
}

// Metrics counts domain events. All methods must accept a nil-safe
// zero-value implementation.
type Metrics interface {
	CountPosting(kind string)
	CountSlips(outcome string, n int)
}

type noopMetrics struct{}

func (noopMetrics) CountPosting(string)    {}
func (noopMetrics) CountSlips(string, int) {}

// Service orchestrates the payroll run: eligibility, roster reconciliation,
// slip creation and submission, ledger posting, and cancellation.
type Service struct {
	repo       Repository
	slips      slips.Repository
	poster     *ledger.Poster
	dispatcher Dispatcher
	progress   ProgressSink
	notifier   Notifier
	logger     *slog.Logger
	printer    *message.Printer
	metrics    Metrics
	calendar   periods.FiscalCalendar
	threshold  int
	now        func() time.Time
}

// WithMetrics attaches a domain metrics sink.
func (s *Service) WithMetrics(m Metrics) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}

// NewService wires the voucher service. A nil dispatcher disables background
// dispatch and every batch runs inline regardless of size.
func NewService(repo Repository, slipStore slips.Repository, poster *ledger.Poster,
	dispatcher Dispatcher, progress ProgressSink, notifier Notifier,
	calendar periods.FiscalCalendar, threshold int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = 30
	}
	return &Service{
		repo:       repo,
		slips:      slipStore,
		poster:     poster,
		dispatcher: dispatcher,
		progress:   progress,
		notifier:   notifier,
		logger:     logger,
		printer:    message.NewPrinter(message.MatchLanguage("en")),
		metrics:    noopMetrics{},
		calendar:   calendar,
		threshold:  threshold,
		now:        time.Now,
	}
}

// CreateInput carries everything a new voucher needs. EndDate may be zero,
// in which case the period end is derived from StartDate and the frequency.
type CreateInput struct {
	Filter         Filter
	StartDate      time.Time
	EndDate        time.Time
	PostingDate    time.Time
	CostCenter     string
	Project        string
	AggregateSlips bool
}

// Create validates the input, derives the pay period when the caller left
// the end date open, and persists a draft voucher.
func (s *Service) Create(ctx context.Context, in CreateInput) (Voucher, error) {
	if err := in.Filter.Validate(); err != nil {
		return Voucher{}, err
	}
	if !in.Filter.Frequency.Valid() {
		return Voucher{}, fmt.Errorf("voucher: unknown payroll frequency %q", in.Filter.Frequency)
	}
	period := periods.PayPeriod{Start: in.StartDate, End: in.EndDate, Frequency: in.Filter.Frequency}
	if in.EndDate.IsZero() {
		derived, err := periods.PeriodFrom(in.Filter.Frequency, in.StartDate, s.calendar)
		if err != nil {
			return Voucher{}, err
		}
		period = derived
	}
	if err := period.Validate(); err != nil {
		return Voucher{}, err
	}
	posting := in.PostingDate
	if posting.IsZero() {
		posting = s.now()
	}
	v := Voucher{
		SourceID:       uuid.New(),
		Filter:         in.Filter,
		Period:         period,
		PostingDate:    posting,
		CostCenter:     in.CostCenter,
		Project:        in.Project,
		AggregateSlips: in.AggregateSlips,
		Status:         StatusDraft,
	}
	created, err := s.repo.Create(ctx, v)
	if err != nil {
		return Voucher{}, fmt.Errorf("voucher: create: %w", err)
	}
	s.logger.Info("voucher created", "voucher_id", created.ID,
		"company_id", created.Filter.CompanyID, "frequency", created.Filter.Frequency,
		"start", created.Period.Start.Format("2006-01-02"), "end", created.Period.End.Format("2006-01-02"))
	return created, nil
}

// Get loads a voucher with its roster.
func (s *Service) Get(ctx context.Context, id int64) (Voucher, error) {
	return s.repo.Get(ctx, id)
}

// List returns all vouchers, newest first, without rosters.
func (s *Service) List(ctx context.Context) ([]Voucher, error) {
	return s.repo.List(ctx)
}

// FillRoster resolves the eligible employee set, merges it into the roster,
// and links any slips already covering the period. Running it again is a
// no-op when nothing underneath changed. Ambiguous matches come back as
// warnings and leave the entry untouched.
func (s *Service) FillRoster(ctx context.Context, id int64) (Voucher, []string, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return Voucher{}, nil, err
	}
	if v.Status != StatusDraft {
		return Voucher{}, nil, shared.ErrInvalidStatus
	}
	eligible, err := s.repo.EligibleEmployees(ctx, v.Filter, v.Period)
	if err != nil {
		return Voucher{}, nil, fmt.Errorf("voucher: resolve eligible employees: %w", err)
	}
	roster, warnings, err := linkSlips(ctx, s.slips, mergeRoster(v.Roster, eligible), v.Filter.CompanyID, v.Period)
	if err != nil {
		return Voucher{}, nil, err
	}
	if err := s.repo.ReplaceRoster(ctx, v.ID, roster); err != nil {
		return Voucher{}, nil, fmt.Errorf("voucher: replace roster: %w", err)
	}
	v.Roster = roster
	s.logger.Info("roster filled", "voucher_id", v.ID, "entries", len(roster), "warnings", len(warnings))
	return v, warnings, nil
}

// CreateResult reports the outcome of a slip creation run.
type CreateResult struct {
	Dispatched bool
	Created    int
	Linked     int
	Summary    string
}

// CreateMissingSlips creates a draft slip for every roster entry still
// missing one. Runs larger than the batch threshold are handed to the
// background queue instead of running inline.
func (s *Service) CreateMissingSlips(ctx context.Context, id int64) (CreateResult, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return CreateResult{}, err
	}
	if v.Status != StatusDraft {
		return CreateResult{}, shared.ErrInvalidStatus
	}
	missing := 0
	for _, entry := range v.Roster {
		if entry.Status == RosterMissing {
			missing++
		}
	}
	if s.dispatcher != nil && missing > s.threshold {
		if err := s.dispatcher.EnqueueCreateSlips(ctx, v.ID); err != nil {
			return CreateResult{}, fmt.Errorf("voucher: enqueue slip creation: %w", err)
		}
		s.logger.Info("slip creation dispatched", "voucher_id", v.ID, "missing", missing)
		return CreateResult{Dispatched: true}, nil
	}
	return s.RunCreateSlips(ctx, v.ID)
}

// RunCreateSlips performs the creation batch inline. The worker calls it
// directly for dispatched runs. Entries whose slip appeared concurrently
// are linked instead of duplicated; the store's unique constraint backstops
// the remaining race window.
func (s *Service) RunCreateSlips(ctx context.Context, id int64) (CreateResult, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return CreateResult{}, err
	}
	var res CreateResult
	roster := make([]RosterEntry, len(v.Roster))
	copy(roster, v.Roster)
	total := len(roster)
	for i := range roster {
		s.publishProgress(ctx, v.ID, "create", i, total)
		if roster[i].Status != RosterMissing {
			continue
		}
		slip, linked, err := s.createOrLink(ctx, v, roster[i])
		if err != nil {
			return res, err
		}
		roster[i].SlipID = &slip.ID
		roster[i].Status = rosterStatusOf(slip.Status)
		if linked {
			res.Linked++
		} else {
			res.Created++
		}
	}
	if err := s.repo.ReplaceRoster(ctx, v.ID, roster); err != nil {
		return res, fmt.Errorf("voucher: replace roster: %w", err)
	}
	if err := s.repo.SetSlipsCreated(ctx, v.ID); err != nil {
		return res, err
	}
	s.finishProgress(ctx, v.ID, "create")
	s.metrics.CountSlips("created", res.Created)
	res.Summary = s.printer.Sprintf("%d slips created, %d linked to existing slips", res.Created, res.Linked)
	s.logger.Info("slips created", "voucher_id", v.ID, "created", res.Created, "linked", res.Linked)
	return res, nil
}

func (s *Service) createOrLink(ctx context.Context, v Voucher, entry RosterEntry) (slips.PaySlip, bool, error) {
	slip, err := s.slips.Insert(ctx, slips.NewSlip{
		EmployeeID:   entry.EmployeeID,
		EmployeeName: entry.EmployeeName,
		CompanyID:    v.Filter.CompanyID,
		StartDate:    v.Period.Start,
		EndDate:      v.Period.End,
		Frequency:    v.Period.Frequency,
		PostingDate:  v.PostingDate,
	})
	if err == nil {
		return slip, false, nil
	}
	if !errors.Is(err, shared.ErrDuplicateSlip) {
		return slips.PaySlip{}, false, fmt.Errorf("voucher: create slip for employee %d: %w", entry.EmployeeID, err)
	}
	// Lost the race to a concurrent run; adopt the winner's slip.
	matches, ferr := s.slips.FindForPeriod(ctx, entry.EmployeeID, v.Filter.CompanyID, v.Period)
	if ferr != nil {
		return slips.PaySlip{}, false, ferr
	}
	if len(matches) == 0 {
		return slips.PaySlip{}, false, fmt.Errorf("voucher: create slip for employee %d: %w", entry.EmployeeID, err)
	}
	return matches[0], true, nil
}

// Rejection names a slip that could not be submitted and why.
type Rejection struct {
	EmployeeID int64
	SlipID     int64
	Reason     string
}

// SubmitResult reports the outcome of a submission run. Slips found already
// submitted (a retried run, or a concurrent one) are posted and counted into
// Outstanding but reported apart from the ones this run submitted.
type SubmitResult struct {
	Dispatched       bool
	Submitted        []int64
	AlreadySubmitted []int64
	Rejected         []Rejection
	Posted           bool
	Outstanding      float64
	Summary          string
}

// SubmitSlips submits every linked draft slip, posts the accrual to the
// ledger, and notifies employees. Runs larger than the batch threshold are
// handed to the background queue.
func (s *Service) SubmitSlips(ctx context.Context, id int64) (SubmitResult, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	if v.Status != StatusDraft {
		return SubmitResult{}, shared.ErrInvalidStatus
	}
	pending := 0
	for _, entry := range v.Roster {
		if entry.SlipID != nil && entry.Status == RosterDraft {
			pending++
		}
	}
	if s.dispatcher != nil && pending > s.threshold {
		if err := s.dispatcher.EnqueueSubmitSlips(ctx, v.ID); err != nil {
			return SubmitResult{}, fmt.Errorf("voucher: enqueue slip submission: %w", err)
		}
		s.logger.Info("slip submission dispatched", "voucher_id", v.ID, "pending", pending)
		return SubmitResult{Dispatched: true}, nil
	}
	return s.RunSubmitSlips(ctx, v.ID)
}

// RunSubmitSlips performs the submission batch inline. Slips with a negative
// net pay are rejected rather than failing the run; everything that does
// submit is posted to the ledger in one balanced posting.
func (s *Service) RunSubmitSlips(ctx context.Context, id int64) (SubmitResult, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	var res SubmitResult
	var submitted []slips.PaySlip
	roster := make([]RosterEntry, len(v.Roster))
	copy(roster, v.Roster)
	total := len(roster)
	for i := range roster {
		s.publishProgress(ctx, v.ID, "submit", i, total)
		entry := roster[i]
		if entry.SlipID == nil {
			continue
		}
		slip, err := s.slips.Get(ctx, *entry.SlipID)
		if err != nil {
			return res, fmt.Errorf("voucher: load slip %d: %w", *entry.SlipID, err)
		}
		switch slip.Status {
		case slips.StatusSubmitted:
			submitted = append(submitted, slip)
			roster[i].Status = RosterSubmitted
			res.AlreadySubmitted = append(res.AlreadySubmitted, slip.ID)
			continue
		case slips.StatusCancelled:
			roster[i].Status = RosterCancelled
			continue
		}
		if slip.NetPay < 0 {
			res.Rejected = append(res.Rejected, Rejection{
				EmployeeID: slip.EmployeeID,
				SlipID:     slip.ID,
				Reason:     s.printer.Sprintf("net pay %.2f is below zero", slip.NetPay),
			})
			s.logger.Warn("slip rejected", "voucher_id", v.ID, "slip_id", slip.ID,
				"employee_id", slip.EmployeeID, "net_pay", slip.NetPay)
			continue
		}
		if err := s.slips.Submit(ctx, slip.ID, v.ID); err != nil {
			res.Rejected = append(res.Rejected, Rejection{
				EmployeeID: slip.EmployeeID,
				SlipID:     slip.ID,
				Reason:     err.Error(),
			})
			continue
		}
		slip.Status = slips.StatusSubmitted
		vid := v.ID
		slip.VoucherID = &vid
		submitted = append(submitted, slip)
		roster[i].Status = RosterSubmitted
		res.Submitted = append(res.Submitted, slip.ID)
	}
	s.finishProgress(ctx, v.ID, "submit")

	if len(submitted) == 0 {
		// Nothing to post, but the outcome still has to land: the roster
		// statuses and the per-slip reasons are the operator's only record
		// of why the run came up empty.
		if err := s.repo.ReplaceRoster(ctx, v.ID, roster); err != nil {
			return res, fmt.Errorf("voucher: replace roster: %w", err)
		}
		res.Summary = s.submitSummary(res)
		s.logger.Warn("no slips submitted", "voucher_id", v.ID, "rejected", len(res.Rejected))
		return res, shared.ErrNoSubmittedSlips
	}

	if _, err := s.poster.Post(ctx, ledger.PostInput{
		VoucherID:      v.ID,
		SourceID:       v.SourceID,
		CompanyID:      v.Filter.CompanyID,
		CostCenter:     v.CostCenter,
		PostingDate:    v.PostingDate,
		Period:         v.Period,
		Slips:          submitted,
		AggregateSlips: v.AggregateSlips,
	}); err != nil {
		// Slips stay submitted; the posting is retried once the
		// configuration gap is fixed.
		return res, fmt.Errorf("voucher: post accrual: %w", err)
	}
	res.Posted = true
	s.metrics.CountPosting("posting")
	s.metrics.CountSlips("submitted", len(res.Submitted))
	s.metrics.CountSlips("rejected", len(res.Rejected))

	for _, slip := range submitted {
		res.Outstanding += slip.NetPay
	}
	if err := s.repo.ReplaceRoster(ctx, v.ID, roster); err != nil {
		return res, fmt.Errorf("voucher: replace roster: %w", err)
	}
	if err := s.repo.SetSlipsSubmitted(ctx, v.ID, res.Outstanding); err != nil {
		return res, err
	}
	if err := s.repo.SetStatus(ctx, v.ID, StatusSubmitted); err != nil {
		return res, err
	}
	v.Roster = roster
	v.Status = StatusSubmitted

	// Email delivery runs off the request path when a queue is attached.
	if s.notifier != nil {
		switch {
		case s.dispatcher != nil:
			if err := s.dispatcher.EnqueueEmailPayslips(ctx, v.ID); err != nil {
				s.logger.Error("enqueue payslip emails", "voucher_id", v.ID, "error", err)
			}
		default:
			if err := s.notifier.PayslipsSubmitted(ctx, v, submitted); err != nil {
				s.logger.Error("payslip notification failed", "voucher_id", v.ID, "error", err)
			}
		}
	}
	res.Summary = s.submitSummary(res)
	s.logger.Info("slips submitted", "voucher_id", v.ID,
		"submitted", len(res.Submitted), "already_submitted", len(res.AlreadySubmitted),
		"rejected", len(res.Rejected), "outstanding", res.Outstanding)
	return res, nil
}

func (s *Service) submitSummary(res SubmitResult) string {
	if n := len(res.AlreadySubmitted); n > 0 {
		return s.printer.Sprintf("%d slips submitted (%d already submitted), %d rejected, %.2f outstanding",
			len(res.Submitted), n, len(res.Rejected), res.Outstanding)
	}
	return s.printer.Sprintf("%d slips submitted, %d rejected, %.2f outstanding",
		len(res.Submitted), len(res.Rejected), res.Outstanding)
}

// RunEmailPayslips delivers payslips for an already-submitted voucher. The
// worker runs this after SubmitSlips has posted and enqueued delivery.
func (s *Service) RunEmailPayslips(ctx context.Context, voucherID int64) error {
	if s.notifier == nil {
		return nil
	}
	v, err := s.repo.Get(ctx, voucherID)
	if err != nil {
		return err
	}
	if v.Status != StatusSubmitted {
		return shared.ErrInvalidStatus
	}
	var submitted []slips.PaySlip
	for _, slipID := range v.LinkedSlipIDs() {
		slip, err := s.slips.Get(ctx, slipID)
		if err != nil {
			return fmt.Errorf("voucher: load slip %d: %w", slipID, err)
		}
		if slip.Status == slips.StatusSubmitted {
			submitted = append(submitted, slip)
		}
	}
	if len(submitted) == 0 {
		return nil
	}
	return s.notifier.PayslipsSubmitted(ctx, v, submitted)
}

// Cancel reverses a submitted voucher: a counter-posting voids the accrual,
// then every linked slip is cancelled and unlinked from the roster.
func (s *Service) Cancel(ctx context.Context, id int64) (Voucher, error) {
	v, err := s.repo.Get(ctx, id)
	if err != nil {
		return Voucher{}, err
	}
	if v.Status != StatusSubmitted {
		return Voucher{}, shared.ErrInvalidStatus
	}
	var linked []slips.PaySlip
	for _, slipID := range v.LinkedSlipIDs() {
		slip, err := s.slips.Get(ctx, slipID)
		if err != nil {
			return Voucher{}, fmt.Errorf("voucher: load slip %d: %w", slipID, err)
		}
		linked = append(linked, slip)
	}
	if _, err := s.poster.Post(ctx, ledger.PostInput{
		VoucherID:      v.ID,
		SourceID:       v.SourceID,
		CompanyID:      v.Filter.CompanyID,
		CostCenter:     v.CostCenter,
		PostingDate:    v.PostingDate,
		Period:         v.Period,
		Slips:          linked,
		AggregateSlips: v.AggregateSlips,
		Cancel:         true,
	}); err != nil {
		return Voucher{}, fmt.Errorf("voucher: reverse accrual: %w", err)
	}
	s.metrics.CountPosting("cancellation")
	roster := make([]RosterEntry, len(v.Roster))
	copy(roster, v.Roster)
	for i := range roster {
		if roster[i].SlipID == nil {
			continue
		}
		if err := s.slips.Cancel(ctx, *roster[i].SlipID); err != nil && !errors.Is(err, shared.ErrInvalidStatus) {
			return Voucher{}, fmt.Errorf("voucher: cancel slip %d: %w", *roster[i].SlipID, err)
		}
		roster[i].SlipID = nil
		roster[i].Status = RosterCancelled
	}
	if err := s.repo.ReplaceRoster(ctx, v.ID, roster); err != nil {
		return Voucher{}, fmt.Errorf("voucher: replace roster: %w", err)
	}
	if err := s.repo.SetStatus(ctx, v.ID, StatusCancelled); err != nil {
		return Voucher{}, err
	}
	v.Roster = roster
	v.Status = StatusCancelled
	s.metrics.CountSlips("cancelled", len(linked))
	s.logger.Info("voucher cancelled", "voucher_id", v.ID, "slips", len(linked))
	return v, nil
}

func (s *Service) publishProgress(ctx context.Context, voucherID int64, stage string, done, total int) {
	if s.progress != nil {
		s.progress.Publish(ctx, voucherID, stage, done, total)
	}
}

func (s *Service) finishProgress(ctx context.Context, voucherID int64, stage string) {
	if s.progress != nil {
		s.progress.Finish(ctx, voucherID, stage)
	}
}
