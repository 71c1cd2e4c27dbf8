package voucher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/theopen-institute/payroll/internal/payroll/ledger"
	"github.com/theopen-institute/payroll/internal/payroll/periods"
	"github.com/theopen-institute/payroll/internal/payroll/shared"
	"github.com/theopen-institute/payroll/internal/payroll/slips"
)

type memVoucherRepo struct {
	nextID   int64
	vouchers map[int64]*Voucher
	eligible []Employee
}

func newMemVoucherRepo() *memVoucherRepo {
	return &memVoucherRepo{vouchers: make(map[int64]*Voucher)}
}

func (r *memVoucherRepo) Create(ctx context.Context, v Voucher) (Voucher, error) {
	r.nextID++
	v.ID = r.nextID
	v.CreatedAt = time.Now()
	v.UpdatedAt = v.CreatedAt
	stored := v
	r.vouchers[v.ID] = &stored
	return v, nil
}

func (r *memVoucherRepo) Get(ctx context.Context, id int64) (Voucher, error) {
	v, ok := r.vouchers[id]
	if !ok {
		return Voucher{}, shared.ErrVoucherNotFound
	}
	out := *v
	out.Roster = make([]RosterEntry, len(v.Roster))
	copy(out.Roster, v.Roster)
	return out, nil
}

func (r *memVoucherRepo) List(ctx context.Context) ([]Voucher, error) {
	out := make([]Voucher, 0, len(r.vouchers))
	for _, v := range r.vouchers {
		out = append(out, *v)
	}
	return out, nil
}

func (r *memVoucherRepo) ReplaceRoster(ctx context.Context, voucherID int64, roster []RosterEntry) error {
	v, ok := r.vouchers[voucherID]
	if !ok {
		return shared.ErrVoucherNotFound
	}
	v.Roster = make([]RosterEntry, len(roster))
	copy(v.Roster, roster)
	return nil
}

func (r *memVoucherRepo) SetStatus(ctx context.Context, voucherID int64, status Status) error {
	v, ok := r.vouchers[voucherID]
	if !ok {
		return shared.ErrVoucherNotFound
	}
	v.Status = status
	return nil
}

func (r *memVoucherRepo) SetSlipsCreated(ctx context.Context, voucherID int64) error {
	v, ok := r.vouchers[voucherID]
	if !ok {
		return shared.ErrVoucherNotFound
	}
	v.SlipsCreated = true
	return nil
}

func (r *memVoucherRepo) SetSlipsSubmitted(ctx context.Context, voucherID int64, outstanding float64) error {
	v, ok := r.vouchers[voucherID]
	if !ok {
		return shared.ErrVoucherNotFound
	}
	v.SlipsSubmitted = true
	v.Outstanding = outstanding
	return nil
}

func (r *memVoucherRepo) EligibleEmployees(ctx context.Context, f Filter, period periods.PayPeriod) ([]Employee, error) {
	return r.eligible, nil
}

type memSlipRepo struct {
	nextID    int64
	slips     map[int64]*slips.PaySlip
	netPayFor map[int64]float64
	// raceFor simulates a concurrent run winning the insert once.
	raceFor map[int64]bool
}

func newMemSlipRepo() *memSlipRepo {
	return &memSlipRepo{
		slips:     make(map[int64]*slips.PaySlip),
		netPayFor: make(map[int64]float64),
		raceFor:   make(map[int64]bool),
	}
}

func (r *memSlipRepo) add(employeeID, companyID int64, period periods.PayPeriod, status slips.Status, netPay float64) int64 {
	r.nextID++
	r.slips[r.nextID] = &slips.PaySlip{
		ID:           r.nextID,
		EmployeeID:   employeeID,
		EmployeeName: fmt.Sprintf("Employee %d", employeeID),
		CompanyID:    companyID,
		StartDate:    period.Start,
		EndDate:      period.End,
		Frequency:    period.Frequency,
		Status:       status,
		NetPay:       netPay,
		Earnings:     []slips.ComponentLine{{ComponentID: 1, Component: "Basic", Amount: netPay}},
	}
	return r.nextID
}

func (r *memSlipRepo) FindForPeriod(ctx context.Context, employeeID, companyID int64, period periods.PayPeriod) ([]slips.PaySlip, error) {
	var out []slips.PaySlip
	for _, s := range r.slips {
		if s.EmployeeID == employeeID && s.CompanyID == companyID &&
			s.StartDate.Equal(period.Start) && s.EndDate.Equal(period.End) &&
			s.Status != slips.StatusCancelled {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSlipRepo) Get(ctx context.Context, id int64) (slips.PaySlip, error) {
	s, ok := r.slips[id]
	if !ok {
		return slips.PaySlip{}, shared.ErrSlipNotFound
	}
	return *s, nil
}

func (r *memSlipRepo) Insert(ctx context.Context, in slips.NewSlip) (slips.PaySlip, error) {
	if r.raceFor[in.EmployeeID] {
		delete(r.raceFor, in.EmployeeID)
		period := periods.PayPeriod{Start: in.StartDate, End: in.EndDate, Frequency: in.Frequency}
		r.add(in.EmployeeID, in.CompanyID, period, slips.StatusDraft, r.netPayFor[in.EmployeeID])
		return slips.PaySlip{}, shared.ErrDuplicateSlip
	}
	for _, s := range r.slips {
		if s.EmployeeID == in.EmployeeID && s.CompanyID == in.CompanyID &&
			s.StartDate.Equal(in.StartDate) && s.EndDate.Equal(in.EndDate) &&
			s.Status != slips.StatusCancelled {
			return slips.PaySlip{}, shared.ErrDuplicateSlip
		}
	}
	period := periods.PayPeriod{Start: in.StartDate, End: in.EndDate, Frequency: in.Frequency}
	id := r.add(in.EmployeeID, in.CompanyID, period, slips.StatusDraft, r.netPayFor[in.EmployeeID])
	return *r.slips[id], nil
}

func (r *memSlipRepo) Submit(ctx context.Context, id, voucherID int64) error {
	s, ok := r.slips[id]
	if !ok {
		return shared.ErrSlipNotFound
	}
	if s.Status != slips.StatusDraft {
		return shared.ErrInvalidStatus
	}
	s.Status = slips.StatusSubmitted
	s.VoucherID = &voucherID
	return nil
}

func (r *memSlipRepo) Cancel(ctx context.Context, id int64) error {
	s, ok := r.slips[id]
	if !ok {
		return shared.ErrSlipNotFound
	}
	if s.Status == slips.StatusCancelled {
		return shared.ErrInvalidStatus
	}
	s.Status = slips.StatusCancelled
	return nil
}

type memLedgerRepo struct {
	postings []ledger.Posting
	nextID   int64
}

func (r *memLedgerRepo) ComponentAccount(ctx context.Context, companyID, componentID int64) (int64, error) {
	return 100 + componentID, nil
}

func (r *memLedgerRepo) ComponentFlags(ctx context.Context, componentID int64) (ledger.ComponentFlags, error) {
	return ledger.ComponentFlags{}, nil
}

func (r *memLedgerRepo) IsPayableAccount(ctx context.Context, accountID int64) (bool, error) {
	return false, nil
}

func (r *memLedgerRepo) DefaultPayableAccount(ctx context.Context, companyID int64) (int64, error) {
	return 900, nil
}

func (r *memLedgerRepo) RoundOffAccount(ctx context.Context, companyID int64) (ledger.RoundOff, error) {
	return ledger.RoundOff{AccountID: 999, CostCenter: "Main"}, nil
}

func (r *memLedgerRepo) Commit(ctx context.Context, posting ledger.Posting) (ledger.Posting, error) {
	if posting.Cancel {
		found := false
		for _, p := range r.postings {
			if p.VoucherID == posting.VoucherID && !p.Cancel {
				found = true
			}
		}
		if !found {
			return ledger.Posting{}, shared.ErrPostingNotFound
		}
	}
	r.nextID++
	posting.ID = r.nextID
	r.postings = append(r.postings, posting)
	return posting, nil
}

type recordingDispatcher struct {
	createVouchers []int64
	submitVouchers []int64
	emailVouchers  []int64
}

func (d *recordingDispatcher) EnqueueCreateSlips(ctx context.Context, voucherID int64) error {
	d.createVouchers = append(d.createVouchers, voucherID)
	return nil
}

func (d *recordingDispatcher) EnqueueSubmitSlips(ctx context.Context, voucherID int64) error {
	d.submitVouchers = append(d.submitVouchers, voucherID)
	return nil
}

func (d *recordingDispatcher) EnqueueEmailPayslips(ctx context.Context, voucherID int64) error {
	d.emailVouchers = append(d.emailVouchers, voucherID)
	return nil
}

type recordingNotifier struct {
	vouchers []int64
	slips    int
}

func (n *recordingNotifier) PayslipsSubmitted(ctx context.Context, v Voucher, submitted []slips.PaySlip) error {
	n.vouchers = append(n.vouchers, v.ID)
	n.slips += len(submitted)
	return nil
}

type testEnv struct {
	service    *Service
	vouchers   *memVoucherRepo
	slips      *memSlipRepo
	ledger     *memLedgerRepo
	dispatcher *recordingDispatcher
	notifier   *recordingNotifier
}

func newTestEnv(t *testing.T, threshold int) *testEnv {
	t.Helper()
	env := &testEnv{
		vouchers:   newMemVoucherRepo(),
		slips:      newMemSlipRepo(),
		ledger:     &memLedgerRepo{},
		dispatcher: &recordingDispatcher{},
		notifier:   &recordingNotifier{},
	}
	calendar := periods.FiscalCalendar{YearStart: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)}
	poster := ledger.NewPoster(env.ledger, nil)
	env.service = NewService(env.vouchers, env.slips, poster,
		env.dispatcher, nil, env.notifier, calendar, threshold, nil)
	return env
}

func monthlyInput() CreateInput {
	return CreateInput{
		Filter: Filter{
			CompanyID: 1,
			Frequency: periods.FrequencyMonthly,
		},
		StartDate:  time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
		CostCenter: "Main",
	}
}

func (e *testEnv) createFilled(t *testing.T, employees ...Employee) Voucher {
	t.Helper()
	e.vouchers.eligible = employees
	v, err := e.service.Create(context.Background(), monthlyInput())
	require.NoError(t, err)
	v, warnings, err := e.service.FillRoster(context.Background(), v.ID)
	require.NoError(t, err)
	require.Empty(t, warnings)
	return v
}

func TestCreateDerivesPeriodEnd(t *testing.T) {
	env := newTestEnv(t, 30)

	v, err := env.service.Create(context.Background(), monthlyInput())
	require.NoError(t, err)
	require.Equal(t, StatusDraft, v.Status)
	require.Equal(t, time.Date(2026, time.May, 31, 0, 0, 0, 0, time.UTC), v.Period.End)
	require.NotEqual(t, uuid.Nil, v.SourceID)
}

func TestCreateRequiresCompany(t *testing.T) {
	env := newTestEnv(t, 30)
	in := monthlyInput()
	in.Filter.CompanyID = 0

	_, err := env.service.Create(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrCompanyRequired)
}

func TestFillRosterLinksExistingSlips(t *testing.T) {
	env := newTestEnv(t, 30)
	env.vouchers.eligible = []Employee{{ID: 10, Name: "Ana"}, {ID: 11, Name: "Ben"}}
	v, err := env.service.Create(context.Background(), monthlyInput())
	require.NoError(t, err)
	slipID := env.slips.add(10, 1, v.Period, slips.StatusDraft, 1000)

	v, warnings, err := env.service.FillRoster(context.Background(), v.ID)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, v.Roster, 2)
	require.NotNil(t, v.Roster[0].SlipID)
	require.Equal(t, slipID, *v.Roster[0].SlipID)
	require.Equal(t, RosterDraft, v.Roster[0].Status)
	require.Nil(t, v.Roster[1].SlipID)
	require.Equal(t, RosterMissing, v.Roster[1].Status)

	// Running again changes nothing.
	again, warnings, err := env.service.FillRoster(context.Background(), v.ID)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, v.Roster, again.Roster)
}

func TestFillRosterWarnsOnAmbiguousSlips(t *testing.T) {
	env := newTestEnv(t, 30)
	env.vouchers.eligible = []Employee{{ID: 10, Name: "Ana"}}
	v, err := env.service.Create(context.Background(), monthlyInput())
	require.NoError(t, err)
	env.slips.add(10, 1, v.Period, slips.StatusDraft, 1000)
	env.slips.add(10, 1, v.Period, slips.StatusDraft, 1000)

	v, warnings, err := env.service.FillRoster(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "Ana")
	require.Nil(t, v.Roster[0].SlipID)
}

func TestFillRosterKeepsManualRows(t *testing.T) {
	env := newTestEnv(t, 30)
	env.vouchers.eligible = []Employee{{ID: 10, Name: "Ana"}}
	v, err := env.service.Create(context.Background(), monthlyInput())
	require.NoError(t, err)
	manual := []RosterEntry{{EmployeeID: 99, EmployeeName: "Contractor", Status: RosterMissing}}
	require.NoError(t, env.vouchers.ReplaceRoster(context.Background(), v.ID, manual))

	v, _, err = env.service.FillRoster(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, v.Roster, 2)
	require.Equal(t, int64(99), v.Roster[0].EmployeeID)
	require.Equal(t, int64(10), v.Roster[1].EmployeeID)
}

func TestCreateMissingSlipsInline(t *testing.T) {
	env := newTestEnv(t, 30)
	env.slips.netPayFor[10] = 1000
	env.slips.netPayFor[11] = 1500
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"}, Employee{ID: 11, Name: "Ben"})

	res, err := env.service.CreateMissingSlips(context.Background(), v.ID)
	require.NoError(t, err)
	require.False(t, res.Dispatched)
	require.Equal(t, 2, res.Created)
	require.Zero(t, res.Linked)

	v, err = env.service.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.True(t, v.SlipsCreated)
	for _, entry := range v.Roster {
		require.NotNil(t, entry.SlipID)
		require.Equal(t, RosterDraft, entry.Status)
	}
}

func TestCreateMissingSlipsDispatchesLargeBatches(t *testing.T) {
	env := newTestEnv(t, 2)
	v := env.createFilled(t,
		Employee{ID: 10, Name: "Ana"}, Employee{ID: 11, Name: "Ben"}, Employee{ID: 12, Name: "Cara"})

	res, err := env.service.CreateMissingSlips(context.Background(), v.ID)
	require.NoError(t, err)
	require.True(t, res.Dispatched)
	require.Equal(t, []int64{v.ID}, env.dispatcher.createVouchers)
	require.Empty(t, env.slips.slips)
}

func TestCreateSlipsAdoptsConcurrentWinner(t *testing.T) {
	env := newTestEnv(t, 30)
	env.slips.netPayFor[10] = 1000
	env.slips.raceFor[10] = true
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"})

	res, err := env.service.CreateMissingSlips(context.Background(), v.ID)
	require.NoError(t, err)
	require.Zero(t, res.Created)
	require.Equal(t, 1, res.Linked)

	v, err = env.service.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.NotNil(t, v.Roster[0].SlipID)
	require.Len(t, env.slips.slips, 1)
}

func TestSubmitSlipsPostsAndNotifies(t *testing.T) {
	env := newTestEnv(t, 30)
	env.slips.netPayFor[10] = 1000
	env.slips.netPayFor[11] = 1500
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"}, Employee{ID: 11, Name: "Ben"})
	_, err := env.service.CreateMissingSlips(context.Background(), v.ID)
	require.NoError(t, err)

	res, err := env.service.SubmitSlips(context.Background(), v.ID)
	require.NoError(t, err)
	require.False(t, res.Dispatched)
	require.Len(t, res.Submitted, 2)
	require.Empty(t, res.Rejected)
	require.True(t, res.Posted)
	require.InDelta(t, 2500.0, res.Outstanding, 1e-9)

	v, err = env.service.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, v.Status)
	require.True(t, v.SlipsSubmitted)
	require.InDelta(t, 2500.0, v.Outstanding, 1e-9)
	for _, entry := range v.Roster {
		require.Equal(t, RosterSubmitted, entry.Status)
	}
	require.Len(t, env.ledger.postings, 1)
	require.False(t, env.ledger.postings[0].Cancel)

	// Delivery is queued, not run on the request path.
	require.Equal(t, []int64{v.ID}, env.dispatcher.emailVouchers)
	require.Empty(t, env.notifier.vouchers)
	require.NoError(t, env.service.RunEmailPayslips(context.Background(), v.ID))
	require.Equal(t, []int64{v.ID}, env.notifier.vouchers)
	require.Equal(t, 2, env.notifier.slips)
}

func TestSubmitSlipsRejectsNegativeNetPay(t *testing.T) {
	env := newTestEnv(t, 30)
	env.slips.netPayFor[10] = 1000
	env.slips.netPayFor[11] = -200
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"}, Employee{ID: 11, Name: "Ben"})
	_, err := env.service.CreateMissingSlips(context.Background(), v.ID)
	require.NoError(t, err)

	res, err := env.service.SubmitSlips(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, res.Submitted, 1)
	require.Len(t, res.Rejected, 1)
	require.Equal(t, int64(11), res.Rejected[0].EmployeeID)
	require.Contains(t, res.Rejected[0].Reason, "below zero")

	rejected, err := env.slips.Get(context.Background(), res.Rejected[0].SlipID)
	require.NoError(t, err)
	require.Equal(t, slips.StatusDraft, rejected.Status)
	require.Len(t, env.ledger.postings, 1)
}

func TestSubmitSlipsWithNothingToSubmitFails(t *testing.T) {
	env := newTestEnv(t, 30)
	env.slips.netPayFor[10] = -100
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"})
	_, err := env.service.CreateMissingSlips(context.Background(), v.ID)
	require.NoError(t, err)

	res, err := env.service.SubmitSlips(context.Background(), v.ID)
	require.ErrorIs(t, err, shared.ErrNoSubmittedSlips)
	require.Empty(t, env.ledger.postings)

	// The run failed but its outcome is still reported in full.
	require.Empty(t, res.Submitted)
	require.Len(t, res.Rejected, 1)
	require.Equal(t, int64(10), res.Rejected[0].EmployeeID)
	require.Contains(t, res.Rejected[0].Reason, "below zero")
	require.Contains(t, res.Summary, "0 slips submitted")
	require.Contains(t, res.Summary, "1 rejected")

	v, err = env.service.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, v.Status)
}

func TestSubmitSlipsReportsPriorSubmissions(t *testing.T) {
	env := newTestEnv(t, 30)
	env.slips.netPayFor[10] = 1000
	env.slips.netPayFor[11] = 1500
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"}, Employee{ID: 11, Name: "Ben"})
	_, err := env.service.CreateMissingSlips(context.Background(), v.ID)
	require.NoError(t, err)

	// One slip was already submitted before the run, as after a posting
	// failure that is being retried.
	v, err = env.service.Get(context.Background(), v.ID)
	require.NoError(t, err)
	prior := *v.Roster[0].SlipID
	env.slips.slips[prior].Status = slips.StatusSubmitted

	res, err := env.service.SubmitSlips(context.Background(), v.ID)
	require.NoError(t, err)
	require.Len(t, res.Submitted, 1)
	require.Equal(t, []int64{prior}, res.AlreadySubmitted)
	require.True(t, res.Posted)
	require.InDelta(t, 2500.0, res.Outstanding, 1e-9)
	require.Contains(t, res.Summary, "1 already submitted")
	require.Len(t, env.ledger.postings, 1)
}

func TestSubmitSlipsDispatchesLargeBatches(t *testing.T) {
	env := newTestEnv(t, 1)
	env.slips.netPayFor[10] = 1000
	env.slips.netPayFor[11] = 1500
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"}, Employee{ID: 11, Name: "Ben"})
	_, err := env.service.RunCreateSlips(context.Background(), v.ID)
	require.NoError(t, err)

	res, err := env.service.SubmitSlips(context.Background(), v.ID)
	require.NoError(t, err)
	require.True(t, res.Dispatched)
	require.Equal(t, []int64{v.ID}, env.dispatcher.submitVouchers)
	require.Empty(t, env.ledger.postings)
}

func TestCancelReversesPostingAndSlips(t *testing.T) {
	env := newTestEnv(t, 30)
	env.slips.netPayFor[10] = 1000
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"})
	_, err := env.service.CreateMissingSlips(context.Background(), v.ID)
	require.NoError(t, err)
	_, err = env.service.SubmitSlips(context.Background(), v.ID)
	require.NoError(t, err)

	v, err = env.service.Cancel(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, v.Status)
	for _, entry := range v.Roster {
		require.Nil(t, entry.SlipID)
		require.Equal(t, RosterCancelled, entry.Status)
	}
	require.Len(t, env.ledger.postings, 2)
	require.True(t, env.ledger.postings[1].Cancel)
	for _, s := range env.slips.slips {
		require.Equal(t, slips.StatusCancelled, s.Status)
	}
}

func TestCancelRequiresSubmittedVoucher(t *testing.T) {
	env := newTestEnv(t, 30)
	v := env.createFilled(t, Employee{ID: 10, Name: "Ana"})

	_, err := env.service.Cancel(context.Background(), v.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}
