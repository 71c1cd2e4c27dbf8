package periods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theopen-institute/payroll/internal/payroll/shared"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodFromFixedLengths(t *testing.T) {
	cal := FiscalCalendar{YearStart: date(2026, time.January, 1)}

	p, err := PeriodFrom(FrequencyDaily, date(2026, time.March, 10), cal)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.March, 10), p.End)

	p, err = PeriodFrom(FrequencyWeekly, date(2026, time.March, 10), cal)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.March, 16), p.End)

	p, err = PeriodFrom(FrequencyFortnightly, date(2026, time.March, 10), cal)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.March, 23), p.End)
}

func TestPeriodFromMonthly(t *testing.T) {
	cal := FiscalCalendar{YearStart: date(2026, time.April, 1)}

	p, err := PeriodFrom(FrequencyMonthly, date(2026, time.June, 17), cal)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.June, 1), p.Start)
	require.Equal(t, date(2026, time.June, 30), p.End)

	// February precedes the fiscal opening month, so it belongs to the
	// fiscal year that opened in April 2025 but stays in its own calendar
	// year.
	p, err = PeriodFrom(FrequencyMonthly, date(2026, time.February, 3), cal)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.February, 1), p.Start)
	require.Equal(t, date(2026, time.February, 28), p.End)
	require.True(t, p.Contains(date(2026, time.February, 3)))
}

func TestPeriodFromMonthlyAlwaysContainsStart(t *testing.T) {
	// The calendar year the configuration was anchored against must not
	// leak into the derived period.
	cal := FiscalCalendar{YearStart: date(2026, time.January, 1)}

	p, err := PeriodFrom(FrequencyMonthly, date(2025, time.December, 10), cal)
	require.NoError(t, err)
	require.Equal(t, date(2025, time.December, 1), p.Start)
	require.Equal(t, date(2025, time.December, 31), p.End)
	require.True(t, p.Contains(date(2025, time.December, 10)))

	p, err = PeriodFrom(FrequencyMonthly, date(2028, time.July, 22), cal)
	require.NoError(t, err)
	require.Equal(t, date(2028, time.July, 1), p.Start)
	require.Equal(t, date(2028, time.July, 31), p.End)

	p, err = PeriodFrom(FrequencyBimonthly, date(2025, time.November, 20), cal)
	require.NoError(t, err)
	require.Equal(t, date(2025, time.November, 16), p.Start)
	require.Equal(t, date(2025, time.November, 30), p.End)
}

func TestPeriodFromBimonthly(t *testing.T) {
	cal := FiscalCalendar{YearStart: date(2026, time.January, 1)}

	p, err := PeriodFrom(FrequencyBimonthly, date(2026, time.May, 9), cal)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.May, 1), p.Start)
	require.Equal(t, date(2026, time.May, 15), p.End)

	p, err = PeriodFrom(FrequencyBimonthly, date(2026, time.May, 16), cal)
	require.NoError(t, err)
	require.Equal(t, date(2026, time.May, 16), p.Start)
	require.Equal(t, date(2026, time.May, 31), p.End)
}

func TestPeriodFromRejectsUnknownFrequency(t *testing.T) {
	_, err := PeriodFrom(Frequency("Quarterly"), date(2026, time.May, 1), FiscalCalendar{YearStart: date(2026, time.January, 1)})
	require.Error(t, err)

	_, err = PeriodFrom(FrequencyWeekly, time.Time{}, FiscalCalendar{})
	require.ErrorIs(t, err, shared.ErrPeriodRequired)
}

func TestPayPeriodValidate(t *testing.T) {
	require.ErrorIs(t, PayPeriod{}.Validate(), shared.ErrPeriodRequired)

	inverted := PayPeriod{Start: date(2026, time.May, 10), End: date(2026, time.May, 1)}
	require.Error(t, inverted.Validate())

	ok := PayPeriod{Start: date(2026, time.May, 1), End: date(2026, time.May, 31)}
	require.NoError(t, ok.Validate())
	require.True(t, ok.Contains(date(2026, time.May, 31)))
	require.False(t, ok.Contains(date(2026, time.June, 1)))
}
