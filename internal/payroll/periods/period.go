package periods

import (
	"fmt"
	"time"

	"github.com/theopen-institute/payroll/internal/payroll/shared"
)

// Frequency enumerates supported pay cycles.
type Frequency string

const (
	FrequencyDaily       Frequency = "Daily"
	FrequencyWeekly      Frequency = "Weekly"
	FrequencyFortnightly Frequency = "Fortnightly"
	FrequencyMonthly     Frequency = "Monthly"
	FrequencyBimonthly   Frequency = "Bimonthly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyFortnightly, FrequencyMonthly, FrequencyBimonthly:
		return true
	}
	return false
}

// PayPeriod is the date span one payroll run covers.
type PayPeriod struct {
	Start     time.Time
	End       time.Time
	Frequency Frequency
}

// Validate checks the period is fully specified and ordered.
func (p PayPeriod) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return shared.ErrPeriodRequired
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("periods: end date %s before start date %s",
			p.End.Format("2006-01-02"), p.Start.Format("2006-01-02"))
	}
	return nil
}

// Contains reports whether d falls inside the period, inclusive.
func (p PayPeriod) Contains(d time.Time) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// FiscalCalendar locates month boundaries relative to the fiscal year start.
type FiscalCalendar struct {
	YearStart time.Time
}

// MonthBounds holds the boundary dates of one calendar month, including the
// mid-month split used by bimonthly payrolls.
type MonthBounds struct {
	Start    time.Time
	MidEnd   time.Time // day 15
	MidStart time.Time // day 16
	End      time.Time
}

// Month returns the bounds of the calendar month containing d. The fiscal
// year containing d is resolved first, so the derived month always holds d
// regardless of which year the calendar was configured against.
func (c FiscalCalendar) Month(d time.Time) MonthBounds {
	// The fiscal year opens in d's own calendar year, or the previous one
	// when d's month precedes the opening month.
	anchorYear := d.Year()
	if int(d.Month()) < int(c.YearStart.Month()) {
		anchorYear--
	}
	anchor := time.Date(anchorYear, c.YearStart.Month(), 1, 0, 0, 0, 0, d.Location())
	diff := int(d.Month()) - int(anchor.Month())
	if diff < 0 {
		diff += 12
	}
	first := anchor.AddDate(0, diff, 0)
	year := first.Year()
	month := first.Month()
	return MonthBounds{
		Start:    first,
		MidEnd:   time.Date(year, month, 15, 0, 0, 0, 0, d.Location()),
		MidStart: time.Date(year, month, 16, 0, 0, 0, 0, d.Location()),
		End:      first.AddDate(0, 1, -1),
	}
}

// PeriodFrom computes the canonical pay period for a frequency given any
// start date. Monthly and bimonthly periods snap to fiscal month boundaries;
// bimonthly splits the month at day 15/16.
func PeriodFrom(freq Frequency, start time.Time, cal FiscalCalendar) (PayPeriod, error) {
	if start.IsZero() {
		return PayPeriod{}, shared.ErrPeriodRequired
	}
	switch freq {
	case FrequencyDaily:
		return PayPeriod{Start: start, End: start, Frequency: freq}, nil
	case FrequencyWeekly:
		return PayPeriod{Start: start, End: start.AddDate(0, 0, 6), Frequency: freq}, nil
	case FrequencyFortnightly:
		return PayPeriod{Start: start, End: start.AddDate(0, 0, 13), Frequency: freq}, nil
	case FrequencyMonthly:
		m := cal.Month(start)
		return PayPeriod{Start: m.Start, End: m.End, Frequency: freq}, nil
	case FrequencyBimonthly:
		m := cal.Month(start)
		if start.Day() <= 15 {
			return PayPeriod{Start: m.Start, End: m.MidEnd, Frequency: freq}, nil
		}
		return PayPeriod{Start: m.MidStart, End: m.End, Frequency: freq}, nil
	default:
		return PayPeriod{}, fmt.Errorf("periods: unknown frequency %q", freq)
	}
}
