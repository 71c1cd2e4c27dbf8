package voucher

import (
	"context"
	"fmt"

	"github.com/theopen-institute/payroll/internal/payroll/periods"
	"github.com/theopen-institute/payroll/internal/payroll/slips"
)

// mergeRoster folds the eligible employee set into an existing roster.
// Existing rows keep their position and content, including rows an operator
// added by hand; eligible employees not yet present are appended as missing.
func mergeRoster(existing []RosterEntry, eligible []Employee) []RosterEntry {
	merged := make([]RosterEntry, 0, len(existing)+len(eligible))
	seen := make(map[int64]struct{}, len(existing))
	for _, entry := range existing {
		if _, dup := seen[entry.EmployeeID]; dup {
			continue
		}
		seen[entry.EmployeeID] = struct{}{}
		merged = append(merged, entry)
	}
	for _, emp := range eligible {
		if _, ok := seen[emp.ID]; ok {
			continue
		}
		seen[emp.ID] = struct{}{}
		merged = append(merged, RosterEntry{
			EmployeeID:   emp.ID,
			EmployeeName: emp.Name,
			Status:       RosterMissing,
		})
	}
	return merged
}

// linkSlips resolves each roster entry against the slip store. Zero matches
// leaves (or resets) the entry as missing; exactly one match links it and
// copies its status; more than one is ambiguous and surfaced as a warning
// without picking a slip.
func linkSlips(ctx context.Context, store slips.Repository, roster []RosterEntry, companyID int64, period periods.PayPeriod) ([]RosterEntry, []string, error) {
	out := make([]RosterEntry, len(roster))
	copy(out, roster)
	var warnings []string
	for i := range out {
		matches, err := store.FindForPeriod(ctx, out[i].EmployeeID, companyID, period)
		if err != nil {
			return nil, nil, fmt.Errorf("voucher: find slips for employee %d: %w", out[i].EmployeeID, err)
		}
		switch len(matches) {
		case 0:
			out[i].SlipID = nil
			out[i].Status = RosterMissing
		case 1:
			id := matches[0].ID
			out[i].SlipID = &id
			out[i].Status = rosterStatusOf(matches[0].Status)
		default:
			warnings = append(warnings, fmt.Sprintf(
				"employee %s (%d) has %d slips for this period; resolve manually",
				out[i].EmployeeName, out[i].EmployeeID, len(matches)))
		}
	}
	return out, warnings, nil
}

func rosterStatusOf(status slips.Status) RosterStatus {
	switch status {
	case slips.StatusSubmitted:
		return RosterSubmitted
	case slips.StatusCancelled:
		return RosterCancelled
	default:
		return RosterDraft
	}
}
