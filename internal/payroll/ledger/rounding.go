package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Precision is the ledger currency precision in decimal places.
const Precision = 2

// Round rounds a money amount to the ledger currency precision.
func Round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(Precision).Float64()
	return f
}

// BalanceDiff rounds every line to currency precision in place and returns
// the rounded sum of debits minus credits. Decimal arithmetic keeps the
// residual exact; float accumulation is what produced it in the first place.
func BalanceDiff(lines []Line) float64 {
	diff := decimal.Zero
	for i := range lines {
		lines[i].Debit = Round(lines[i].Debit)
		lines[i].Credit = Round(lines[i].Credit)
		diff = diff.Add(decimal.NewFromFloat(lines[i].Debit)).Sub(decimal.NewFromFloat(lines[i].Credit))
	}
	f, _ := diff.Round(Precision).Float64()
	return f
}

// Balanced reports whether total debits equal total credits at currency precision.
func Balanced(lines []Line) bool {
	diff := decimal.Zero
	for _, line := range lines {
		diff = diff.Add(decimal.NewFromFloat(line.Debit)).Sub(decimal.NewFromFloat(line.Credit))
	}
	return diff.Round(Precision).IsZero()
}

// RoundOffLine builds the corrective line absorbing diff. A negative diff
// (credits exceed debits) becomes a debit; a positive diff becomes a credit.
// The line carries no party and no against-voucher.
func RoundOffLine(diff float64, acct RoundOff, template Line) Line {
	line := Line{
		AccountID:   acct.AccountID,
		CostCenter:  acct.CostCenter,
		PostingDate: template.PostingDate,
		Remarks:     template.Remarks,
	}
	if diff < 0 {
		line.Debit = Round(-diff)
	} else {
		line.Credit = Round(diff)
	}
	return line
}

// Reverse swaps debit and credit on every line, producing the compensating
// set for a cancellation.
func Reverse(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, line := range lines {
		rev := line
		rev.Debit = line.Credit
		rev.Credit = line.Debit
		out[i] = rev
	}
	return out
}

type mergeKey struct {
	account            int64
	partyType          string
	party              int64
	againstVoucher     int64
	againstVoucherType string
}

// Merge combines lines sharing an account and party. A key collecting both
// debits and credits is netted onto the heavier side, so every merged line
// still carries amounts in one column only. Lines netting to zero are
// dropped. Line order follows first appearance.
func Merge(lines []Line) []Line {
	merged := make(map[mergeKey]*Line)
	order := make([]mergeKey, 0, len(lines))
	for _, line := range lines {
		key := mergeKey{account: line.AccountID, partyType: line.PartyType, againstVoucherType: line.AgainstVoucherType}
		if line.PartyID != nil {
			key.party = *line.PartyID
		}
		if line.AgainstVoucherID != nil {
			key.againstVoucher = *line.AgainstVoucherID
		}
		if existing, ok := merged[key]; ok {
			existing.Debit = Round(existing.Debit + line.Debit)
			existing.Credit = Round(existing.Credit + line.Credit)
			if existing.Debit > 0 && existing.Credit > 0 {
				if existing.Debit >= existing.Credit {
					existing.Debit = Round(existing.Debit - existing.Credit)
					existing.Credit = 0
				} else {
					existing.Credit = Round(existing.Credit - existing.Debit)
					existing.Debit = 0
				}
			}
			continue
		}
		copied := line
		merged[key] = &copied
		order = append(order, key)
	}
	out := make([]Line, 0, len(order))
	for _, key := range order {
		line := *merged[key]
		if line.Debit == 0 && line.Credit == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}

// AnnotateAgainst fills each line's against-list with the distinct accounts
// on the opposite side. Purely informational; balance is untouched.
func AnnotateAgainst(lines []Line) {
	debited := map[int64]struct{}{}
	credited := map[int64]struct{}{}
	for _, line := range lines {
		if line.Debit > 0 {
			debited[line.AccountID] = struct{}{}
		}
		if line.Credit > 0 {
			credited[line.AccountID] = struct{}{}
		}
	}
	debitAccts := sortedKeys(debited)
	creditAccts := sortedKeys(credited)
	for i := range lines {
		switch {
		case lines[i].Debit > 0:
			lines[i].AgainstAccounts = creditAccts
		case lines[i].Credit > 0:
			lines[i].AgainstAccounts = debitAccts
		}
	}
}

func sortedKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
