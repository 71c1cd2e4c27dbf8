package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundOffLineSign(t *testing.T) {
	acct := RoundOff{AccountID: 999, CostCenter: "Main"}

	line := RoundOffLine(-0.02, acct, Line{})
	require.Equal(t, 0.02, line.Debit)
	require.Zero(t, line.Credit)

	line = RoundOffLine(0.03, acct, Line{})
	require.Equal(t, 0.03, line.Credit)
	require.Zero(t, line.Debit)

	line = RoundOffLine(0, acct, Line{})
	require.Zero(t, line.Debit)
	require.Zero(t, line.Credit)
}

func TestBalanceDiffRoundsLinesInPlace(t *testing.T) {
	lines := []Line{
		{AccountID: 1, Debit: 10.004},
		{AccountID: 2, Credit: 10.001},
	}
	diff := BalanceDiff(lines)
	require.Equal(t, 10.0, lines[0].Debit)
	require.Equal(t, 10.0, lines[1].Credit)
	require.Zero(t, diff)

	lines = []Line{
		{AccountID: 1, Debit: 10.006},
		{AccountID: 2, Credit: 10.0},
	}
	require.Equal(t, 0.01, BalanceDiff(lines))
}

func TestMergeCombinesAccountAndParty(t *testing.T) {
	emp1, emp2 := int64(100), int64(101)
	lines := []Line{
		{AccountID: 1, Debit: 10},
		{AccountID: 1, Debit: 5},
		{AccountID: 2, Credit: 7, PartyType: PartyTypeEmployee, PartyID: &emp1},
		{AccountID: 2, Credit: 3, PartyType: PartyTypeEmployee, PartyID: &emp2},
		{AccountID: 2, Credit: 2, PartyType: PartyTypeEmployee, PartyID: &emp1},
	}
	merged := Merge(lines)
	require.Len(t, merged, 3)
	require.Equal(t, 15.0, merged[0].Debit)
	require.Equal(t, 9.0, merged[1].Credit)
	require.Equal(t, 3.0, merged[2].Credit)
	require.True(t, Balanced(lines) == Balanced(merged))
}

func TestMergeNetsOppositeSides(t *testing.T) {
	// An account debited by an earning and credited by a deduction nets to
	// a single one-sided line.
	lines := []Line{
		{AccountID: 1, Debit: 100},
		{AccountID: 1, Credit: 40},
		{AccountID: 2, Credit: 60},
	}
	merged := Merge(lines)
	require.Len(t, merged, 2)
	require.Equal(t, 60.0, merged[0].Debit)
	require.Zero(t, merged[0].Credit)
	require.True(t, Balanced(merged))

	// Credit-heavy nets onto the credit column.
	merged = Merge([]Line{
		{AccountID: 1, Debit: 25},
		{AccountID: 1, Credit: 70},
		{AccountID: 2, Debit: 45},
	})
	require.Len(t, merged, 2)
	require.Zero(t, merged[0].Debit)
	require.Equal(t, 45.0, merged[0].Credit)

	// Exact offset disappears entirely.
	merged = Merge([]Line{
		{AccountID: 1, Debit: 30},
		{AccountID: 1, Credit: 30},
	})
	require.Empty(t, merged)
}

func TestAnnotateAgainstIsSymmetric(t *testing.T) {
	lines := []Line{
		{AccountID: 1, Debit: 10},
		{AccountID: 2, Credit: 6},
		{AccountID: 3, Credit: 4},
	}
	AnnotateAgainst(lines)
	require.Equal(t, []int64{2, 3}, lines[0].AgainstAccounts)
	require.Equal(t, []int64{1}, lines[1].AgainstAccounts)
	require.Equal(t, []int64{1}, lines[2].AgainstAccounts)
}

func TestReverseSwapsSides(t *testing.T) {
	lines := []Line{
		{AccountID: 1, Debit: 10},
		{AccountID: 2, Credit: 10},
	}
	reversed := Reverse(lines)
	require.Equal(t, 10.0, reversed[0].Credit)
	require.Zero(t, reversed[0].Debit)
	require.Equal(t, 10.0, reversed[1].Debit)
	require.True(t, Balanced(reversed))
}
