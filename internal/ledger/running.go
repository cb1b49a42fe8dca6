package ledger

import (
	"iter"

	"github.com/shopspring/decimal"
)

func RunningBalances(entries []Input) iter.Seq2[int, Balance] {
	return Default.RunningBalances(entries)
}

func FinalBalance(entries []Input) decimal.Decimal {
	return Default.FinalBalance(entries)
}

func Summarize(entries []Input) Aggregate {
	return Default.Summarize(entries)
}

// RunningBalances walks entries in the order given (callers sort by
// date) and yields the balance around each one. Nothing is computed
// until the sequence is ranged over, and ranging again starts from 0.
func (r Rules) RunningBalances(entries []Input) iter.Seq2[int, Balance] {
	return func(yield func(int, Balance) bool) {
		balance := decimal.Zero
		for i, in := range entries {
			impact := r.DebtImpact(in)
			next := balance.Add(impact)
			if !yield(i, Balance{Impact: impact, Before: balance, After: next}) {
				return
			}
			balance = next
		}
	}
}

func (r Rules) FinalBalance(entries []Input) decimal.Decimal {
	balance := decimal.Zero
	for _, b := range r.RunningBalances(entries) {
		balance = b.After
	}
	return balance
}

// Summarize derives the customer aggregate fields. Cancelled entries
// count for nothing.
func (r Rules) Summarize(entries []Input) Aggregate {
	agg := Aggregate{
		TotalSpent:         decimal.Zero,
		OutstandingBalance: r.FinalBalance(entries),
		DepositBalance:     decimal.Zero,
	}
	for _, in := range entries {
		if in.Cancelled {
			continue
		}
		amount := in.Amount.Round(2)
		switch in.Type {
		case TypeSale:
			agg.TotalSpent = agg.TotalSpent.Add(amount)
		case TypeRefund:
			agg.TotalSpent = agg.TotalSpent.Sub(amount)
		case TypePayment:
			if in.AppliedToDebt != nil && !*in.AppliedToDebt {
				agg.DepositBalance = agg.DepositBalance.Add(amount)
			}
		}
	}
	if agg.TotalSpent.IsNegative() {
		agg.TotalSpent = decimal.Zero
	}
	return agg
}
