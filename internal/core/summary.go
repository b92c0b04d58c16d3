package core

// Summary is the aggregate view over a set of transactions.
type Summary struct {
	TotalIncome  Money
	TotalExpense Money
	Balance      Money
}

// Summarize folds a transaction list into income/expense totals and their
// difference. It is a pure function: empty input yields the zero Summary,
// and the caller recomputes it whenever the underlying list changes.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, t := range txs {
		switch t.Kind {
		case Income:
			s.TotalIncome.Cents += t.Amount.Cents
		case Expense:
			s.TotalExpense.Cents += t.Amount.Cents
		}
	}
	s.Balance.Cents = s.TotalIncome.Cents - s.TotalExpense.Cents
	return s
}
