package export

import (
	"duit/internal/core"
)

// Row projects a transaction into the column layout shared by all sinks:
// date, kind, category, signed amount in currency units, note, id.
// Expenses are negated so a plain column sum yields the balance.
func Row(tx core.Transaction) []any {
	units := tx.Amount.Units()
	if tx.Kind == core.Expense {
		units = -units
	}
	return []any{
		tx.OccurredAt.UTC().Format("2006-01-02"),
		string(tx.Kind),
		tx.Category,
		units,
		tx.Note,
		tx.ID,
	}
}

// Header names the columns produced by Row, in order.
func Header() []any {
	return []any{"Date", "Kind", "Category", "Amount", "Note", "ID"}
}
