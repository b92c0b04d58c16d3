package export

import (
	"testing"
	"time"

	"duit/internal/core"
)

func TestRowProjection(t *testing.T) {
	tx := core.Transaction{
		ID:         "tx-1",
		OccurredAt: time.Date(2024, 3, 5, 15, 30, 0, 0, time.UTC),
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 1250},
		Category:   "Food",
		Note:       "lunch",
	}

	row := Row(tx)
	if len(row) != len(Header()) {
		t.Fatalf("row has %d columns, header has %d", len(row), len(Header()))
	}
	if row[0] != "2024-03-05" {
		t.Errorf("date column: got %v", row[0])
	}
	if row[1] != "expense" {
		t.Errorf("kind column: got %v", row[1])
	}
	if row[3] != -12.50 {
		t.Errorf("expense amount should be negated: got %v", row[3])
	}
	if row[5] != "tx-1" {
		t.Errorf("id column: got %v", row[5])
	}
}

func TestRowIncomeStaysPositive(t *testing.T) {
	tx := core.Transaction{
		ID:         "tx-2",
		OccurredAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Kind:       core.Income,
		Amount:     core.Money{Cents: 300000},
		Category:   "Salary",
	}

	row := Row(tx)
	if row[3] != 3000.0 {
		t.Errorf("income amount: got %v", row[3])
	}
}

func TestRowNormalizesDateToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	tx := core.Transaction{
		ID:         "tx-3",
		OccurredAt: time.Date(2024, 3, 1, 2, 0, 0, 0, loc),
		Kind:       core.Income,
		Amount:     core.Money{Cents: 100},
		Category:   "Misc",
	}

	row := Row(tx)
	if row[0] != "2024-02-29" {
		t.Errorf("date should be the UTC day: got %v", row[0])
	}
}
