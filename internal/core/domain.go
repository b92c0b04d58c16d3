package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

type (
	// Kind carries the direction of a transaction. Amounts are always
	// positive magnitudes; sign never lives in Amount.
	Kind string

	Money struct {
		Cents int64
	}

	// Transaction is the sole persisted entity.
	Transaction struct {
		ID         string
		Owner      Owner
		OccurredAt time.Time
		Kind       Kind
		Amount     Money
		Category   string
		Note       string
		CreatedAt  time.Time
	}

	// Patch is a partial update for an existing transaction. Nil fields are
	// left untouched. ID, Owner and CreatedAt are not patchable.
	Patch struct {
		OccurredAt *time.Time
		Kind       *Kind
		Amount     *Money
		Category   *string
		Note       *string
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidKind     = errors.New("invalid kind")
	ErrEmptyCategory   = errors.New("empty category")
	ErrCategoryTooLong = errors.New("category too long (max 100 characters)")
	ErrNoteTooLong     = errors.New("note too long (max 500 characters)")
	ErrNoOwner         = errors.New("transaction has no owner")
	ErrEmptyPatch      = errors.New("empty update")

	ErrNotFound        = errors.New("transaction not found")
	ErrMigrationFailed = errors.New("ownership migration failed")
	ErrUnavailable     = errors.New("store unavailable")
)

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Owner.Validate(); err != nil {
		return err
	}
	if t.OccurredAt.IsZero() {
		return ErrInvalidDate
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Category) > 100 {
		return ErrCategoryTooLong
	}
	if len(t.Note) > 500 {
		return ErrNoteTooLong
	}
	return nil
}

func (p Patch) Validate() error {
	if p.OccurredAt == nil && p.Kind == nil && p.Amount == nil && p.Category == nil && p.Note == nil {
		return ErrEmptyPatch
	}
	if p.OccurredAt != nil && p.OccurredAt.IsZero() {
		return ErrInvalidDate
	}
	if p.Kind != nil {
		if err := p.Kind.Validate(); err != nil {
			return err
		}
	}
	if p.Amount != nil {
		if err := p.Amount.Validate(); err != nil {
			return err
		}
	}
	if p.Category != nil {
		if strings.TrimSpace(*p.Category) == "" {
			return ErrEmptyCategory
		}
		if len(*p.Category) > 100 {
			return ErrCategoryTooLong
		}
	}
	if p.Note != nil && len(*p.Note) > 500 {
		return ErrNoteTooLong
	}
	return nil
}

// MonthWindow returns the half-open [start, end) interval covering the given
// month in UTC. A transaction dated exactly at end falls in the next month.
func MonthWindow(year int, month time.Month) (start, end time.Time) {
	start = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}
