package ledger

import (
	"context"
	"time"

	"duit/internal/core"
)

// Ports for the ledger store. Callers hold the narrowest interface they
// need; the SQLite repository implements all of them.
type (
	// Recorder appends a new transaction for an owner. The store assigns
	// ID and CreatedAt; the owner on the stored row is always the one
	// passed here, never one carried inside tx.
	Recorder interface {
		Create(ctx context.Context, owner core.Owner, tx core.Transaction) (core.Transaction, error)
	}

	// Lister returns an owner's transactions inside the half-open
	// [start, end) window, ordered by occurrence date descending.
	Lister interface {
		List(ctx context.Context, owner core.Owner, start, end time.Time) ([]core.Transaction, error)
	}

	// HistoryReader returns an owner's full ledger, newest first. This is
	// the stable surface export projections consume.
	HistoryReader interface {
		ListAll(ctx context.Context, owner core.Owner) ([]core.Transaction, error)
	}

	// Updater applies a partial update to one of the owner's transactions.
	// Returns core.ErrNotFound when no row matches (id, owner). Owner is
	// never part of the updatable field set.
	Updater interface {
		Update(ctx context.Context, owner core.Owner, id string, patch core.Patch) error
	}

	// Deleter removes one of the owner's transactions.
	// Returns core.ErrNotFound when no row matches (id, owner).
	Deleter interface {
		Delete(ctx context.Context, owner core.Owner, id string) error
	}

	// Resetter deletes every transaction belonging to the owner. A
	// deliberate bulk operation, audited separately from single deletes.
	Resetter interface {
		ResetAll(ctx context.Context, owner core.Owner) error
	}

	// Migrator reassigns every transaction still owned by the device token
	// to the account, clearing the token association, as one conditional
	// bulk update. Rows already owned by any account are never touched, so
	// repeated calls are safe no-ops. Returns the number of rows migrated.
	Migrator interface {
		Migrate(ctx context.Context, accountID, deviceToken string) (int64, error)
	}
)

// Store is the full ledger surface.
type Store interface {
	Recorder
	Lister
	HistoryReader
	Updater
	Deleter
	Resetter
	Migrator
}
