package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"duit/internal/amqp"
	"duit/internal/core"
	"duit/internal/ledger"
)

const (
	// Per-call budget for store operations; callers never block indefinitely.
	opTimeout = 7 * time.Second

	readRetries   = 2
	retryBaseWait = 200 * time.Millisecond
)

// EventPublisher is the outbound port for ledger change notifications.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

// LedgerService fronts the ledger store: it applies timeouts, maps storage
// failures to core.ErrUnavailable, retries reads, and publishes a ledger
// event after every successful mutation. Event publication is best-effort;
// a broker outage never fails the originating request.
type LedgerService struct {
	store  ledger.Store
	events EventPublisher
}

var _ ledger.Store = (*LedgerService)(nil)

func NewLedgerService(store ledger.Store, events EventPublisher) *LedgerService {
	return &LedgerService{store: store, events: events}
}

// Create implements ledger.Recorder.
func (s *LedgerService) Create(ctx context.Context, owner core.Owner, tx core.Transaction) (core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	created, err := s.store.Create(ctx, owner, tx)
	if err != nil {
		return core.Transaction{}, mapStoreErr(err)
	}
	s.publish(ctx, amqp.ActionCreated, created.ID, owner)
	return created, nil
}

// List implements ledger.Lister with limited retries: reads are safe to
// repeat, mutations are not.
func (s *LedgerService) List(ctx context.Context, owner core.Owner, start, end time.Time) ([]core.Transaction, error) {
	var txs []core.Transaction
	err := s.retryRead(ctx, func(ctx context.Context) error {
		var err error
		txs, err = s.store.List(ctx, owner, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// ListAll implements ledger.HistoryReader.
func (s *LedgerService) ListAll(ctx context.Context, owner core.Owner) ([]core.Transaction, error) {
	var txs []core.Transaction
	err := s.retryRead(ctx, func(ctx context.Context) error {
		var err error
		txs, err = s.store.ListAll(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// MonthSummary lists the owner's month window and folds it into totals.
func (s *LedgerService) MonthSummary(ctx context.Context, owner core.Owner, year int, month time.Month) (core.Summary, error) {
	start, end := core.MonthWindow(year, month)
	txs, err := s.List(ctx, owner, start, end)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summarize(txs), nil
}

// Update implements ledger.Updater.
func (s *LedgerService) Update(ctx context.Context, owner core.Owner, id string, patch core.Patch) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.store.Update(ctx, owner, id, patch); err != nil {
		return mapStoreErr(err)
	}
	s.publish(ctx, amqp.ActionUpdated, id, owner)
	return nil
}

// Delete implements ledger.Deleter.
func (s *LedgerService) Delete(ctx context.Context, owner core.Owner, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.store.Delete(ctx, owner, id); err != nil {
		return mapStoreErr(err)
	}
	s.publish(ctx, amqp.ActionDeleted, id, owner)
	return nil
}

// ResetAll implements ledger.Resetter.
func (s *LedgerService) ResetAll(ctx context.Context, owner core.Owner) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.store.ResetAll(ctx, owner); err != nil {
		return mapStoreErr(err)
	}
	s.publish(ctx, amqp.ActionReset, "", owner)
	return nil
}

// Migrate implements ledger.Migrator. The store-level conditional update is
// already idempotent, so callers may retry a MigrationFailed result freely.
func (s *LedgerService) Migrate(ctx context.Context, accountID, deviceToken string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	migrated, err := s.store.Migrate(ctx, accountID, deviceToken)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	if migrated > 0 {
		s.publish(ctx, amqp.ActionMigrated, "", core.AccountOwner(accountID))
	}
	return migrated, nil
}

func (s *LedgerService) retryRead(ctx context.Context, read func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, opTimeout)
		err = read(callCtx)
		cancel()

		if err == nil {
			return nil
		}
		err = mapStoreErr(err)
		if !errors.Is(err, core.ErrUnavailable) || attempt >= readRetries {
			return err
		}

		wait := retryBaseWait << uint(attempt)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", core.ErrUnavailable, ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (s *LedgerService) publish(ctx context.Context, action, txID string, owner core.Owner) {
	if s.events == nil {
		return
	}
	event := amqp.NewLedgerEvent(action, txID, owner.String())
	if err := s.events.PublishLedgerEvent(ctx, event); err != nil {
		// The mutation already committed; the export reconcile pass
		// covers events the broker never saw.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"action", action,
			"tx_id", txID,
			"error", err)
	}
}

// mapStoreErr keeps domain results intact and folds everything else
// (driver faults, timeouts) into core.ErrUnavailable.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range []error{
		core.ErrNotFound,
		core.ErrMigrationFailed,
		core.ErrUnavailable,
		core.ErrInvalidAmount,
		core.ErrInvalidDate,
		core.ErrInvalidKind,
		core.ErrEmptyCategory,
		core.ErrCategoryTooLong,
		core.ErrNoteTooLong,
		core.ErrNoOwner,
		core.ErrEmptyPatch,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", core.ErrUnavailable, err)
}
