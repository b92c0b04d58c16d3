package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"duit/internal/amqp"
	"duit/internal/core"
	"duit/internal/export"
)

// Store is the slice of the ledger repository the export worker needs.
type Store interface {
	GetByID(ctx context.Context, id string) (core.Transaction, error)
	PendingExport(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkExported(ctx context.Context, id string) error
	MarkExportError(ctx context.Context, id string) error
}

// ExportWorker drives ledger rows into an export sink. Events are the fast
// path; ProcessPendingExports is the backup pass for rows whose events were
// lost while the broker or worker was down.
type ExportWorker struct {
	store     Store
	sink      export.RowAppender
	batchSize int
}

func NewExportWorker(store Store, sink export.RowAppender, batchSize int) *ExportWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ExportWorker{
		store:     store,
		sink:      sink,
		batchSize: batchSize,
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"action", event.Action,
		"tx_id", event.TxID)

	switch event.Action {
	case amqp.ActionCreated:
		tx, err := w.store.GetByID(ctx, event.TxID)
		if errors.Is(err, core.ErrNotFound) {
			// Deleted before the event was consumed; nothing to export.
			slog.WarnContext(ctx, "Transaction gone before export", "tx_id", event.TxID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		return w.exportTransaction(ctx, tx)
	case amqp.ActionUpdated, amqp.ActionDeleted, amqp.ActionReset, amqp.ActionMigrated:
		// The sheet is an append-only journal of recorded rows; later
		// mutations are not mirrored.
		slog.InfoContext(ctx, "No export action for event", "action", event.Action)
		return nil
	default:
		slog.WarnContext(ctx, "Unknown ledger event action", "action", event.Action)
		return nil
	}
}

// ProcessPendingExports exports any rows the event path missed.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	pending, err := w.store.PendingExport(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, tx := range pending {
		if err := w.exportTransaction(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction", "tx_id", tx.ID, "error", err)
			continue
		}
	}
	return nil
}

// StartupCheck drains the pending backlog once at worker startup, with a
// larger batch than the periodic pass.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.store.PendingExport(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(pending))

	exported := 0
	failed := 0
	for _, tx := range pending {
		if err := w.exportTransaction(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction during startup",
				"tx_id", tx.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)

	return nil
}

func (w *ExportWorker) exportTransaction(ctx context.Context, tx core.Transaction) error {
	ref, err := w.sink.Append(ctx, tx)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "tx_id", tx.ID, "error", markErr)
		}
		return fmt.Errorf("append to sink: %w", err)
	}

	if err := w.store.MarkExported(ctx, tx.ID); err != nil {
		// The append went through; don't fail the event over bookkeeping.
		slog.ErrorContext(ctx, "Failed to mark as exported", "tx_id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		"tx_id", tx.ID,
		"sink_ref", ref,
		"amount_cents", tx.Amount.Cents)

	return nil
}
