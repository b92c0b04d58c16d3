package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"duit/internal/amqp"
	"duit/internal/core"
)

type fakeStore struct {
	txs          map[string]core.Transaction
	pending      []core.Transaction
	pendingErr   error
	exported     []string
	exportErrors []string
	markFail     bool
}

func (f *fakeStore) GetByID(_ context.Context, id string) (core.Transaction, error) {
	tx, ok := f.txs[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, nil
}

func (f *fakeStore) PendingExport(_ context.Context, _ int) ([]core.Transaction, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	return f.pending, nil
}

func (f *fakeStore) MarkExported(_ context.Context, id string) error {
	if f.markFail {
		return errors.New("mark failed")
	}
	f.exported = append(f.exported, id)
	return nil
}

func (f *fakeStore) MarkExportError(_ context.Context, id string) error {
	f.exportErrors = append(f.exportErrors, id)
	return nil
}

type fakeSink struct {
	appended []string
	err      error
}

func (f *fakeSink) Append(_ context.Context, tx core.Transaction) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.appended = append(f.appended, tx.ID)
	return "Ledger!A2:F2", nil
}

func sampleTx(id string) core.Transaction {
	return core.Transaction{
		ID:         id,
		Owner:      core.AnonymousOwner("dev-1"),
		OccurredAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 1250},
		Category:   "Food",
	}
}

func TestHandleCreatedEventExports(t *testing.T) {
	store := &fakeStore{txs: map[string]core.Transaction{"tx-1": sampleTx("tx-1")}}
	sink := &fakeSink{}
	w := NewExportWorker(store, sink, 10)

	event := amqp.NewLedgerEvent(amqp.ActionCreated, "tx-1", "device:dev-1")
	if err := w.HandleLedgerEvent(context.Background(), event); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sink.appended) != 1 || sink.appended[0] != "tx-1" {
		t.Fatalf("expected tx-1 appended, got %v", sink.appended)
	}
	if len(store.exported) != 1 || store.exported[0] != "tx-1" {
		t.Fatalf("expected tx-1 marked exported, got %v", store.exported)
	}
}

func TestHandleCreatedEventMissingRowIsDropped(t *testing.T) {
	store := &fakeStore{txs: map[string]core.Transaction{}}
	sink := &fakeSink{}
	w := NewExportWorker(store, sink, 10)

	event := amqp.NewLedgerEvent(amqp.ActionCreated, "gone", "device:dev-1")
	if err := w.HandleLedgerEvent(context.Background(), event); err != nil {
		t.Fatalf("missing row should not requeue the event, got %v", err)
	}
	if len(sink.appended) != 0 {
		t.Fatalf("nothing should be appended, got %v", sink.appended)
	}
}

func TestHandleEventSinkFailureMarksError(t *testing.T) {
	store := &fakeStore{txs: map[string]core.Transaction{"tx-1": sampleTx("tx-1")}}
	sink := &fakeSink{err: errors.New("quota exceeded")}
	w := NewExportWorker(store, sink, 10)

	event := amqp.NewLedgerEvent(amqp.ActionCreated, "tx-1", "device:dev-1")
	if err := w.HandleLedgerEvent(context.Background(), event); err == nil {
		t.Fatal("expected error from sink failure")
	}
	if len(store.exportErrors) != 1 || store.exportErrors[0] != "tx-1" {
		t.Fatalf("expected export error recorded, got %v", store.exportErrors)
	}
	if len(store.exported) != 0 {
		t.Fatalf("nothing should be marked exported, got %v", store.exported)
	}
}

func TestNonCreateEventsAreIgnored(t *testing.T) {
	store := &fakeStore{txs: map[string]core.Transaction{"tx-1": sampleTx("tx-1")}}
	sink := &fakeSink{}
	w := NewExportWorker(store, sink, 10)

	for _, action := range []string{amqp.ActionUpdated, amqp.ActionDeleted, amqp.ActionReset, amqp.ActionMigrated, "bogus"} {
		event := amqp.NewLedgerEvent(action, "tx-1", "device:dev-1")
		if err := w.HandleLedgerEvent(context.Background(), event); err != nil {
			t.Fatalf("action %q: %v", action, err)
		}
	}
	if len(sink.appended) != 0 {
		t.Fatalf("no appends expected, got %v", sink.appended)
	}
}

func TestProcessPendingExports(t *testing.T) {
	store := &fakeStore{pending: []core.Transaction{sampleTx("a"), sampleTx("b")}}
	sink := &fakeSink{}
	w := NewExportWorker(store, sink, 10)

	if err := w.ProcessPendingExports(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(sink.appended) != 2 {
		t.Fatalf("expected 2 appends, got %v", sink.appended)
	}
	if len(store.exported) != 2 {
		t.Fatalf("expected 2 marked, got %v", store.exported)
	}
}

func TestProcessPendingContinuesPastFailures(t *testing.T) {
	store := &fakeStore{pending: []core.Transaction{sampleTx("a"), sampleTx("b")}}
	sink := &fakeSink{err: errors.New("down")}
	w := NewExportWorker(store, sink, 10)

	if err := w.ProcessPendingExports(context.Background()); err != nil {
		t.Fatalf("pending pass should swallow per-row failures, got %v", err)
	}
	if len(store.exportErrors) != 2 {
		t.Fatalf("expected both rows marked errored, got %v", store.exportErrors)
	}
}

func TestStartupCheckEmptyBacklog(t *testing.T) {
	store := &fakeStore{}
	w := NewExportWorker(store, &fakeSink{}, 10)

	if err := w.StartupCheck(context.Background()); err != nil {
		t.Fatalf("startup check: %v", err)
	}
}

func TestStartupCheckSurfacesStoreFailure(t *testing.T) {
	store := &fakeStore{pendingErr: errors.New("db closed")}
	w := NewExportWorker(store, &fakeSink{}, 10)

	if err := w.StartupCheck(context.Background()); err == nil {
		t.Fatal("expected error when backlog cannot be read")
	}
}
