package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"duit/internal/amqp"
	"duit/internal/core"
)

type fakeStore struct {
	txs        []core.Transaction
	createErr  error
	listErr    error
	listErrN   int // fail the first N list calls
	listCalls  int
	updateErr  error
	deleteErr  error
	migrateErr error
	migrated   int64
}

func (f *fakeStore) Create(_ context.Context, owner core.Owner, tx core.Transaction) (core.Transaction, error) {
	if f.createErr != nil {
		return core.Transaction{}, f.createErr
	}
	tx.Owner = owner
	tx.ID = "tx-1"
	tx.CreatedAt = time.Now()
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeStore) List(_ context.Context, _ core.Owner, _, _ time.Time) ([]core.Transaction, error) {
	f.listCalls++
	if f.listErr != nil && (f.listErrN == 0 || f.listCalls <= f.listErrN) {
		return nil, f.listErr
	}
	return f.txs, nil
}

func (f *fakeStore) ListAll(_ context.Context, _ core.Owner) ([]core.Transaction, error) {
	return f.txs, nil
}

func (f *fakeStore) Update(_ context.Context, _ core.Owner, _ string, _ core.Patch) error {
	return f.updateErr
}

func (f *fakeStore) Delete(_ context.Context, _ core.Owner, _ string) error {
	return f.deleteErr
}

func (f *fakeStore) ResetAll(_ context.Context, _ core.Owner) error {
	return nil
}

func (f *fakeStore) Migrate(_ context.Context, _, _ string) (int64, error) {
	if f.migrateErr != nil {
		return 0, f.migrateErr
	}
	return f.migrated, nil
}

type fakePublisher struct {
	events []*amqp.LedgerEvent
	err    error
}

func (f *fakePublisher) PublishLedgerEvent(_ context.Context, event *amqp.LedgerEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func validDraft() core.Transaction {
	return core.Transaction{
		OccurredAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 5000000},
		Category:   "Food",
	}
}

func TestCreatePublishesEvent(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	svc := NewLedgerService(store, pub)

	created, err := svc.Create(context.Background(), core.AnonymousOwner("dev-1"), validDraft())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Action != amqp.ActionCreated || pub.events[0].TxID != created.ID {
		t.Fatalf("expected one created event for %s, got %+v", created.ID, pub.events)
	}
}

func TestPublisherFailureDoesNotFailMutation(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewLedgerService(store, pub)

	if _, err := svc.Create(context.Background(), core.AnonymousOwner("dev-1"), validDraft()); err != nil {
		t.Fatalf("create should survive publish failure, got %v", err)
	}
	if len(store.txs) != 1 {
		t.Fatalf("transaction should be stored, got %d", len(store.txs))
	}
}

func TestNilPublisherIsFine(t *testing.T) {
	svc := NewLedgerService(&fakeStore{}, nil)
	if _, err := svc.Create(context.Background(), core.AnonymousOwner("dev-1"), validDraft()); err != nil {
		t.Fatalf("create without publisher: %v", err)
	}
}

func TestStoreFaultsMapToUnavailable(t *testing.T) {
	store := &fakeStore{createErr: errors.New("database is locked")}
	svc := NewLedgerService(store, nil)

	_, err := svc.Create(context.Background(), core.AnonymousOwner("dev-1"), validDraft())
	if !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestDomainErrorsPassThrough(t *testing.T) {
	cases := []struct {
		name string
		set  func(f *fakeStore)
		call func(svc *LedgerService) error
		want error
	}{
		{
			"update not found",
			func(f *fakeStore) { f.updateErr = core.ErrNotFound },
			func(svc *LedgerService) error {
				amount := core.Money{Cents: 100}
				return svc.Update(context.Background(), core.AnonymousOwner("dev-1"), "x", core.Patch{Amount: &amount})
			},
			core.ErrNotFound,
		},
		{
			"delete not found",
			func(f *fakeStore) { f.deleteErr = core.ErrNotFound },
			func(svc *LedgerService) error {
				return svc.Delete(context.Background(), core.AnonymousOwner("dev-1"), "x")
			},
			core.ErrNotFound,
		},
		{
			"migration failed",
			func(f *fakeStore) { f.migrateErr = core.ErrMigrationFailed },
			func(svc *LedgerService) error {
				_, err := svc.Migrate(context.Background(), "u1", "dev-1")
				return err
			},
			core.ErrMigrationFailed,
		},
		{
			"validation",
			func(f *fakeStore) { f.createErr = core.ErrInvalidAmount },
			func(svc *LedgerService) error {
				_, err := svc.Create(context.Background(), core.AnonymousOwner("dev-1"), validDraft())
				return err
			},
			core.ErrInvalidAmount,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{}
			tc.set(store)
			svc := NewLedgerService(store, nil)
			if err := tc.call(svc); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestListRetriesTransientFailures(t *testing.T) {
	store := &fakeStore{listErr: errors.New("i/o timeout"), listErrN: 2}
	svc := NewLedgerService(store, nil)

	start, end := core.MonthWindow(2024, time.March)
	if _, err := svc.List(context.Background(), core.AnonymousOwner("dev-1"), start, end); err != nil {
		t.Fatalf("list should succeed after retries, got %v", err)
	}
	if store.listCalls != 3 {
		t.Fatalf("expected 3 list attempts, got %d", store.listCalls)
	}
}

func TestListGivesUpAfterRetries(t *testing.T) {
	store := &fakeStore{listErr: errors.New("i/o timeout")}
	svc := NewLedgerService(store, nil)

	start, end := core.MonthWindow(2024, time.March)
	_, err := svc.List(context.Background(), core.AnonymousOwner("dev-1"), start, end)
	if !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if store.listCalls != readRetries+1 {
		t.Fatalf("expected %d attempts, got %d", readRetries+1, store.listCalls)
	}
}

func TestMigratePublishesOnlyWhenRowsMoved(t *testing.T) {
	store := &fakeStore{migrated: 0}
	pub := &fakePublisher{}
	svc := NewLedgerService(store, pub)

	if _, err := svc.Migrate(context.Background(), "u1", "dev-1"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no-op migrate should not publish, got %+v", pub.events)
	}

	store.migrated = 2
	migrated, err := svc.Migrate(context.Background(), "u1", "dev-1")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if migrated != 2 {
		t.Fatalf("expected 2 migrated, got %d", migrated)
	}
	if len(pub.events) != 1 || pub.events[0].Action != amqp.ActionMigrated {
		t.Fatalf("expected one migrated event, got %+v", pub.events)
	}
}

func TestMonthSummary(t *testing.T) {
	store := &fakeStore{txs: []core.Transaction{
		{Kind: core.Income, Amount: core.Money{Cents: 500}},
		{Kind: core.Expense, Amount: core.Money{Cents: 200}},
	}}
	svc := NewLedgerService(store, nil)

	s, err := svc.MonthSummary(context.Background(), core.AnonymousOwner("dev-1"), 2024, time.March)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.TotalIncome.Cents != 500 || s.TotalExpense.Cents != 200 || s.Balance.Cents != 300 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}
