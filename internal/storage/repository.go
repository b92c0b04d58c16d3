package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"duit/internal/core"
	"duit/internal/ledger"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as RFC3339 UTC text. Fixed width and a trailing Z
// make lexicographic comparison match chronological order, which the
// half-open month window queries rely on.
const timeLayout = time.RFC3339

var _ ledger.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// ownerClause returns the WHERE fragment scoping a query to the owner.
// Anonymous rows are only those not yet claimed by any account, so a stale
// device token can never read through to migrated data.
func ownerClause(owner core.Owner) (string, any) {
	if owner.IsAccount() {
		return "account_id = ?", owner.AccountID()
	}
	return "device_id = ? AND account_id IS NULL", owner.Token()
}

const txColumns = "id, device_id, account_id, occurred_at, kind, amount_cents, category, note, created_at"

// Create implements ledger.Recorder.
func (r *SQLiteRepository) Create(ctx context.Context, owner core.Owner, tx core.Transaction) (core.Transaction, error) {
	tx.Owner = owner
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tx.ID = uuid.NewString()
	tx.CreatedAt = time.Now().UTC().Truncate(time.Second)
	tx.OccurredAt = tx.OccurredAt.UTC()

	var deviceID, accountID sql.NullString
	if owner.IsAccount() {
		accountID = sql.NullString{String: owner.AccountID(), Valid: true}
	} else {
		deviceID = sql.NullString{String: owner.Token(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, device_id, account_id, occurred_at, kind, amount_cents, category, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, deviceID, accountID,
		tx.OccurredAt.Format(timeLayout), string(tx.Kind), tx.Amount.Cents,
		tx.Category, tx.Note, tx.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"transaction_id", tx.ID,
		"owner", tx.Owner.String(),
		"kind", string(tx.Kind),
		"amount_cents", tx.Amount.Cents,
		"category", tx.Category)

	return tx, nil
}

// List implements ledger.Lister. The window is half-open: a transaction
// dated exactly at end is excluded.
func (r *SQLiteRepository) List(ctx context.Context, owner core.Owner, start, end time.Time) ([]core.Transaction, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	clause, arg := ownerClause(owner)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE `+clause+` AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at DESC, created_at DESC`,
		arg, start.UTC().Format(timeLayout), end.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// ListAll implements ledger.HistoryReader.
func (r *SQLiteRepository) ListAll(ctx context.Context, owner core.Owner) ([]core.Transaction, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	clause, arg := ownerClause(owner)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE `+clause+`
		ORDER BY occurred_at DESC, created_at DESC`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("list full history: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// Update implements ledger.Updater. The owner columns are deliberately
// absent from the SET clause; only migration may ever move a row.
func (r *SQLiteRepository) Update(ctx context.Context, owner core.Owner, id string, patch core.Patch) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	var sets []string
	var args []any
	if patch.OccurredAt != nil {
		sets = append(sets, "occurred_at = ?")
		args = append(args, patch.OccurredAt.UTC().Format(timeLayout))
	}
	if patch.Kind != nil {
		sets = append(sets, "kind = ?")
		args = append(args, string(*patch.Kind))
	}
	if patch.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, patch.Amount.Cents)
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *patch.Category)
	}
	if patch.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *patch.Note)
	}

	clause, ownerArg := ownerClause(owner)
	args = append(args, id, ownerArg)

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET `+strings.Join(sets, ", ")+`
		WHERE id = ? AND `+clause,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Delete implements ledger.Deleter.
func (r *SQLiteRepository) Delete(ctx context.Context, owner core.Owner, id string) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	clause, arg := ownerClause(owner)
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND `+clause, id, arg)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ResetAll implements ledger.Resetter. Unlike Delete it never reports
// ErrNotFound: wiping an already-empty ledger is a valid reset.
func (r *SQLiteRepository) ResetAll(ctx context.Context, owner core.Owner) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	clause, arg := ownerClause(owner)
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE `+clause, arg)
	if err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	affected, _ := res.RowsAffected()

	slog.WarnContext(ctx, "Ledger reset",
		"owner", owner.String(),
		"deleted_count", affected)
	return nil
}

// Migrate implements ledger.Migrator as a single conditional bulk update.
// The account_id IS NULL guard makes the call idempotent and guarantees
// that rows already claimed by an account are never reassigned, even under
// concurrent migration attempts for the same token.
func (r *SQLiteRepository) Migrate(ctx context.Context, accountID, deviceToken string) (int64, error) {
	accountID = strings.TrimSpace(accountID)
	deviceToken = strings.TrimSpace(deviceToken)
	if accountID == "" || deviceToken == "" {
		return 0, fmt.Errorf("%w: both account id and device token are required", core.ErrMigrationFailed)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET account_id = ?, device_id = NULL
		WHERE device_id = ? AND account_id IS NULL`,
		accountID, deviceToken,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrMigrationFailed, err)
	}
	migrated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: rows affected: %v", core.ErrMigrationFailed, err)
	}

	slog.InfoContext(ctx, "Ownership migrated",
		"account_id", accountID,
		"migrated_count", migrated)
	return migrated, nil
}

// GetByID loads a single transaction regardless of owner. Internal surface
// for the export worker, which only holds the id from a ledger event.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return tx, nil
}

// PendingExport returns transactions that have not been appended to the
// export sheet yet, oldest first. Backup path for lost ledger events.
func (r *SQLiteRepository) PendingExport(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE exported_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending export: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// MarkExported records a successful append to the export sheet.
func (r *SQLiteRepository) MarkExported(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET exported_at = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}
	return nil
}

// MarkExportError counts a failed export attempt so the reconcile loop can
// spot rows that keep failing.
func (r *SQLiteRepository) MarkExportError(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET export_errors = export_errors + 1 WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark export error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with export error", "transaction_id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx                    core.Transaction
		deviceID, accountID   sql.NullString
		occurredAt, createdAt string
		kind                  string
	)
	if err := row.Scan(&tx.ID, &deviceID, &accountID, &occurredAt, &kind, &tx.Amount.Cents, &tx.Category, &tx.Note, &createdAt); err != nil {
		return core.Transaction{}, err
	}

	if accountID.Valid {
		tx.Owner = core.AccountOwner(accountID.String)
	} else {
		tx.Owner = core.AnonymousOwner(deviceID.String)
	}
	tx.Kind = core.Kind(kind)

	var err error
	if tx.OccurredAt, err = time.Parse(timeLayout, occurredAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse occurred_at: %w", err)
	}
	if tx.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return core.Transaction{}, fmt.Errorf("parse created_at: %w", err)
	}
	return tx, nil
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var txs []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}
