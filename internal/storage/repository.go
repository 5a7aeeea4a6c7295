// Package storage persists the ledger as JSON documents in SQLite, one row
// per (user, collection, id).
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"paycal/internal/core"
	"paycal/internal/ledger"
)

const (
	collEntries         = "entries"
	collAccounts        = "accounts"
	collTemplates       = "templates"
	collPaydayTemplates = "paydayTemplates"
	collPreferences     = "preferences"

	// preferencesID is the id of the single preferences document of a user.
	preferencesID = "preferences"
)

var _ ledger.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListEntries(ctx context.Context, userID string) ([]core.Entry, error) {
	return listDocs[core.Entry](ctx, r.db, userID, collEntries)
}

func (r *SQLiteRepository) SaveEntries(ctx context.Context, userID string, entries ...core.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			if err := putDoc(ctx, tx, userID, collEntries, e.ID, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save entries: %w", err)
	}
	slog.DebugContext(ctx, "Entries saved to SQLite", "user_id", userID, "count", len(entries))
	return nil
}

func (r *SQLiteRepository) DeleteEntries(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := deleteDoc(ctx, tx, userID, collEntries, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	return nil
}

// InsertMissingEntries reads the stored natural keys and inserts the absent
// entries inside one transaction, so concurrent expansions of the same
// template cannot both insert a key.
func (r *SQLiteRepository) InsertMissingEntries(ctx context.Context, userID string, entries ...core.Entry) ([]core.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	var inserted []core.Entry
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := listDocs[core.Entry](ctx, tx, userID, collEntries)
		if err != nil {
			return err
		}
		seen := make(map[string]bool, len(existing))
		for _, e := range existing {
			if k, ok := e.NaturalKey(); ok {
				seen[k] = true
			}
		}
		for _, e := range entries {
			if k, ok := e.NaturalKey(); ok {
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			if err := putDoc(ctx, tx, userID, collEntries, e.ID, e); err != nil {
				return err
			}
			inserted = append(inserted, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("insert entries: %w", err)
	}
	slog.DebugContext(ctx, "Missing entries inserted into SQLite",
		"user_id", userID, "offered", len(entries), "inserted", len(inserted))
	return inserted, nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	accounts, err := listDocs[core.Account](ctx, r.db, userID, collAccounts)
	if err != nil {
		return nil, err
	}
	core.SortAccounts(accounts)
	return accounts, nil
}

func (r *SQLiteRepository) SaveAccounts(ctx context.Context, userID string, accounts ...core.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, a := range accounts {
			if err := putDoc(ctx, tx, userID, collAccounts, a.ID, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAccount(ctx context.Context, userID, id string) error {
	return r.deleteOne(ctx, userID, collAccounts, id)
}

func (r *SQLiteRepository) ListBillTemplates(ctx context.Context, userID string) ([]core.BillTemplate, error) {
	return listDocs[core.BillTemplate](ctx, r.db, userID, collTemplates)
}

func (r *SQLiteRepository) SaveBillTemplate(ctx context.Context, userID string, t core.BillTemplate) error {
	if err := putDoc(ctx, r.db, userID, collTemplates, t.ID, t); err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteBillTemplate(ctx context.Context, userID, id string) error {
	return r.deleteOne(ctx, userID, collTemplates, id)
}

func (r *SQLiteRepository) ListPaydayTemplates(ctx context.Context, userID string) ([]core.PaydayTemplate, error) {
	return listDocs[core.PaydayTemplate](ctx, r.db, userID, collPaydayTemplates)
}

func (r *SQLiteRepository) SavePaydayTemplate(ctx context.Context, userID string, t core.PaydayTemplate) error {
	if err := putDoc(ctx, r.db, userID, collPaydayTemplates, t.ID, t); err != nil {
		return fmt.Errorf("save payday template: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeletePaydayTemplate(ctx context.Context, userID, id string) error {
	return r.deleteOne(ctx, userID, collPaydayTemplates, id)
}

func (r *SQLiteRepository) GetPreferences(ctx context.Context, userID string) (core.Preferences, bool, error) {
	prefs := core.DefaultPreferences()
	var body string
	err := r.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE user_id = ? AND collection = ? AND id = ?",
		userID, collPreferences, preferencesID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return prefs, false, nil
	}
	if err != nil {
		return prefs, false, fmt.Errorf("get preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(body), &prefs); err != nil {
		return core.DefaultPreferences(), false, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, true, nil
}

func (r *SQLiteRepository) SavePreferences(ctx context.Context, userID string, p core.Preferences) error {
	if err := putDoc(ctx, r.db, userID, collPreferences, preferencesID, p); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Snapshot reads every collection of a user inside one transaction.
func (r *SQLiteRepository) Snapshot(ctx context.Context, userID string) (core.Snapshot, error) {
	var snap core.Snapshot
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		if snap.Entries, err = listDocs[core.Entry](ctx, tx, userID, collEntries); err != nil {
			return err
		}
		if snap.Accounts, err = listDocs[core.Account](ctx, tx, userID, collAccounts); err != nil {
			return err
		}
		if snap.Templates, err = listDocs[core.BillTemplate](ctx, tx, userID, collTemplates); err != nil {
			return err
		}
		snap.PaydayTemplates, err = listDocs[core.PaydayTemplate](ctx, tx, userID, collPaydayTemplates)
		return err
	})
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	core.SortAccounts(snap.Accounts)
	return snap, nil
}

func (r *SQLiteRepository) Import(ctx context.Context, userID string, b core.Backup) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range b.Entries {
			if err := putDoc(ctx, tx, userID, collEntries, e.ID, e); err != nil {
				return err
			}
		}
		for _, a := range b.Accounts {
			if err := putDoc(ctx, tx, userID, collAccounts, a.ID, a); err != nil {
				return err
			}
		}
		for _, t := range b.Templates {
			if err := putDoc(ctx, tx, userID, collTemplates, t.ID, t); err != nil {
				return err
			}
		}
		for _, t := range b.PaydayTemplates {
			if err := putDoc(ctx, tx, userID, collPaydayTemplates, t.ID, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	slog.InfoContext(ctx, "Backup imported to SQLite", "user_id", userID, "documents", b.Len())
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete user data: %w", err)
	}
	slog.InfoContext(ctx, "User data deleted", "user_id", userID)
	return nil
}

func (r *SQLiteRepository) Users(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM documents ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) deleteOne(ctx context.Context, userID, collection, id string) error {
	n, err := deleteDoc(ctx, r.db, userID, collection, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", strings.TrimSuffix(collection, "s"), id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func listDocs[T any](ctx context.Context, q execer, userID, collection string) ([]T, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT body FROM documents WHERE user_id = ? AND collection = ? ORDER BY id",
		userID, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func putDoc(ctx context.Context, q execer, userID, collection, id string, v any) error {
	if id == "" {
		return fmt.Errorf("put %s: missing id", collection)
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO documents (user_id, collection, id, body, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		userID, collection, id, string(body), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("put %s: %w", collection, err)
	}
	return nil
}

func deleteDoc(ctx context.Context, q execer, userID, collection, id string) (int64, error) {
	res, err := q.ExecContext(ctx,
		"DELETE FROM documents WHERE user_id = ? AND collection = ? AND id = ?",
		userID, collection, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
