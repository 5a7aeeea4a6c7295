// Package ledger declares the persistence ports of the budgeting calendar.
// Every document is scoped to a user and keyed by entity id.
package ledger

import (
	"context"

	"paycal/internal/core"
)

// Ports for outbound adapters.
type (
	EntryStore interface {
		ListEntries(ctx context.Context, userID string) ([]core.Entry, error)
		// SaveEntries upserts entries in one atomic batch.
		SaveEntries(ctx context.Context, userID string, entries ...core.Entry) error
		// DeleteEntries removes entries in one atomic batch. Unknown ids are ignored.
		DeleteEntries(ctx context.Context, userID string, ids ...string) error
		// InsertMissingEntries stores, in one atomic batch, the entries whose
		// natural key is not already stored and returns them. Entries without
		// a natural key are always stored.
		InsertMissingEntries(ctx context.Context, userID string, entries ...core.Entry) ([]core.Entry, error)
	}

	AccountStore interface {
		// ListAccounts returns accounts sorted by Order.
		ListAccounts(ctx context.Context, userID string) ([]core.Account, error)
		// SaveAccounts upserts accounts in one atomic batch.
		SaveAccounts(ctx context.Context, userID string, accounts ...core.Account) error
		DeleteAccount(ctx context.Context, userID, id string) error
	}

	TemplateStore interface {
		ListBillTemplates(ctx context.Context, userID string) ([]core.BillTemplate, error)
		SaveBillTemplate(ctx context.Context, userID string, t core.BillTemplate) error
		DeleteBillTemplate(ctx context.Context, userID, id string) error
		ListPaydayTemplates(ctx context.Context, userID string) ([]core.PaydayTemplate, error)
		SavePaydayTemplate(ctx context.Context, userID string, t core.PaydayTemplate) error
		DeletePaydayTemplate(ctx context.Context, userID, id string) error
	}

	PreferencesStore interface {
		// GetPreferences returns the stored preferences of a user and whether
		// any were stored. Fields missing from the stored document keep
		// their defaults.
		GetPreferences(ctx context.Context, userID string) (core.Preferences, bool, error)
		SavePreferences(ctx context.Context, userID string, p core.Preferences) error
	}

	// BulkStore covers whole-account operations.
	BulkStore interface {
		// Snapshot returns a consistent read of every collection of a user.
		Snapshot(ctx context.Context, userID string) (core.Snapshot, error)
		// Import writes every document of b in one atomic batch.
		Import(ctx context.Context, userID string, b core.Backup) error
		// DeleteAll removes every document of a user, preferences included,
		// in one atomic batch.
		DeleteAll(ctx context.Context, userID string) error
		// Users lists users that own at least one document.
		Users(ctx context.Context) ([]string, error)
	}

	// Store is the full persistence port used by the ledger service.
	Store interface {
		EntryStore
		AccountStore
		TemplateStore
		PreferencesStore
		BulkStore
	}
)
