// Package memory is an in-process ledger.Store used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"paycal/internal/core"
	"paycal/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)

type userData struct {
	entries         map[string]core.Entry
	accounts        map[string]core.Account
	templates       map[string]core.BillTemplate
	paydayTemplates map[string]core.PaydayTemplate
	preferences     *core.Preferences
}

func newUserData() *userData {
	return &userData{
		entries:         map[string]core.Entry{},
		accounts:        map[string]core.Account{},
		templates:       map[string]core.BillTemplate{},
		paydayTemplates: map[string]core.PaydayTemplate{},
	}
}

func (u *userData) empty() bool {
	return len(u.entries)+len(u.accounts)+len(u.templates)+len(u.paydayTemplates) == 0 && u.preferences == nil
}

type Store struct {
	mu    sync.Mutex
	users map[string]*userData
}

func New() *Store {
	return &Store{users: map[string]*userData{}}
}

// NewFromBackup seeds the store with one user's backup, keeping its ids.
func NewFromBackup(userID string, b core.Backup) *Store {
	s := New()
	u := s.user(userID)
	for _, e := range b.Entries {
		u.entries[e.ID] = e.Clone()
	}
	for _, a := range b.Accounts {
		u.accounts[a.ID] = a
	}
	for _, t := range b.Templates {
		u.templates[t.ID] = t
	}
	for _, t := range b.PaydayTemplates {
		u.paydayTemplates[t.ID] = t
	}
	return s
}

// user returns the data of userID, creating it. Callers hold s.mu.
func (s *Store) user(userID string) *userData {
	u, ok := s.users[userID]
	if !ok {
		u = newUserData()
		s.users[userID] = u
	}
	return u
}

func (s *Store) ListEntries(_ context.Context, userID string) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entriesOf(s.user(userID)), nil
}

func (s *Store) SaveEntries(_ context.Context, userID string, entries ...core.Entry) error {
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("save entry: missing id")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for _, e := range entries {
		u.entries[e.ID] = e.Clone()
	}
	return nil
}

func (s *Store) DeleteEntries(_ context.Context, userID string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for _, id := range ids {
		delete(u.entries, id)
	}
	return nil
}

func (s *Store) InsertMissingEntries(_ context.Context, userID string, entries ...core.Entry) ([]core.Entry, error) {
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("insert entry: missing id")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	seen := make(map[string]bool, len(u.entries))
	for _, e := range u.entries {
		if k, ok := e.NaturalKey(); ok {
			seen[k] = true
		}
	}
	var inserted []core.Entry
	for _, e := range entries {
		if k, ok := e.NaturalKey(); ok {
			if seen[k] {
				continue
			}
			seen[k] = true
		}
		u.entries[e.ID] = e.Clone()
		inserted = append(inserted, e)
	}
	return inserted, nil
}

func (s *Store) ListAccounts(_ context.Context, userID string) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return accountsOf(s.user(userID)), nil
}

func (s *Store) SaveAccounts(_ context.Context, userID string, accounts ...core.Account) error {
	for _, a := range accounts {
		if a.ID == "" {
			return fmt.Errorf("save account: missing id")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for _, a := range accounts {
		u.accounts[a.ID] = a
	}
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	if _, ok := u.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	delete(u.accounts, id)
	return nil
}

func (s *Store) ListBillTemplates(_ context.Context, userID string) ([]core.BillTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return billTemplatesOf(s.user(userID)), nil
}

func (s *Store) SaveBillTemplate(_ context.Context, userID string, t core.BillTemplate) error {
	if t.ID == "" {
		return fmt.Errorf("save template: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).templates[t.ID] = t
	return nil
}

func (s *Store) DeleteBillTemplate(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	if _, ok := u.templates[id]; !ok {
		return fmt.Errorf("template %s: %w", id, core.ErrNotFound)
	}
	delete(u.templates, id)
	return nil
}

func (s *Store) ListPaydayTemplates(_ context.Context, userID string) ([]core.PaydayTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return paydayTemplatesOf(s.user(userID)), nil
}

func (s *Store) SavePaydayTemplate(_ context.Context, userID string, t core.PaydayTemplate) error {
	if t.ID == "" {
		return fmt.Errorf("save payday template: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).paydayTemplates[t.ID] = t
	return nil
}

func (s *Store) DeletePaydayTemplate(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	if _, ok := u.paydayTemplates[id]; !ok {
		return fmt.Errorf("payday template %s: %w", id, core.ErrNotFound)
	}
	delete(u.paydayTemplates, id)
	return nil
}

func (s *Store) GetPreferences(_ context.Context, userID string) (core.Preferences, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || u.preferences == nil {
		return core.DefaultPreferences(), false, nil
	}
	p := *u.preferences
	p.DismissedBillChanges = append([]string(nil), p.DismissedBillChanges...)
	return p, true, nil
}

func (s *Store) SavePreferences(_ context.Context, userID string, p core.Preferences) error {
	p.DismissedBillChanges = append([]string(nil), p.DismissedBillChanges...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user(userID).preferences = &p
	return nil
}

func (s *Store) Snapshot(_ context.Context, userID string) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	return core.Snapshot{
		Entries:         entriesOf(u),
		Accounts:        accountsOf(u),
		Templates:       billTemplatesOf(u),
		PaydayTemplates: paydayTemplatesOf(u),
	}, nil
}

func (s *Store) Import(_ context.Context, userID string, b core.Backup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(userID)
	for _, e := range b.Entries {
		u.entries[e.ID] = e.Clone()
	}
	for _, a := range b.Accounts {
		u.accounts[a.ID] = a
	}
	for _, t := range b.Templates {
		u.templates[t.ID] = t
	}
	for _, t := range b.PaydayTemplates {
		u.paydayTemplates[t.ID] = t
	}
	return nil
}

func (s *Store) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

func (s *Store) Users(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for id, u := range s.users {
		if !u.empty() {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Maps are read in id order so results are deterministic.

func entriesOf(u *userData) []core.Entry {
	out := make([]core.Entry, 0, len(u.entries))
	for _, id := range sortedKeys(u.entries) {
		out = append(out, u.entries[id].Clone())
	}
	return out
}

func accountsOf(u *userData) []core.Account {
	out := make([]core.Account, 0, len(u.accounts))
	for _, id := range sortedKeys(u.accounts) {
		out = append(out, u.accounts[id])
	}
	core.SortAccounts(out)
	return out
}

func billTemplatesOf(u *userData) []core.BillTemplate {
	out := make([]core.BillTemplate, 0, len(u.templates))
	for _, id := range sortedKeys(u.templates) {
		out = append(out, u.templates[id])
	}
	return out
}

func paydayTemplatesOf(u *userData) []core.PaydayTemplate {
	out := make([]core.PaydayTemplate, 0, len(u.paydayTemplates))
	for _, id := range sortedKeys(u.paydayTemplates) {
		out = append(out, u.paydayTemplates[id])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
