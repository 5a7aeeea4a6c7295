package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"paycal/internal/amqp"
	"paycal/internal/core"
	"paycal/internal/ledger"
	"paycal/internal/metrics"
)

// EventPublisher hands template changes to the expansion worker.
type EventPublisher interface {
	PublishTemplateChanged(ctx context.Context, msg *amqp.TemplateChangedMessage) error
}

// LedgerService owns every write to a user's ledger: accounts, entries,
// templates and bulk backup operations. Template writes keep generated
// entries in step with their template, either inline or through the
// expansion worker when a publisher is configured.
type LedgerService struct {
	store     ledger.Store
	expander  Expander
	publisher EventPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
	onChange  []func(userID string)

	// locks serializes read-then-write sequences per user.
	locks userLocks
}

type LedgerOption func(*LedgerService)

// WithPublisher defers template expansion to the worker.
func WithPublisher(p EventPublisher) LedgerOption {
	return func(s *LedgerService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) LedgerOption {
	return func(s *LedgerService) { s.metrics = m }
}

// WithClock fixes the time source; the current year drives expansion.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerService) { s.now = now }
}

// WithIDGenerator replaces UUID generation for entities and entries.
func WithIDGenerator(newID func() string) LedgerOption {
	return func(s *LedgerService) {
		s.newID = newID
		s.expander.NewID = newID
	}
}

func NewLedgerService(store ledger.Store, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:    store,
		expander: NewExpander(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to run after every successful write for a user.
func (s *LedgerService) OnChange(fn func(userID string)) {
	s.onChange = append(s.onChange, fn)
}

func (s *LedgerService) changed(userID string) {
	for _, fn := range s.onChange {
		fn(userID)
	}
}

// Snapshot returns a consistent read of the user's ledger.
func (s *LedgerService) Snapshot(ctx context.Context, userID string) (core.Snapshot, error) {
	return s.store.Snapshot(ctx, userID)
}

// --- Accounts ---

func (s *LedgerService) Accounts(ctx context.Context, userID string) ([]core.Account, error) {
	return s.store.ListAccounts(ctx, userID)
}

// AddAccount appends an account after the existing ones. Names are unique
// ignoring case and surrounding whitespace.
func (s *LedgerService) AddAccount(ctx context.Context, userID, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	acc := core.Account{ID: s.newID(), Name: name}
	if err := acc.Validate(); err != nil {
		return core.Account{}, err
	}

	defer s.locks.lock(userID)()
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return core.Account{}, fmt.Errorf("list accounts: %w", err)
	}
	if _, dup := core.FindAccountByName(accounts, name); dup {
		return core.Account{}, fmt.Errorf("%w: %q", core.ErrDuplicateAccount, name)
	}
	for _, a := range accounts {
		if a.Order >= acc.Order {
			acc.Order = a.Order + 1
		}
	}

	if err := s.store.SaveAccounts(ctx, userID, acc); err != nil {
		return core.Account{}, fmt.Errorf("save account: %w", err)
	}
	slog.InfoContext(ctx, "Account added", "user_id", userID, "account", name, "order", acc.Order)
	s.changed(userID)
	return acc, nil
}

// RenameAccount changes an account name. Amount maps keep the old key, so
// existing entries stop contributing to the renamed account.
func (s *LedgerService) RenameAccount(ctx context.Context, userID, id, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.ErrEmptyName
	}
	defer s.locks.lock(userID)()
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return core.Account{}, fmt.Errorf("list accounts: %w", err)
	}

	var target *core.Account
	for i := range accounts {
		if accounts[i].ID == id {
			target = &accounts[i]
			continue
		}
		if strings.EqualFold(strings.TrimSpace(accounts[i].Name), name) {
			return core.Account{}, fmt.Errorf("%w: %q", core.ErrDuplicateAccount, name)
		}
	}
	if target == nil {
		return core.Account{}, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}

	previous := target.Name
	target.Name = name
	if err := s.store.SaveAccounts(ctx, userID, *target); err != nil {
		return core.Account{}, fmt.Errorf("save account: %w", err)
	}
	slog.InfoContext(ctx, "Account renamed", "user_id", userID, "from", previous, "to", name)
	s.changed(userID)
	return *target, nil
}

func (s *LedgerService) RemoveAccount(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteAccount(ctx, userID, id); err != nil {
		return err
	}
	s.changed(userID)
	return nil
}

// ReorderAccounts assigns Order 0..n-1 following ids, in one batch. Every
// existing account must appear exactly once.
func (s *LedgerService) ReorderAccounts(ctx context.Context, userID string, ids []string) ([]core.Account, error) {
	defer s.locks.lock(userID)()
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	byID := make(map[string]core.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}
	if len(ids) != len(accounts) {
		return nil, fmt.Errorf("%w: reorder lists %d accounts, have %d", ErrInvalidInput, len(ids), len(accounts))
	}

	reordered := make([]core.Account, 0, len(ids))
	for i, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
		}
		delete(byID, id)
		a.Order = i
		reordered = append(reordered, a)
	}

	if err := s.store.SaveAccounts(ctx, userID, reordered...); err != nil {
		return nil, fmt.Errorf("save account order: %w", err)
	}
	s.changed(userID)
	return reordered, nil
}

// --- Entries ---

// AddEntry stores a manually created entry. Bills always start unpaid.
func (s *LedgerService) AddEntry(ctx context.Context, userID string, e core.Entry) (core.Entry, error) {
	e.ID = s.newID()
	if e.IsBill() {
		e.Paid = false
		e.Balances = nil
	} else {
		e.Amounts = nil
	}
	e.Amounts = e.Amounts.Normalize()
	e.Balances = e.Balances.Normalize()
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	if err := s.store.SaveEntries(ctx, userID, e); err != nil {
		return core.Entry{}, fmt.Errorf("save entry: %w", err)
	}
	s.changed(userID)
	return e, nil
}

// UpdateEntry replaces the editable fields of an existing entry. The type
// and template link are kept from the stored entry.
func (s *LedgerService) UpdateEntry(ctx context.Context, userID string, e core.Entry) (core.Entry, error) {
	current, err := s.findEntry(ctx, userID, e.ID)
	if err != nil {
		return core.Entry{}, err
	}
	current.Name = e.Name
	current.Date = e.Date
	current.Month = e.Month
	if current.IsBill() {
		current.Amounts = e.Amounts.Normalize()
		current.Paid = e.Paid
	} else {
		current.Balances = e.Balances.Normalize()
	}
	if err := current.Validate(); err != nil {
		return core.Entry{}, err
	}
	if err := s.store.SaveEntries(ctx, userID, current); err != nil {
		return core.Entry{}, fmt.Errorf("save entry: %w", err)
	}
	s.changed(userID)
	return current, nil
}

// TogglePaid flips the paid flag of a bill. Paydays are left untouched.
func (s *LedgerService) TogglePaid(ctx context.Context, userID, id string) (core.Entry, error) {
	e, err := s.findEntry(ctx, userID, id)
	if err != nil {
		return core.Entry{}, err
	}
	if !e.IsBill() {
		return e, nil
	}
	e.Paid = !e.Paid
	if err := s.store.SaveEntries(ctx, userID, e); err != nil {
		return core.Entry{}, fmt.Errorf("save entry: %w", err)
	}
	s.changed(userID)
	return e, nil
}

func (s *LedgerService) DeleteEntry(ctx context.Context, userID, id string) error {
	if _, err := s.findEntry(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteEntries(ctx, userID, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	s.changed(userID)
	return nil
}

func (s *LedgerService) findEntry(ctx context.Context, userID, id string) (core.Entry, error) {
	entries, err := s.store.ListEntries(ctx, userID)
	if err != nil {
		return core.Entry{}, fmt.Errorf("list entries: %w", err)
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Entry{}, fmt.Errorf("entry %s: %w", id, core.ErrNotFound)
}

// --- Templates ---

func (s *LedgerService) BillTemplates(ctx context.Context, userID string) ([]core.BillTemplate, error) {
	return s.store.ListBillTemplates(ctx, userID)
}

func (s *LedgerService) PaydayTemplates(ctx context.Context, userID string) ([]core.PaydayTemplate, error) {
	return s.store.ListPaydayTemplates(ctx, userID)
}

// SaveBillTemplate creates (empty ID) or replaces a bill template and then
// materializes its missing entries for the current year.
func (s *LedgerService) SaveBillTemplate(ctx context.Context, userID string, t core.BillTemplate) (core.BillTemplate, error) {
	if t.ID == "" {
		t.ID = s.newID()
	} else if err := s.requireBillTemplate(ctx, userID, t.ID); err != nil {
		return core.BillTemplate{}, err
	}
	t.Amounts = t.Amounts.Normalize()
	if err := t.Validate(); err != nil {
		return core.BillTemplate{}, err
	}
	if err := s.store.SaveBillTemplate(ctx, userID, t); err != nil {
		return core.BillTemplate{}, fmt.Errorf("save template: %w", err)
	}
	if err := s.templateChanged(ctx, userID, t.ID, amqp.KindBill, amqp.ActionUpsert); err != nil {
		return t, err
	}
	s.changed(userID)
	return t, nil
}

// SavePaydayTemplate is SaveBillTemplate for paydays.
func (s *LedgerService) SavePaydayTemplate(ctx context.Context, userID string, t core.PaydayTemplate) (core.PaydayTemplate, error) {
	if t.ID == "" {
		t.ID = s.newID()
	} else if err := s.requirePaydayTemplate(ctx, userID, t.ID); err != nil {
		return core.PaydayTemplate{}, err
	}
	t.Balances = t.Balances.Normalize()
	if err := t.Validate(); err != nil {
		return core.PaydayTemplate{}, err
	}
	if err := s.store.SavePaydayTemplate(ctx, userID, t); err != nil {
		return core.PaydayTemplate{}, fmt.Errorf("save payday template: %w", err)
	}
	if err := s.templateChanged(ctx, userID, t.ID, amqp.KindPayday, amqp.ActionUpsert); err != nil {
		return t, err
	}
	s.changed(userID)
	return t, nil
}

// DeleteBillTemplate removes the template together with its unpaid entries.
func (s *LedgerService) DeleteBillTemplate(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteBillTemplate(ctx, userID, id); err != nil {
		return err
	}
	if err := s.templateChanged(ctx, userID, id, amqp.KindBill, amqp.ActionDelete); err != nil {
		return err
	}
	s.changed(userID)
	return nil
}

// DeletePaydayTemplate removes the template together with its entries.
func (s *LedgerService) DeletePaydayTemplate(ctx context.Context, userID, id string) error {
	if err := s.store.DeletePaydayTemplate(ctx, userID, id); err != nil {
		return err
	}
	if err := s.templateChanged(ctx, userID, id, amqp.KindPayday, amqp.ActionDelete); err != nil {
		return err
	}
	s.changed(userID)
	return nil
}

func (s *LedgerService) requireBillTemplate(ctx context.Context, userID, id string) error {
	ts, err := s.store.ListBillTemplates(ctx, userID)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	for _, t := range ts {
		if t.ID == id {
			return nil
		}
	}
	return fmt.Errorf("template %s: %w", id, core.ErrNotFound)
}

func (s *LedgerService) requirePaydayTemplate(ctx context.Context, userID, id string) error {
	ts, err := s.store.ListPaydayTemplates(ctx, userID)
	if err != nil {
		return fmt.Errorf("list payday templates: %w", err)
	}
	for _, t := range ts {
		if t.ID == id {
			return nil
		}
	}
	return fmt.Errorf("payday template %s: %w", id, core.ErrNotFound)
}

// templateChanged publishes the change when a publisher is configured and
// falls back to inline processing when publishing fails.
func (s *LedgerService) templateChanged(ctx context.Context, userID, templateID string, kind amqp.TemplateKind, action amqp.TemplateAction) error {
	year := s.now().Year()
	if s.publisher != nil {
		msg := amqp.NewTemplateChangedMessage(userID, templateID, kind, action, year)
		err := s.publisher.PublishTemplateChanged(ctx, msg)
		if err == nil {
			return nil
		}
		slog.WarnContext(ctx, "Publishing template change failed, syncing inline",
			"user_id", userID, "template_id", templateID, "error", err)
	}
	if action == amqp.ActionDelete {
		_, err := s.RemoveTemplateEntries(ctx, userID, templateID)
		return err
	}
	_, err := s.SyncTemplate(ctx, userID, templateID, year)
	return err
}

// SyncTemplate materializes the entries of one template for year that are
// not yet in the ledger. Inactive or non-generating templates produce
// nothing. It returns the number of new entries.
func (s *LedgerService) SyncTemplate(ctx context.Context, userID, templateID string, year int) (int, error) {
	defer s.locks.lock(userID)()
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		s.metrics.ExpansionRun(err)
		return 0, fmt.Errorf("snapshot: %w", err)
	}

	var bills []core.BillTemplate
	var paydays []core.PaydayTemplate
	for _, t := range snap.Templates {
		if t.ID == templateID {
			bills = append(bills, t)
		}
	}
	for _, t := range snap.PaydayTemplates {
		if t.ID == templateID {
			paydays = append(paydays, t)
		}
	}
	if len(bills)+len(paydays) == 0 {
		err := fmt.Errorf("template %s: %w", templateID, core.ErrNotFound)
		s.metrics.ExpansionRun(err)
		return 0, err
	}

	n, err := s.sync(ctx, userID, snap.Entries, bills, paydays, year)
	s.metrics.ExpansionRun(err)
	return n, err
}

// SyncAll materializes the missing entries of every template for year.
func (s *LedgerService) SyncAll(ctx context.Context, userID string, year int) (int, error) {
	defer s.locks.lock(userID)()
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		s.metrics.ExpansionRun(err)
		return 0, fmt.Errorf("snapshot: %w", err)
	}
	n, err := s.sync(ctx, userID, snap.Entries, snap.Templates, snap.PaydayTemplates, year)
	s.metrics.ExpansionRun(err)
	if n > 0 {
		s.changed(userID)
	}
	return n, err
}

func (s *LedgerService) sync(ctx context.Context, userID string, existing []core.Entry, bills []core.BillTemplate, paydays []core.PaydayTemplate, year int) (int, error) {
	generated := s.expander.Expand(bills, paydays, year)
	missing := PlanTemplateSync(existing, generated)
	if len(missing) == 0 {
		return 0, nil
	}
	// The store re-checks natural keys against writers in other processes.
	inserted, err := s.store.InsertMissingEntries(ctx, userID, missing...)
	if err != nil {
		return 0, fmt.Errorf("save generated entries: %w", err)
	}
	if len(inserted) == 0 {
		return 0, nil
	}

	var nb, np int
	for _, e := range inserted {
		if e.IsBill() {
			nb++
		} else {
			np++
		}
	}
	s.metrics.EntriesGenerated(nb, np)
	slog.InfoContext(ctx, "Template entries generated",
		"user_id", userID,
		"year", year,
		"generated", len(inserted),
		"skipped", len(generated)-len(inserted))
	return len(inserted), nil
}

// RemoveTemplateEntries deletes the unpaid entries generated by templateID.
func (s *LedgerService) RemoveTemplateEntries(ctx context.Context, userID, templateID string) (int, error) {
	defer s.locks.lock(userID)()
	entries, err := s.store.ListEntries(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list entries: %w", err)
	}
	ids := PlanTemplateRemoval(entries, templateID)
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.store.DeleteEntries(ctx, userID, ids...); err != nil {
		return 0, fmt.Errorf("delete template entries: %w", err)
	}
	s.metrics.EntriesRemoved(len(ids))
	slog.InfoContext(ctx, "Template entries removed",
		"user_id", userID, "template_id", templateID, "removed", len(ids))
	return len(ids), nil
}

// --- Bulk ---

// Export returns every document of the user in backup form.
func (s *LedgerService) Export(ctx context.Context, userID string) (core.Backup, error) {
	snap, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return core.Backup{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap.Backup(), nil
}

// Import adds the backup to the user's ledger in one batch. Every document
// receives a fresh id, and template links inside the backup follow their
// template to its new id.
func (s *LedgerService) Import(ctx context.Context, userID string, b core.Backup) (int, error) {
	remap := map[string]string{}
	out := core.Backup{}

	for _, a := range b.Accounts {
		a.Name = strings.TrimSpace(a.Name)
		if err := a.Validate(); err != nil {
			return 0, fmt.Errorf("account %q: %w", a.Name, err)
		}
		a.ID = s.newID()
		out.Accounts = append(out.Accounts, a)
	}
	for _, t := range b.Templates {
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("template %q: %w", t.Name, err)
		}
		id := s.newID()
		if t.ID != "" {
			remap[t.ID] = id
		}
		t.ID = id
		t.Amounts = t.Amounts.Normalize()
		out.Templates = append(out.Templates, t)
	}
	for _, t := range b.PaydayTemplates {
		if err := t.Validate(); err != nil {
			return 0, fmt.Errorf("payday template %q: %w", t.Name, err)
		}
		id := s.newID()
		if t.ID != "" {
			remap[t.ID] = id
		}
		t.ID = id
		t.Balances = t.Balances.Normalize()
		out.PaydayTemplates = append(out.PaydayTemplates, t)
	}
	for _, e := range b.Entries {
		if e.Type != core.BillEntry && e.Type != core.PaydayEntry {
			return 0, fmt.Errorf("entry %q: %w: %q", e.Name, core.ErrInvalidEntryType, e.Type)
		}
		e.ID = s.newID()
		if id, ok := remap[e.TemplateID]; ok {
			e.TemplateID = id
		}
		e.Amounts = e.Amounts.Normalize()
		e.Balances = e.Balances.Normalize()
		out.Entries = append(out.Entries, e)
	}

	if out.Len() == 0 {
		return 0, nil
	}
	if err := s.store.Import(ctx, userID, out); err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	slog.InfoContext(ctx, "Backup imported", "user_id", userID, "documents", out.Len())
	s.changed(userID)
	return out.Len(), nil
}

// DeleteAll removes every document of the user.
func (s *LedgerService) DeleteAll(ctx context.Context, userID string) error {
	if err := s.store.DeleteAll(ctx, userID); err != nil {
		return err
	}
	s.changed(userID)
	return nil
}

// Users lists users owning data, for the periodic expansion pass.
func (s *LedgerService) Users(ctx context.Context) ([]string, error) {
	return s.store.Users(ctx)
}

// IsValidation reports whether err comes from input validation.
func IsValidation(err error) bool {
	for _, target := range []error{
		core.ErrInvalidDay, core.ErrInvalidMonth, core.ErrInvalidRecurrence,
		core.ErrInvalidInterval, core.ErrEmptyName, core.ErrNameTooLong,
		core.ErrInvalidEntryType, core.ErrMalformedMonthLabel,
		core.ErrInvalidAmount, ErrInvalidInput,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrInvalidInput marks request-level validation failures.
var ErrInvalidInput = errors.New("invalid input")
