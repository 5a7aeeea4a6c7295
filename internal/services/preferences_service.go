package services

import (
	"context"
	"fmt"
	"log/slog"

	"paycal/internal/core"
	"paycal/internal/ledger"
)

// PreferencesService reads and writes the per-user calendar settings kept
// in the ledger store.
type PreferencesService struct {
	store ledger.PreferencesStore
	locks userLocks
}

func NewPreferencesService(store ledger.PreferencesStore) *PreferencesService {
	return &PreferencesService{store: store}
}

// Get returns the stored preferences, or the defaults for a new user.
func (s *PreferencesService) Get(ctx context.Context, userID string) (core.Preferences, error) {
	p, _, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return core.DefaultPreferences(), fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

func (s *PreferencesService) Put(ctx context.Context, userID string, p core.Preferences) error {
	defer s.locks.lock(userID)()
	if err := s.store.SavePreferences(ctx, userID, p); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	slog.DebugContext(ctx, "Preferences saved", "user_id", userID)
	return nil
}

// Update applies fn to the current preferences and stores the result.
func (s *PreferencesService) Update(ctx context.Context, userID string, fn func(*core.Preferences)) (core.Preferences, error) {
	defer s.locks.lock(userID)()
	p, _, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		return core.Preferences{}, fmt.Errorf("get preferences: %w", err)
	}
	fn(&p)
	if err := s.store.SavePreferences(ctx, userID, p); err != nil {
		return core.Preferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return p, nil
}
