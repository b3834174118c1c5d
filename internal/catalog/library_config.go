package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// library_config keys. The table is a generic key/value store (spec.md §9
// config snapshot binding), but the Catalog only knows about these four.
const (
	configKeyBoundStore = "bound_store_id"
	configKeyEnrichVer  = "bound_enrichment_version"
	configKeyPaused     = "paused"
	configKeyPausedTil  = "paused_until"
)

// GetConfigValue returns the raw value for key, or "" if unset.
func (s *Store) GetConfigValue(ctx context.Context, key string) (string, error) {
	var value string

	err := s.configStmts.get.QueryRowContext(ctx, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("catalog: get config %q: %w", key, err)
	}

	return value, nil
}

// SetConfigValue upserts a raw key/value pair.
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.configStmts.save.ExecContext(ctx, key, value)
	if err != nil {
		return fmt.Errorf("catalog: set config %q: %w", key, err)
	}

	return nil
}

// BindStore binds this library to a remote store on first use, or refuses
// to proceed if it's already bound to a different one (spec.md §4.6 phase
// 2, §7: "a library directory is bound to exactly one remote store for its
// lifetime; running against a second store requires an explicit operator
// override"). Returns *ErrStoreBindingMismatch on mismatch.
func (s *Store) BindStore(ctx context.Context, storeID string) error {
	bound, err := s.GetConfigValue(ctx, configKeyBoundStore)
	if err != nil {
		return err
	}

	if bound == "" {
		return s.SetConfigValue(ctx, configKeyBoundStore, storeID)
	}

	if bound != storeID {
		return &ErrStoreBindingMismatch{Bound: bound, Requested: storeID}
	}

	return nil
}

// ForceRebindStore overwrites the store binding unconditionally — the
// operator override path for ErrStoreBindingMismatch.
func (s *Store) ForceRebindStore(ctx context.Context, storeID string) error {
	return s.SetConfigValue(ctx, configKeyBoundStore, storeID)
}

// BoundEnrichmentVersion returns the enrichment_version every currently
// INDEXED record was uploaded under, or "" if the library has never
// completed an upload. It returns the stored value only: LoadPending takes
// the enrichment version to compare against from its caller, and `status`
// does not report this value.
func (s *Store) BoundEnrichmentVersion(ctx context.Context) (string, error) {
	return s.GetConfigValue(ctx, configKeyEnrichVer)
}

// SetBoundEnrichmentVersion records the enrichment_version currently in
// effect.
func (s *Store) SetBoundEnrichmentVersion(ctx context.Context, version string) error {
	return s.SetConfigValue(ctx, configKeyEnrichVer, version)
}

// IsPaused reports whether the library is currently paused, and the
// paused_until time if one was set (empty when paused indefinitely). The
// time is returned as stored and is not compared with the clock, so a
// pause whose paused_until has passed still reports paused.
func (s *Store) IsPaused(ctx context.Context) (paused bool, until string, err error) {
	v, err := s.GetConfigValue(ctx, configKeyPaused)
	if err != nil {
		return false, "", err
	}

	until, err = s.GetConfigValue(ctx, configKeyPausedTil)
	if err != nil {
		return false, "", err
	}

	return v == "true", until, nil
}

// SetPaused records the library's paused state. until is an RFC3339 time
// recorded alongside the flag, or "" for none; nothing resumes the library
// automatically when that time passes.
func (s *Store) SetPaused(ctx context.Context, paused bool, until string) error {
	value := "false"
	if paused {
		value = "true"
	}

	if err := s.SetConfigValue(ctx, configKeyPaused, value); err != nil {
		return err
	}

	return s.SetConfigValue(ctx, configKeyPausedTil, until)
}
