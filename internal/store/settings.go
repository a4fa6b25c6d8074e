package store

import (
	"database/sql"
	"errors"
)

// Setting keys.
const (
	SettingActiveProfile = "active_profile"
)

// SettingsRepository reads and writes key-value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value for key or ErrNotFound.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Delete removes key. Deleting a missing key is not an error.
func (r *SettingsRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// ActiveProfile returns the active profile, or ErrNotFound when none is set
// or the stored ID no longer exists.
func (s *Store) ActiveProfile() (*Profile, error) {
	id, err := s.Settings().Get(SettingActiveProfile)
	if err != nil {
		return nil, err
	}
	return s.Profiles().GetByID(id)
}

// SetActiveProfile marks the profile with id as active.
func (s *Store) SetActiveProfile(id string) error {
	if _, err := s.Profiles().GetByID(id); err != nil {
		return err
	}
	return s.Settings().Set(SettingActiveProfile, id)
}
