package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/mukha/internal/config"
)

// ConfigKey is the settings key holding the JSON configuration overlay.
const ConfigKey = "config"

// SettingsRepository stores string settings by key.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var v string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
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

// Delete removes key.
func (r *SettingsRepository) Delete(key string) error {
	return affected(r.db.Exec(`DELETE FROM settings WHERE key = ?`, key))
}

// SaveConfig stores cfg as the configuration overlay.
func (r *SettingsRepository) SaveConfig(cfg *config.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return r.Set(ConfigKey, string(data))
}

// LoadConfig merges the stored overlay into cfg. It reports false when no
// overlay is stored; cfg is left unchanged on any error.
func (r *SettingsRepository) LoadConfig(cfg *config.Config) (bool, error) {
	data, err := r.Get(ConfigKey)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := cfg.Merge([]byte(data)); err != nil {
		return false, fmt.Errorf("stored config: %w", err)
	}
	return true, nil
}
