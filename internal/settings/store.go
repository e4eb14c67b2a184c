// Package settings persists the dynamic power policy settings in SQLite as a
// flat key/value table and raises a coarse change signal on every write.
package settings

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"
)

// #region keys

// Setting keys. Values are stored as text and parsed by the typed getters.
const (
	KeyScreenOffTimeout             = "screen_off_timeout"
	KeyStayOnWhilePluggedIn         = "stay_on_while_plugged_in"
	KeyWakeUpWhenPluggedOrUnplugged = "wake_up_when_plugged_or_unplugged"
	KeyScreensaverEnabled           = "screensaver_enabled"
	KeyScreensaverActivateOnSleep   = "screensaver_activate_on_sleep"
	KeyScreensaverActivateOnDock    = "screensaver_activate_on_dock"
	KeyScreenBrightness             = "screen_brightness"
	KeyScreenBrightnessMode         = "screen_brightness_mode"
	KeyAutoBrightnessAdjustment     = "auto_brightness_adjustment"
	KeyAutoBrightnessResponsiveness = "auto_brightness_responsiveness"
	KeyButtonBrightness             = "button_brightness"
	KeyKeyboardBrightness           = "keyboard_brightness"
	KeyButtonLightTimeout           = "button_light_timeout"
)

// Screen brightness modes stored under KeyScreenBrightnessMode.
const (
	BrightnessModeManual    = "manual"
	BrightnessModeAutomatic = "automatic"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key    TEXT PRIMARY KEY,
	value  TEXT NOT NULL
);
`

// #endregion schema

// #region store

// Store is the sqlite-backed settings table. All getters fall back to the
// supplied default when the key is absent or unparsable.
type Store struct {
	db *sql.DB

	mu       sync.Mutex
	onChange func()
}

// Open opens (creating if needed) the settings database and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. the
// event log), which share one database file with the settings.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetOnChange registers the single change callback. The store raises it
// after every Put that alters a value; it carries no key, so consumers
// reread everything they care about.
func (s *Store) SetOnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// #endregion

// #region put

// Put upserts one setting and fires the change callback if the stored value
// actually changed.
func (s *Store) Put(key, value string) error {
	prev, hadPrev := s.getString(key)
	if hadPrev && prev == value {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

// PutInt64 stores an integer setting.
func (s *Store) PutInt64(key string, v int64) error {
	return s.Put(key, strconv.FormatInt(v, 10))
}

// PutBool stores a boolean setting.
func (s *Store) PutBool(key string, v bool) error {
	return s.Put(key, strconv.FormatBool(v))
}

// PutFloat stores a float setting.
func (s *Store) PutFloat(key string, v float64) error {
	return s.Put(key, strconv.FormatFloat(v, 'f', -1, 64))
}

// #endregion

// #region getters

func (s *Store) getString(key string) (string, bool) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return "", false
	}
	return v, true
}

// GetString returns the raw value for key, or def when absent.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.getString(key); ok {
		return v
	}
	return def
}

// GetInt64 returns the integer value for key, or def when absent or invalid.
func (s *Store) GetInt64(key string, def int64) int64 {
	v, ok := s.getString(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// GetInt returns GetInt64 narrowed to int.
func (s *Store) GetInt(key string, def int) int {
	return int(s.GetInt64(key, int64(def)))
}

// GetBool returns the boolean value for key, or def when absent or invalid.
func (s *Store) GetBool(key string, def bool) bool {
	v, ok := s.getString(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetFloat returns the float value for key, or def when absent or invalid.
func (s *Store) GetFloat(key string, def float64) float64 {
	v, ok := s.getString(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// All returns every stored setting, for inspection tooling.
func (s *Store) All() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// #endregion
