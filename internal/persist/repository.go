package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuedeck/cuedeck-agent/internal/catalog"
	"github.com/cuedeck/cuedeck-agent/internal/soundboard"
)

const (
	soundboardKey = 0
	directoryKey  = "directory"
)

// Repository is the agent's key-value persistence: the config table, the
// single soundboard row and the stored root directory handle.
type Repository interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	LoadSounds(ctx context.Context) ([]soundboard.SoundEffect, error)
	SaveSounds(ctx context.Context, sounds []soundboard.SoundEffect) error
	ClearSounds(ctx context.Context) error

	GetDirectory(ctx context.Context) (*catalog.StoredDirectory, error)
	PutDirectory(ctx context.Context, dir catalog.StoredDirectory) error
	ClearHandles(ctx context.Context) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// storedSound is the persisted shape of a board sound; playing state is
// never written.
type storedSound struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Volume      float64 `json:"volume"`
	FreesoundID int     `json:"freesound_id,omitempty"`
}

// LoadSounds returns the persisted board, or nil when none was saved.
// Every returned sound has IsPlaying false.
func (r *SQLiteRepository) LoadSounds(ctx context.Context) ([]soundboard.SoundEffect, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT sounds FROM soundboard WHERE id = ?`, soundboardKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stored []storedSound
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("failed to decode soundboard: %w", err)
	}

	sounds := make([]soundboard.SoundEffect, len(stored))
	for i, s := range stored {
		sounds[i] = soundboard.SoundEffect{
			ID:          s.ID,
			Name:        s.Name,
			URL:         s.URL,
			Volume:      s.Volume,
			FreesoundID: s.FreesoundID,
		}
	}
	return sounds, nil
}

// SaveSounds overwrites the board row with the full list.
func (r *SQLiteRepository) SaveSounds(ctx context.Context, sounds []soundboard.SoundEffect) error {
	stored := make([]storedSound, len(sounds))
	for i, s := range sounds {
		stored[i] = storedSound{
			ID:          s.ID,
			Name:        s.Name,
			URL:         s.URL,
			Volume:      s.Volume,
			FreesoundID: s.FreesoundID,
		}
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode soundboard: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO soundboard (id, sounds, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sounds = excluded.sounds, updated_at = excluded.updated_at
	`, soundboardKey, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) ClearSounds(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM soundboard`)
	return err
}

// GetDirectory returns the stored root handle, or nil when none is stored.
func (r *SQLiteRepository) GetDirectory(ctx context.Context) (*catalog.StoredDirectory, error) {
	var dir catalog.StoredDirectory
	err := r.db.QueryRowContext(ctx, `
		SELECT path, name FROM file_system_handles WHERE id = ?
	`, directoryKey).Scan(&dir.Path, &dir.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dir, nil
}

func (r *SQLiteRepository) PutDirectory(ctx context.Context, dir catalog.StoredDirectory) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO file_system_handles (id, path, name, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET path = excluded.path, name = excluded.name, updated_at = excluded.updated_at
	`, directoryKey, dir.Path, dir.Name, time.Now().UTC().Format(time.RFC3339))
	return err
}

// ClearHandles removes every stored handle.
func (r *SQLiteRepository) ClearHandles(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM file_system_handles`)
	return err
}
