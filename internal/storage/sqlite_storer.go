// internal/storage/sqlite_storer.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Corphon/DialogueEngine/internal/models"
	"github.com/Corphon/DialogueEngine/internal/savesystem"
	"github.com/Corphon/DialogueEngine/internal/utils"
)

// SQLiteStorer keeps saved games in a SQLite table, one row per slot.
type SQLiteStorer struct {
	db         *sql.DB
	serializer savesystem.Serializer
	logger     *utils.Logger
}

// NewSQLiteStorer opens or creates the save database at dbPath.
func NewSQLiteStorer(dbPath string, serializer savesystem.Serializer, logger *utils.Logger) (*SQLiteStorer, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared between calls
	db.SetMaxOpenConns(1)

	if serializer == nil {
		serializer = savesystem.JSONSerializer{}
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	s := &SQLiteStorer{db: db, serializer: serializer, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorer) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS saved_games (
		slot        INTEGER PRIMARY KEY,
		scene_name  TEXT NOT NULL DEFAULT '',
		scene_index INTEGER NOT NULL DEFAULT -1,
		data        TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_saved_games_updated ON saved_games(updated_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Add scene_index column if missing (upgrade from older schema)
	s.db.Exec(`ALTER TABLE saved_games ADD COLUMN scene_index INTEGER NOT NULL DEFAULT -1`)
	return nil
}

// Close releases the database.
func (s *SQLiteStorer) Close() error {
	return s.db.Close()
}

// HasDataInSlot implements savesystem.Storer.
func (s *SQLiteStorer) HasDataInSlot(ctx context.Context, slot int) bool {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM saved_games WHERE slot = ?`, slot).Scan(&n)
	if err != nil {
		s.logger.Error("Failed to query save slot", map[string]interface{}{"slot": slot, "error": err.Error()})
		return false
	}
	return n > 0
}

// StoreSavedGameData implements savesystem.Storer.
func (s *SQLiteStorer) StoreSavedGameData(ctx context.Context, slot int, data *models.SavedGameData) error {
	if slot < 0 {
		return fmt.Errorf("invalid save slot %d", slot)
	}
	content, err := s.serializer.Serialize(data)
	if err != nil {
		s.logger.Error("Failed to serialize saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saved_games (slot, scene_name, scene_index, data, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET scene_name = excluded.scene_name, scene_index = excluded.scene_index,
			data = excluded.data, updated_at = excluded.updated_at`,
		slot, data.SceneName, data.SceneIndex, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		s.logger.Error("Failed to store saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return fmt.Errorf("store slot %d: %w", slot, err)
	}
	return nil
}

// RetrieveSavedGameData implements savesystem.Storer.
func (s *SQLiteStorer) RetrieveSavedGameData(ctx context.Context, slot int) *models.SavedGameData {
	var (
		content    string
		sceneIndex int
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, scene_index FROM saved_games WHERE slot = ?`, slot).Scan(&content, &sceneIndex)
	if err == sql.ErrNoRows {
		return models.NewSavedGameData()
	}
	if err != nil {
		s.logger.Error("Failed to read saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return models.NewSavedGameData()
	}

	data, err := s.serializer.Deserialize(content)
	if err != nil {
		s.logger.Error("Failed to deserialize saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
		return models.NewSavedGameData()
	}
	if data.SceneIndex == models.NoSceneIndex {
		data.SceneIndex = sceneIndex
	}
	return data
}

// DeleteSavedGameData implements savesystem.Storer.
func (s *SQLiteStorer) DeleteSavedGameData(ctx context.Context, slot int) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saved_games WHERE slot = ?`, slot); err != nil {
		s.logger.Error("Failed to delete saved game", map[string]interface{}{"slot": slot, "error": err.Error()})
	}
}

// ListSlots implements savesystem.SlotLister.
func (s *SQLiteStorer) ListSlots(ctx context.Context) []savesystem.SlotInfo {
	rows, err := s.db.QueryContext(ctx, `SELECT slot, scene_name FROM saved_games ORDER BY slot`)
	if err != nil {
		s.logger.Error("Failed to list save slots", map[string]interface{}{"error": err.Error()})
		return nil
	}
	defer rows.Close()

	var slots []savesystem.SlotInfo
	for rows.Next() {
		var info savesystem.SlotInfo
		if err := rows.Scan(&info.Slot, &info.SceneName); err != nil {
			s.logger.Error("Failed to scan save slot", map[string]interface{}{"error": err.Error()})
			return slots
		}
		slots = append(slots, info)
	}
	return slots
}
