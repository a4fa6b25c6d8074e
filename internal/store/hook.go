package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Hook binds an attention event to a plugin action.
type Hook struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    bool            `json:"enabled"`
	CreatedAt  time.Time       `json:"created_at"`
}

// HookRepository provides CRUD operations for hooks.
type HookRepository struct {
	db *sql.DB
}

// Hooks returns the hook repository for this store.
func (s *Store) Hooks() *HookRepository {
	return &HookRepository{db: s.db}
}

const hookColumns = `id, event, plugin_name, action_name, config, enabled, created_at`

func scanHook(row rowScanner) (*Hook, error) {
	h := &Hook{}
	var config string
	var enabled int

	if err := row.Scan(&h.ID, &h.Event, &h.PluginName, &h.ActionName, &config, &enabled, &h.CreatedAt); err != nil {
		return nil, err
	}

	h.Config = json.RawMessage(config)
	h.Enabled = enabled != 0
	return h, nil
}

// Create inserts a new hook into the database.
func (r *HookRepository) Create(h *Hook) error {
	h.CreatedAt = time.Now()

	config := h.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	_, err := r.db.Exec(
		`INSERT INTO hooks (id, event, plugin_name, action_name, config, enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Event, h.PluginName, h.ActionName, string(config), h.Enabled, h.CreatedAt,
	)
	return err
}

// GetByID retrieves a hook by its ID.
func (r *HookRepository) GetByID(id string) (*Hook, error) {
	h, err := scanHook(r.db.QueryRow(`SELECT `+hookColumns+` FROM hooks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return h, nil
}

// ListByEvent returns the enabled hooks for an attention event.
func (r *HookRepository) ListByEvent(event string) ([]*Hook, error) {
	return r.query(`SELECT `+hookColumns+` FROM hooks WHERE event = ? AND enabled = 1 ORDER BY created_at`, event)
}

// List retrieves all hooks from the database.
func (r *HookRepository) List() ([]*Hook, error) {
	return r.query(`SELECT ` + hookColumns + ` FROM hooks ORDER BY created_at DESC`)
}

func (r *HookRepository) query(q string, args ...any) ([]*Hook, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []*Hook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hooks, nil
}

// Update updates an existing hook in the database.
func (r *HookRepository) Update(h *Hook) error {
	config := h.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	enabled := 0
	if h.Enabled {
		enabled = 1
	}

	result, err := r.db.Exec(
		`UPDATE hooks SET event = ?, plugin_name = ?, action_name = ?, config = ?, enabled = ?
		 WHERE id = ?`,
		h.Event, h.PluginName, h.ActionName, string(config), enabled, h.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a hook from the database by its ID.
func (r *HookRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM hooks WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
