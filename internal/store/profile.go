package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/drishti/internal/calibration"
)

// Profile is a stored calibration: the fitted transform plus the feature
// schema it must be applied with.
type Profile struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Schema    string                 `json:"schema"`
	Transform *calibration.Transform `json:"transform"`
	// Accuracy is the mean validation error in pixels, 0 if never validated.
	Accuracy  float64   `json:"accuracy"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileRepository provides CRUD operations for profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository for this store.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

const profileColumns = `id, name, schema, transform, accuracy, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var transform string

	if err := row.Scan(&p.ID, &p.Name, &p.Schema, &transform, &p.Accuracy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}

	p.Transform = &calibration.Transform{}
	if err := json.Unmarshal([]byte(transform), p.Transform); err != nil {
		return nil, fmt.Errorf("profile %s: corrupt transform: %w", p.ID, err)
	}
	return p, nil
}

func encodeTransform(t *calibration.Transform) (string, error) {
	if t == nil {
		return "", errors.New("profile has no transform")
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Create inserts a new profile into the database.
func (r *ProfileRepository) Create(p *Profile) error {
	transform, err := encodeTransform(p.Transform)
	if err != nil {
		return err
	}

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err = r.db.Exec(
		`INSERT INTO profiles (id, name, schema, feature_count, mode, transform, accuracy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Schema, p.Transform.FeatureCount, string(p.Transform.Mode), transform, p.Accuracy, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(id string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// GetByName retrieves a profile by its name.
func (r *ProfileRepository) GetByName(name string) (*Profile, error) {
	p, err := scanProfile(r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List retrieves all profiles, newest first.
func (r *ProfileRepository) List() ([]*Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return profiles, nil
}

// Update replaces the name, transform and accuracy of an existing profile.
func (r *ProfileRepository) Update(p *Profile) error {
	transform, err := encodeTransform(p.Transform)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE profiles SET name = ?, schema = ?, feature_count = ?, mode = ?, transform = ?, accuracy = ?, updated_at = ?
		 WHERE id = ?`,
		p.Name, p.Schema, p.Transform.FeatureCount, string(p.Transform.Mode), transform, p.Accuracy, p.UpdatedAt, p.ID,
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

// Delete removes a profile from the database by its ID.
func (r *ProfileRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
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
