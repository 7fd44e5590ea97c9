package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mukha/internal/calibration"
	"github.com/ayusman/mukha/internal/landmark"
)

// Profile is a saved calibration.
type Profile struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Result    calibration.Result `json:"result"`
	ScreenW   int                `json:"screen_w"`
	ScreenH   int                `json:"screen_h"`
	CreatedAt time.Time          `json:"created_at"`
}

// ProfileRepository stores calibration profiles.
type ProfileRepository struct {
	db *sql.DB
}

// Profiles returns the profile repository.
func (s *Store) Profiles() *ProfileRepository {
	return &ProfileRepository{db: s.db}
}

const profileColumns = `id, name, center_x, center_y, min_x, max_x, min_y, max_y,
	blink_threshold, mouth_threshold, screen_w, screen_h, created_at`

// Save inserts p, assigning an ID and creation time when missing.
func (r *ProfileRepository) Save(p *Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res := p.Result
	_, err := r.db.Exec(
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, res.Center.X, res.Center.Y,
		res.Range.MinX, res.Range.MaxX, res.Range.MinY, res.Range.MaxY,
		res.BlinkThreshold, res.MouthThreshold, p.ScreenW, p.ScreenH, dbTime(p.CreatedAt),
	)
	return err
}

// Get returns the profile with the given ID.
func (r *ProfileRepository) Get(id string) (*Profile, error) {
	return scanProfile(r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
}

// Latest returns the most recently saved profile.
func (r *ProfileRepository) Latest() (*Profile, error) {
	return scanProfile(r.db.QueryRow(
		`SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	))
}

// List returns every profile, newest first.
func (r *ProfileRepository) List() ([]*Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Delete removes a profile.
func (r *ProfileRepository) Delete(id string) error {
	return affected(r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id))
}

// Prune keeps the newest keep profiles and deletes the rest.
func (r *ProfileRepository) Prune(keep int) error {
	_, err := r.db.Exec(
		`DELETE FROM profiles WHERE id NOT IN (
			SELECT id FROM profiles ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`, keep,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*Profile, error) {
	p := &Profile{}
	var c landmark.Point
	var rng calibration.Range
	err := row.Scan(&p.ID, &p.Name, &c.X, &c.Y, &rng.MinX, &rng.MaxX, &rng.MinY, &rng.MaxY,
		&p.Result.BlinkThreshold, &p.Result.MouthThreshold, &p.ScreenW, &p.ScreenH, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Result.Center = c
	p.Result.Range = rng
	p.Result.CompletedAt = p.CreatedAt
	return p, nil
}
