package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/gesture"
)

// Binding is a stored gesture to action binding.
type Binding struct {
	ID        string            `json:"id"`
	Event     gesture.EventName `json:"event"`
	Action    action.Spec       `json:"action"`
	Enabled   bool              `json:"enabled"`
	CreatedAt time.Time         `json:"created_at"`
}

// Validate checks the event and the action.
func (b *Binding) Validate() error {
	if !b.Event.Valid() {
		return fmt.Errorf("event %q: %w", b.Event, action.ErrInvalidBinding)
	}
	return b.Action.Validate()
}

// BindingRepository stores bindings.
type BindingRepository struct {
	db *sql.DB
}

// Bindings returns the binding repository.
func (s *Store) Bindings() *BindingRepository {
	return &BindingRepository{db: s.db}
}

const bindingColumns = `id, event, action, plugin, command, enabled, created_at`

// Create validates and inserts b, assigning an ID when missing.
func (r *BindingRepository) Create(b *Binding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now()
	return insertBinding(r.db, b)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertBinding(db execer, b *Binding) error {
	_, err := db.Exec(
		`INSERT INTO bindings (`+bindingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, string(b.Event), string(b.Action.Kind), b.Action.Plugin, b.Action.Command, b.Enabled, dbTime(b.CreatedAt),
	)
	return err
}

// Get returns the binding with the given ID.
func (r *BindingRepository) Get(id string) (*Binding, error) {
	b, err := scanBinding(r.db.QueryRow(`SELECT `+bindingColumns+` FROM bindings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// List returns every binding in creation order.
func (r *BindingRepository) List() ([]*Binding, error) {
	rows, err := r.db.Query(`SELECT ` + bindingColumns + ` FROM bindings ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Binding
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Update replaces the event, action and enabled flag of an existing binding.
func (r *BindingRepository) Update(b *Binding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return affected(r.db.Exec(
		`UPDATE bindings SET event = ?, action = ?, plugin = ?, command = ?, enabled = ? WHERE id = ?`,
		string(b.Event), string(b.Action.Kind), b.Action.Plugin, b.Action.Command, b.Enabled, b.ID,
	))
}

// Delete removes a binding.
func (r *BindingRepository) Delete(id string) error {
	return affected(r.db.Exec(`DELETE FROM bindings WHERE id = ?`, id))
}

// Count returns the number of stored bindings.
func (r *BindingRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM bindings`).Scan(&n)
	return n, err
}

// Table returns the enabled bindings as a dispatch table.
func (r *BindingRepository) Table() (action.Bindings, error) {
	list, err := r.List()
	if err != nil {
		return nil, err
	}
	table := action.Bindings{}
	for _, b := range list {
		if !b.Enabled {
			continue
		}
		if err := table.Add(b.Event, b.Action); err != nil {
			return nil, fmt.Errorf("binding %s: %w", b.ID, err)
		}
	}
	return table, nil
}

// Seed stores table when no bindings exist yet. It reports whether it wrote.
func (r *BindingRepository) Seed(table action.Bindings) (bool, error) {
	n, err := r.Count()
	if err != nil || n > 0 {
		return false, err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, cb := range table.ToConfig() {
		b := &Binding{
			ID:        uuid.NewString(),
			Event:     gesture.EventName(cb.Event),
			Action:    action.Spec{Kind: action.Kind(cb.Action), Plugin: cb.Plugin, Command: cb.Command},
			Enabled:   true,
			CreatedAt: now,
		}
		if err := insertBinding(tx, b); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}

func scanBinding(row scanner) (*Binding, error) {
	b := &Binding{}
	var event, kind string
	if err := row.Scan(&b.ID, &event, &kind, &b.Action.Plugin, &b.Action.Command, &b.Enabled, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Event = gesture.EventName(event)
	b.Action.Kind = action.Kind(kind)
	return b, nil
}
