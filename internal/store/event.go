package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/mukha/internal/action"
	"github.com/ayusman/mukha/internal/gesture"
)

// EventRecord is one dispatched action in the event log.
type EventRecord struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	Event     gesture.EventName `json:"event"`
	Action    action.Kind       `json:"action"`
	Plugin    string            `json:"plugin,omitempty"`
	Command   string            `json:"command,omitempty"`
	Value     float64           `json:"value"`
	Error     string            `json:"error,omitempty"`
	At        time.Time         `json:"at"`
}

// NewEventRecord builds a log record for a dispatched action.
func NewEventRecord(session string, ev action.Event) EventRecord {
	return EventRecord{
		SessionID: session,
		Event:     ev.Trigger.Name,
		Action:    ev.Kind,
		Plugin:    ev.Plugin,
		Command:   ev.Command,
		Value:     ev.Trigger.Value,
		At:        ev.At,
	}
}

// EventRepository appends to and reads the event log.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Append stores rec and sets its ID.
func (r *EventRepository) Append(rec *EventRecord) error {
	res, err := r.db.Exec(
		`INSERT INTO events (session_id, event, action, plugin, command, value, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, string(rec.Event), string(rec.Action), rec.Plugin, rec.Command, rec.Value, rec.Error, dbTime(rec.At),
	)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// List returns up to limit records, newest first. An empty session lists
// every session; limit <= 0 means no limit.
func (r *EventRepository) List(session string, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT id, session_id, event, action, plugin, command, value, error, at
		 FROM events WHERE (? = '' OR session_id = ?)
		 ORDER BY at DESC, id DESC LIMIT ?`,
		session, session, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EventRecord
	for rows.Next() {
		rec := &EventRecord{}
		var event, kind string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &event, &kind, &rec.Plugin, &rec.Command,
			&rec.Value, &rec.Error, &rec.At); err != nil {
			return nil, err
		}
		rec.Event = gesture.EventName(event)
		rec.Action = action.Kind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes records older than before and returns how many went.
func (r *EventRepository) Prune(before time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM events WHERE at < ?`, dbTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
