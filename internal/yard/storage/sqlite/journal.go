package sqlite

import (
	"database/sql"
	"time"

	"github.com/banshee-data/yard.fusion/internal/yard/fusion"
)

// EventRecord is one row of the event journal.
type EventRecord struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	AssetID    string    `json:"asset_id"`
	AssetType  string    `json:"asset_type"`
	OldState   string    `json:"old_state,omitempty"`
	NewState   string    `json:"new_state,omitempty"`
	X          *float64  `json:"x,omitempty"`
	Y          *float64  `json:"y,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Source     string    `json:"source,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecordEvent appends ev to the journal. Only the event and the asset's
// position at that moment are stored, never the trajectory.
func (s *Store) RecordEvent(ev fusion.Event) error {
	var x, y, conf sql.NullFloat64
	var source string
	if ev.Asset != nil {
		x = sql.NullFloat64{Float64: ev.Asset.Position.Position.X, Valid: true}
		y = sql.NullFloat64{Float64: ev.Asset.Position.Position.Y, Valid: true}
		conf = sql.NullFloat64{Float64: ev.Asset.Position.Confidence, Valid: true}
		source = string(ev.Asset.Position.Source)
	}
	_, err := s.Exec(`
		INSERT INTO yard_events (event_type, asset_id, asset_type, old_state, new_state, x, y, confidence, source, ts_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ev.Type), ev.AssetID, string(ev.AssetType), string(ev.OldState), string(ev.NewState),
		x, y, conf, source, ev.Timestamp.UnixNano(),
	)
	return err
}

// JournalHandler returns an event handler that records every event.
func (s *Store) JournalHandler() fusion.EventHandler {
	return s.RecordEvent
}

// RecentEvents returns up to limit journal entries, newest first.
func (s *Store) RecentEvents(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Query(`
		SELECT event_id, event_type, asset_id, asset_type, old_state, new_state, x, y, confidence, source, ts_unix_nanos
		FROM yard_events ORDER BY event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		var x, y, conf sql.NullFloat64
		var ts int64
		if err := rows.Scan(&r.ID, &r.Type, &r.AssetID, &r.AssetType, &r.OldState, &r.NewState, &x, &y, &conf, &r.Source, &ts); err != nil {
			return nil, err
		}
		r.X = nullableFloat(x)
		r.Y = nullableFloat(y)
		r.Confidence = nullableFloat(conf)
		r.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
