package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/i474232898/mesonet-data-aggregation/internal/normalize"
	"github.com/i474232898/mesonet-data-aggregation/internal/weather"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
  id          TEXT    PRIMARY KEY,
  stid        TEXT    NOT NULL,
  fetched_at  INTEGER NOT NULL,
  observed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_stid_fetched ON snapshots(stid, fetched_at);

CREATE TABLE IF NOT EXISTS observations (
  snapshot_id  TEXT    NOT NULL,
  idx          INTEGER NOT NULL,
  variable     TEXT    NOT NULL,
  sensor_index INTEGER NOT NULL,
  is_derived   INTEGER NOT NULL,
  date_time    INTEGER,
  value        REAL,
  value_string TEXT,
  units        TEXT    NOT NULL,
  qc_passed    INTEGER,
  qc_flags     TEXT,
  station      TEXT    NOT NULL,
  PRIMARY KEY (snapshot_id, idx),
  FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);
`

// SQLiteStore persists snapshots in SQLite with the same retention rules as
// MemoryStore.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
	maxAge     time.Duration
	now        func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, maxHistory int, maxAge time.Duration) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
		dsn = "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// One connection keeps :memory: databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	s, err := NewSQLiteStore(db, maxHistory, maxAge)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an open database and creates the schema.
func NewSQLiteStore(db *sql.DB, maxHistory int, maxAge time.Duration) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{
		db:         db,
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot inserts the snapshot and its rows, then enforces retention
// for the station.
func (s *SQLiteStore) SaveSnapshot(snapshot weather.Snapshot) error {
	key := stationKey(snapshot.STID)
	if key == "" {
		return errors.New("snapshot has no station id")
	}
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, stid, fetched_at, observed_at) VALUES (?, ?, ?, ?)`,
		snapshot.ID.String(), key, snapshot.FetchedAt.UTC().UnixNano(), snapshot.ObservedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations
		(snapshot_id, idx, variable, sensor_index, is_derived, date_time, value, value_string, units, qc_passed, qc_flags, station)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare observations: %w", err)
	}
	defer stmt.Close()

	for i, r := range snapshot.Rows {
		station, err := json.Marshal(r.Station)
		if err != nil {
			return fmt.Errorf("encode station: %w", err)
		}
		var dateTime, qcPassed, qcFlags any
		if r.DateTime != nil {
			dateTime = r.DateTime.UTC().UnixNano()
		}
		if r.QCPassed != nil {
			qcPassed = *r.QCPassed
		}
		if r.QCFlags != nil {
			b, err := json.Marshal(r.QCFlags)
			if err != nil {
				return fmt.Errorf("encode qc flags: %w", err)
			}
			qcFlags = string(b)
		}
		_, err = stmt.ExecContext(ctx, snapshot.ID.String(), i, r.Variable, r.SensorIndex, r.IsDerived,
			dateTime, nullableFloat(r.Value), nullableString(r.ValueString), r.Units, qcPassed, qcFlags, string(station))
		if err != nil {
			return fmt.Errorf("insert observation %d: %w", i, err)
		}
	}

	if err := s.enforceRetention(ctx, tx, key); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) enforceRetention(ctx context.Context, tx *sql.Tx, key string) error {
	if s.maxHistory > 0 {
		_, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE stid = ? AND id NOT IN (
			SELECT id FROM snapshots WHERE stid = ? ORDER BY fetched_at DESC LIMIT ?)`,
			key, key, s.maxHistory)
		if err != nil {
			return fmt.Errorf("retention by count: %w", err)
		}
	}
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge).UTC().UnixNano()
		if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE stid = ? AND fetched_at < ?`, key, cutoff); err != nil {
			return fmt.Errorf("retention by age: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE snapshot_id NOT IN (SELECT id FROM snapshots)`)
	if err != nil {
		return fmt.Errorf("retention cleanup: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for a station.
func (s *SQLiteStore) GetLatest(stid string) (weather.Snapshot, error) {
	snaps, err := s.querySnapshots(`SELECT id, stid, fetched_at, observed_at FROM snapshots
		WHERE stid = ? ORDER BY fetched_at DESC LIMIT 1`, stationKey(stid))
	if err != nil {
		return weather.Snapshot{}, err
	}
	if len(snaps) == 0 {
		return weather.Snapshot{}, ErrNotFound
	}
	return snaps[0], nil
}

// GetRange returns all snapshots for a station fetched between from and to (inclusive).
func (s *SQLiteStore) GetRange(stid string, from, to time.Time) ([]weather.Snapshot, error) {
	snaps, err := s.querySnapshots(`SELECT id, stid, fetched_at, observed_at FROM snapshots
		WHERE stid = ? AND fetched_at >= ? AND fetched_at <= ? ORDER BY fetched_at`,
		stationKey(stid), from.UTC().UnixNano(), to.UTC().UnixNano())
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return snaps, nil
}

func (s *SQLiteStore) querySnapshots(query string, args ...any) ([]weather.Snapshot, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}

	var snaps []weather.Snapshot
	for rows.Next() {
		var (
			id                    string
			snap                  weather.Snapshot
			fetchedAt, observedAt int64
		)
		if err := rows.Scan(&id, &snap.STID, &fetchedAt, &observedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if snap.ID, err = uuid.Parse(id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("snapshot id %q: %w", id, err)
		}
		snap.FetchedAt = time.Unix(0, fetchedAt).UTC()
		snap.ObservedAt = time.Unix(0, observedAt).UTC()
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range snaps {
		if snaps[i].Rows, err = s.loadRows(snaps[i].ID); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

func (s *SQLiteStore) loadRows(id uuid.UUID) ([]normalize.Row, error) {
	rows, err := s.db.Query(`SELECT variable, sensor_index, is_derived, date_time, value, value_string,
		units, qc_passed, qc_flags, station FROM observations WHERE snapshot_id = ? ORDER BY idx`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []normalize.Row
	for rows.Next() {
		var (
			r           normalize.Row
			dateTime    sql.NullInt64
			value       sql.NullFloat64
			valueString sql.NullString
			qcPassed    sql.NullBool
			qcFlags     sql.NullString
			station     string
		)
		if err := rows.Scan(&r.Variable, &r.SensorIndex, &r.IsDerived, &dateTime, &value, &valueString,
			&r.Units, &qcPassed, &qcFlags, &station); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if err := json.Unmarshal([]byte(station), &r.Station); err != nil {
			return nil, fmt.Errorf("decode station: %w", err)
		}
		if dateTime.Valid {
			t := time.Unix(0, dateTime.Int64).UTC()
			r.DateTime = &t
		}
		if value.Valid {
			v := value.Float64
			r.Value = &v
		}
		if valueString.Valid {
			v := valueString.String
			r.ValueString = &v
		}
		if qcPassed.Valid {
			v := qcPassed.Bool
			r.QCPassed = &v
		}
		if qcFlags.Valid {
			if err := json.Unmarshal([]byte(qcFlags.String), &r.QCFlags); err != nil {
				return nil, fmt.Errorf("decode qc flags: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
