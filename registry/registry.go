// Package registry keeps trained ensembles in SQLite and tracks which one
// is active.
package registry

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agricure/oofstack/pkg/errors"
	"github.com/agricure/oofstack/pkg/log"
	"github.com/agricure/oofstack/stacking"
)

const schema = `
CREATE TABLE IF NOT EXISTS ensembles (
	ensemble_id      TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL, -- unix nanoseconds, UTC
	families_json    TEXT NOT NULL,
	targets_json     TEXT NOT NULL,
	unknown_policy   TEXT NOT NULL,
	overall_accuracy REAL NOT NULL,
	blob             BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS active_ensemble (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	ensemble_id TEXT NOT NULL,
	FOREIGN KEY (ensemble_id) REFERENCES ensembles(ensemble_id)
);
`

var (
	// ErrNotFound is returned for an unknown ensemble id.
	ErrNotFound = errors.New("ensemble not found")
	// ErrNoActive is returned when no ensemble has been activated.
	ErrNoActive = errors.New("no active ensemble")
)

// Entry describes one stored ensemble.
type Entry struct {
	ID              uuid.UUID
	CreatedAt       time.Time
	Families        []string
	Targets         []string
	UnknownPolicy   string
	OverallAccuracy float64
	Size            int
	Active          bool
}

// Registry is a SQLite-backed ensemble store.
type Registry struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens (or creates) the registry at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	if path == ":memory:" {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "pragma %q", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return &Registry{db: db, logger: log.GetLoggerWithName("registry")}, nil
}

// Close closes the database.
func (r *Registry) Close() error { return r.db.Close() }

// Put stores ens with its evaluation accuracy.
func (r *Registry) Put(ctx context.Context, ens *stacking.Ensemble, overallAccuracy float64) (Entry, error) {
	blob, err := ens.Marshal()
	if err != nil {
		return Entry{}, err
	}
	families, err := json.Marshal(ens.Families)
	if err != nil {
		return Entry{}, errors.Wrap(err, "marshal families")
	}
	targets, err := json.Marshal(ens.Targets)
	if err != nil {
		return Entry{}, errors.Wrap(err, "marshal targets")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO ensembles (ensemble_id, created_at, families_json, targets_json, unknown_policy, overall_accuracy, blob)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ens.ID.String(), ens.CreatedAt.UnixNano(), string(families), string(targets),
		string(ens.Policy), overallAccuracy, blob,
	)
	if err != nil {
		return Entry{}, errors.Wrap(err, "insert ensemble")
	}
	r.logger.Info("Ensemble stored",
		log.OperationKey, log.OperationSave,
		"ensemble_id", ens.ID.String(),
		log.AccuracyKey, overallAccuracy,
		log.DataSizeKey, len(blob),
	)
	return Entry{
		ID:              ens.ID,
		CreatedAt:       ens.CreatedAt.UTC(),
		Families:        ens.Families,
		Targets:         ens.Targets,
		UnknownPolicy:   string(ens.Policy),
		OverallAccuracy: overallAccuracy,
		Size:            len(blob),
	}, nil
}

// Activate points the registry at ensemble id.
func (r *Registry) Activate(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ensembles WHERE ensemble_id = ?`, id.String()).Scan(&n); err != nil {
		return errors.Wrap(err, "lookup ensemble")
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "activate %s", id)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_ensemble (id, ensemble_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET ensemble_id = excluded.ensemble_id`, id.String())
	if err != nil {
		return errors.Wrap(err, "update active")
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	r.logger.Info("Ensemble activated", "ensemble_id", id.String())
	return nil
}

// ActiveID returns the id of the active ensemble.
func (r *Registry) ActiveID(ctx context.Context) (uuid.UUID, error) {
	var s string
	err := r.db.QueryRowContext(ctx, `SELECT ensemble_id FROM active_ensemble WHERE id = 1`).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNoActive
	}
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "get active")
	}
	return uuid.Parse(s)
}

// Active loads the active ensemble.
func (r *Registry) Active(ctx context.Context) (*stacking.Ensemble, error) {
	id, err := r.ActiveID(ctx)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Get loads and validates ensemble id.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*stacking.Ensemble, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT blob FROM ensembles WHERE ensemble_id = ?`, id.String()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "get %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get ensemble")
	}
	return stacking.Load(bytes.NewReader(blob))
}

// List returns all stored ensembles, newest first.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	active, err := r.ActiveID(ctx)
	if err != nil && !errors.Is(err, ErrNoActive) {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ensemble_id, created_at, families_json, targets_json, unknown_policy, overall_accuracy, length(blob)
		 FROM ensembles ORDER BY created_at DESC, ensemble_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list ensembles")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			id                string
			created           int64
			families, targets string
		)
		if err := rows.Scan(&id, &created, &families, &targets, &e.UnknownPolicy, &e.OverallAccuracy, &e.Size); err != nil {
			return nil, errors.Wrap(err, "scan ensemble")
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrap(err, "parse ensemble id")
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		if err := json.Unmarshal([]byte(families), &e.Families); err != nil {
			return nil, errors.Wrap(err, "unmarshal families")
		}
		if err := json.Unmarshal([]byte(targets), &e.Targets); err != nil {
			return nil, errors.Wrap(err, "unmarshal targets")
		}
		e.Active = e.ID == active
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "list ensembles")
}

// Refresh swaps the active ensemble into h when it differs from the one h
// serves. It reports whether a swap happened.
func (r *Registry) Refresh(ctx context.Context, h *stacking.Holder) (bool, error) {
	id, err := r.ActiveID(ctx)
	if err != nil {
		return false, err
	}
	if cur := h.Current(); cur != nil && cur.ID == id {
		return false, nil
	}
	ens, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	h.Swap(ens)
	r.logger.Info("Serving ensemble", log.OperationKey, log.OperationLoad, "ensemble_id", id.String())
	return true, nil
}
