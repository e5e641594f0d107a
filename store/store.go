// ════════════════════════════════════════════════════════════════════════════════════════════════
// Run History Store
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: SQLite Persistence for Completed Sweeps
//
// Description:
//   Keeps completed latency matrices in a SQLite database so runs on the same host can be
//   listed and re-rendered later. Only the upper triangle is stored; loading rebuilds the
//   symmetric matrix with an unset diagonal.
//
// Schema:
//   runs(id, fingerprint, host, protocol, batches, warmup, cpus, started_at, elapsed_ns)
//   latencies(run_id, cpu_a, cpu_b, latency_ns)   cpu_a precedes cpu_b in the run's cpu order
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"c2clat/affinity"
	"c2clat/probe"
	"c2clat/sweep"
	"c2clat/topology"
	"c2clat/utils"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/sha3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT    NOT NULL,
	host        TEXT    NOT NULL,
	protocol    TEXT    NOT NULL,
	batches     INTEGER NOT NULL,
	warmup      INTEGER NOT NULL,
	cpus        TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	elapsed_ns  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
CREATE TABLE IF NOT EXISTS latencies (
	run_id     INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	cpu_a      INTEGER NOT NULL,
	cpu_b      INTEGER NOT NULL,
	latency_ns INTEGER NOT NULL,
	PRIMARY KEY (run_id, cpu_a, cpu_b)
);`

// ErrNotFound is returned by LoadRun for an unknown run id.
var ErrNotFound = errors.New("store: run not found")

// Run describes one stored sweep.
type Run struct {
	ID          int64
	Fingerprint string
	Host        string
	Protocol    probe.Protocol
	Batches     int
	Warmup      bool
	CPUs        []affinity.CoreID
	StartedAt   time.Time
	Elapsed     time.Duration
}

// Store is an open run database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema in %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Fingerprint identifies a run configuration: the same host, cpu set,
// batch count, protocol and warm-up always hash to the same value. The cpu
// set is hashed sorted, so a presentation reorder such as -interleave does
// not change it.
func Fingerprint(host string, cpus []affinity.CoreID, batches int, protocol probe.Protocol, warmup bool) string {
	cpus = slices.Clone(cpus)
	slices.Sort(cpus)

	buf := make([]byte, 0, 64+4*len(cpus))
	buf = append(buf, host...)
	buf = append(buf, 0)
	buf = append(buf, orderedList(cpus)...)
	buf = append(buf, 0)
	buf = utils.AppendInt(buf, int64(batches))
	buf = append(buf, 0)
	buf = append(buf, protocol.String()...)
	if warmup {
		buf = append(buf, 0, '1')
	} else {
		buf = append(buf, 0, '0')
	}
	sum := sha3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// SaveRun stores r and the upper triangle of m in one transaction and
// returns the new run id. r.CPUs and r.Fingerprint are derived from m and
// the run parameters when empty.
func (s *Store) SaveRun(r Run, m *sweep.Matrix) (int64, error) {
	if !m.Complete() {
		return 0, errors.New("store: refusing to save an incomplete matrix")
	}
	cpus := m.Cores()
	if r.Fingerprint == "" {
		r.Fingerprint = Fingerprint(r.Host, cpus, r.Batches, r.Protocol, r.Warmup)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO runs (fingerprint, host, protocol, batches, warmup, cpus, started_at, elapsed_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Fingerprint, r.Host, r.Protocol.String(), r.Batches, r.Warmup,
		orderedList(cpus), r.StartedAt.UnixNano(), int64(r.Elapsed))
	if err != nil {
		return 0, fmt.Errorf("store: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: run id: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO latencies (run_id, cpu_a, cpu_b, latency_ns) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare latencies: %w", err)
	}
	defer stmt.Close()

	n := m.Len()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, _ := m.At(i, j)
			if _, err := stmt.Exec(id, int(cpus[i]), int(cpus[j]), int64(d)); err != nil {
				return 0, fmt.Errorf("store: insert latency %d/%d: %w", cpus[i], cpus[j], err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return id, nil
}

// LoadRun returns run id and its rebuilt matrix.
func (s *Store) LoadRun(id int64) (Run, *sweep.Matrix, error) {
	r, err := scanRun(s.db.QueryRow(`
		SELECT id, fingerprint, host, protocol, batches, warmup, cpus, started_at, elapsed_ns
		FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, nil, err
	}

	m := sweep.NewMatrix(r.CPUs)
	pos := make(map[affinity.CoreID]int, len(r.CPUs))
	for i, c := range r.CPUs {
		pos[c] = i
	}

	rows, err := s.db.Query(`SELECT cpu_a, cpu_b, latency_ns FROM latencies WHERE run_id = ?`, id)
	if err != nil {
		return Run{}, nil, fmt.Errorf("store: query latencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a, b int
		var ns int64
		if err := rows.Scan(&a, &b, &ns); err != nil {
			return Run{}, nil, fmt.Errorf("store: scan latency: %w", err)
		}
		i, iok := pos[affinity.CoreID(a)]
		j, jok := pos[affinity.CoreID(b)]
		if !iok || !jok || i == j {
			return Run{}, nil, fmt.Errorf("store: run %d has a latency for cpus %d/%d outside its cpu list", id, a, b)
		}
		m.Set(i, j, time.Duration(ns))
	}
	if err := rows.Err(); err != nil {
		return Run{}, nil, fmt.Errorf("store: read latencies: %w", err)
	}
	if !m.Complete() {
		return Run{}, nil, fmt.Errorf("store: run %d is missing latencies", id)
	}
	return r, m, nil
}

// Runs lists every stored run, oldest first, without their matrices.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, fingerprint, host, protocol, batches, warmup, cpus, started_at, elapsed_ns
		FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r        Run
		protocol string
		cpus     string
		started  int64
		elapsed  int64
	)
	if err := sc.Scan(&r.ID, &r.Fingerprint, &r.Host, &protocol, &r.Batches, &r.Warmup, &cpus, &started, &elapsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("store: scan run: %w", err)
	}
	p, err := probe.ParseProtocol(protocol)
	if err != nil {
		return Run{}, fmt.Errorf("store: run %d: %w", r.ID, err)
	}
	list, err := topology.ParseList(cpus)
	if err != nil {
		return Run{}, fmt.Errorf("store: run %d cpus: %w", r.ID, err)
	}
	r.Protocol = p
	r.CPUs = list
	r.StartedAt = time.Unix(0, started)
	r.Elapsed = time.Duration(elapsed)
	return r, nil
}

// orderedList writes cpus comma-separated in their given order. Unlike
// topology.FormatList it never sorts or collapses, so the run's row order
// survives a round trip through ParseList.
func orderedList(cpus []affinity.CoreID) string {
	buf := make([]byte, 0, 4*len(cpus))
	for i, c := range cpus {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = utils.AppendInt(buf, int64(c))
	}
	return string(buf)
}
