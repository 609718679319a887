// Package store owns the per-metric SQLite databases, the inbound sample
// queue, and the writer worker that drains it, per spec §3/§4.4/§4.5.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jakinnaird/stsdb/internal/downsample"
	"github.com/jakinnaird/stsdb/internal/metric"
	"github.com/jakinnaird/stsdb/internal/query"
	"github.com/jakinnaird/stsdb/internal/stats"
	"github.com/jakinnaird/stsdb/pkg/log"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS METRIC (
	TIMESTAMP INTEGER NOT NULL,
	VALUE NUMBER NOT NULL,
	TAGS TEXT NOT NULL
)`

const insertSQL = `INSERT INTO METRIC (TIMESTAMP, VALUE, TAGS) VALUES (?, ?, ?)`

// PerMetricStore is one on-disk SQLite database dedicated to one metric
// name (spec §3). Opened no-mutex/single-threaded-per-connection: the
// writer owns db/insert, HTTP threads only ever prepare a fresh read
// statement against db via PrepareQuery.
type PerMetricStore struct {
	name   string
	path   string
	db     *sqlx.DB
	insert *sql.Stmt
}

func dsn(path string) string {
	return fmt.Sprintf("file:%s?_journal_mode=WAL&cache=private&_mutex=no", path)
}

// openStore opens (creating if absent) the database file for name,
// validates/creates its schema, and prepares the INSERT statement.
func openStore(dataDir, name, ext string) (*PerMetricStore, error) {
	path := filepath.Join(dataDir, name+"."+ext)

	db, err := sqlx.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema %s: %w", path, err)
	}

	if err := validateSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("validate schema %s: %w", path, err)
	}

	stmt, err := db.Prepare(insertSQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert %s: %w", path, err)
	}

	return &PerMetricStore{name: name, path: path, db: db, insert: stmt}, nil
}

// openExistingStore opens an already-present file at startup, failing
// (and letting the caller skip it with a warning) when the METRIC table is
// absent, per spec §4.4's "Files with wrong schema are skipped".
func openExistingStore(path, name string) (*PerMetricStore, error) {
	db, err := sqlx.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := validateSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL %s: %w", path, err)
	}

	stmt, err := db.Prepare(insertSQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert %s: %w", path, err)
	}

	return &PerMetricStore{name: name, path: path, db: db, insert: stmt}, nil
}

// validateSchema confirms the METRIC table exists via the sqlite_master
// catalog, per spec §3's SchemaContract.
func validateSchema(db *sqlx.DB) error {
	var count int
	err := db.Get(&count, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='METRIC'`)
	if err != nil {
		return fmt.Errorf("schema lookup: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("missing METRIC table")
	}
	return nil
}

func (s *PerMetricStore) insertRow(m metric.Metric) error {
	_, err := s.insert.Exec(int64(m.Timestamp), m.Value, m.Tags)
	return err
}

func (s *PerMetricStore) close() {
	if s.insert != nil {
		s.insert.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// ResultSet is a prepared, parameterized SELECT bound to one
// PerMetricStore, per spec §4.5. It owns a dedicated *sql.Stmt on the
// store's connection so it never shares a prepared statement with another
// caller (spec §9's cross-thread ownership note).
type ResultSet struct {
	Metric      string
	Downsampler string

	stmt *sql.Stmt
}

// Execute binds the window, steps the statement collecting (timestamp,
// value) rows in order, then resets by re-querying fresh next time.
// Returns false only when the statement handle is absent.
func (rs *ResultSet) Execute(startTime, endTime int64, out *[]downsample.Point) bool {
	if rs.stmt == nil {
		return false
	}

	rows, err := rs.stmt.Query(startTime, endTime)
	if err != nil {
		log.Warnf("store: resultset execute %s: %v", rs.Metric, err)
		return true
	}
	defer rows.Close()

	for rows.Next() {
		var ts int64
		var value float64
		if err := rows.Scan(&ts, &value); err != nil {
			log.Warnf("store: resultset scan %s: %v", rs.Metric, err)
			continue
		}
		*out = append(*out, downsample.Point{Timestamp: uint64(ts), Value: value})
	}
	return true
}

// Close releases the dedicated query statement. Safe to call multiple
// times.
func (rs *ResultSet) Close() {
	if rs.stmt != nil {
		rs.stmt.Close()
		rs.stmt = nil
	}
}

// Datastore owns the per-metric store cache, the sample queue, and the
// writer worker (spec §4.4). Exactly one Datastore exists per running
// daemon, owned by the Kernel.
type Datastore struct {
	dataDir  string
	ext      string
	hostname string

	queue *sampleQueue
	stats *stats.Statistics

	mu     sync.RWMutex // guards stores; writer mutates, HTTP threads read (spec §9)
	stores map[string]*PerMetricStore

	writeCount uint64
	dropCount  uint64
}

// New constructs a Datastore. Directory scanning happens in Start, not
// here, per spec §4.4 ("Worker Start: scans the data directory...").
func New(dataDir, ext, hostname string, st *stats.Statistics) *Datastore {
	return &Datastore{
		dataDir:  dataDir,
		ext:      ext,
		hostname: hostname,
		queue:    newSampleQueue(),
		stats:    st,
		stores:   make(map[string]*PerMetricStore),
	}
}

// QueueMetric is the non-blocking producer entry point (spec §4.4).
// Never fails once the Datastore itself exists.
func (d *Datastore) QueueMetric(m metric.Metric) {
	d.queue.push(m)
	d.stats.IncPut()
	d.stats.SetBacklog(d.queue.depth())
}

// PrepareQuery locates the PerMetricStore for q.Metric and prepares a
// fresh statement from q.SQL for the caller's exclusive use (spec §4.4,
// §9). Returns (nil, false) when no such store exists; never blocks on
// the writer.
func (d *Datastore) PrepareQuery(q query.Query) (*ResultSet, bool) {
	d.mu.RLock()
	s, ok := d.stores[q.Metric]
	d.mu.RUnlock()
	if !ok {
		return nil, false
	}

	stmt, err := s.db.Prepare(q.SQL)
	if err != nil {
		log.Warnf("store: prepare query for %s: %v", q.Metric, err)
		return nil, false
	}

	return &ResultSet{Metric: q.Metric, Downsampler: q.Downsampler, stmt: stmt}, true
}

// Start scans dataDir for files ending in "."+ext, opens and validates
// each, and populates the cache under its basename. Completes before any
// sample is processed (spec §4.4).
func (d *Datastore) Start() error {
	entries, err := os.ReadDir(d.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(d.dataDir, 0o755)
		}
		return fmt.Errorf("scan data directory: %w", err)
	}

	suffix := "." + d.ext
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), suffix) {
			continue
		}
		name := strings.TrimSuffix(ent.Name(), suffix)
		path := filepath.Join(d.dataDir, ent.Name())

		s, err := openExistingStore(path, name)
		if err != nil {
			log.Warnf("store: skipping %s: %v", path, err)
			continue
		}

		d.mu.Lock()
		d.stores[name] = s
		d.mu.Unlock()
	}
	return nil
}

// Process is one worker tick: dequeue up to 10 samples, write each, and
// once per second inject the self-metric feedback loop (spec §4.4).
func (d *Datastore) Process() {
	batch := d.queue.popUpTo(10)
	if len(batch) == 0 {
		time.Sleep(50 * time.Millisecond)
	} else {
		for _, m := range batch {
			d.write(m)
		}
	}
	d.stats.SetBacklog(d.queue.depth())

	var snap stats.Snapshot
	if d.stats.GetStats(&snap, true) {
		d.injectSelfMetrics(snap)
	}
}

// Stop drains the queue fully (same semantics as Process, minus sleeping)
// before finalizing statements and closing every connection.
func (d *Datastore) Stop() {
	for {
		batch := d.queue.popUpTo(10)
		if len(batch) == 0 {
			break
		}
		for _, m := range batch {
			d.write(m)
		}
	}
	d.stats.SetBacklog(d.queue.depth())

	d.mu.Lock()
	defer d.mu.Unlock()
	for name, s := range d.stores {
		s.close()
		delete(d.stores, name)
	}
}

// write looks the metric's store up in the cache, lazily creating it on
// miss, and executes the prepared INSERT. Failures are logged and the
// sample is dropped (spec §7's "Transient INSERT errors").
func (d *Datastore) write(m metric.Metric) {
	d.mu.RLock()
	s, ok := d.stores[m.Name]
	d.mu.RUnlock()

	if !ok {
		created, err := openStore(d.dataDir, m.Name, d.ext)
		if err != nil {
			log.Warnf("store: create %s: %v", m.Name, err)
			d.dropCount++
			return
		}
		d.mu.Lock()
		// Re-check: another Process tick (there is only one writer, so
		// this is defensive rather than load-bearing) may have created it.
		if existing, raced := d.stores[m.Name]; raced {
			created.close()
			s = existing
		} else {
			d.stores[m.Name] = created
			s = created
		}
		d.mu.Unlock()
	}

	if err := s.insertRow(m); err != nil {
		log.Warnf("store: insert into %s: %v", m.Name, err)
		d.dropCount++
		return
	}
	d.writeCount++
	d.stats.IncWrite()
}

// injectSelfMetrics feeds the writer's own throughput back through
// QueueMetric as three synthetic samples, per spec §4.4's "deliberate
// feedback loop".
func (d *Datastore) injectSelfMetrics(snap stats.Snapshot) {
	now := uint64(time.Now().Unix())
	tags := "host=" + d.hostname

	d.QueueMetric(metric.New("tsdb.internal.putspersecond", now, snap.PutsPerSecond, tags))
	d.QueueMetric(metric.New("tsdb.internal.writespersecond", now, snap.WritesPerSecond, tags))
	d.QueueMetric(metric.New("tsdb.internal.queuebacklog", now, float64(snap.QueueBacklog), tags))
}

// QueueDepth reports the current backlog, for Statistics' gauge.
func (d *Datastore) QueueDepth() int64 {
	return d.queue.depth()
}

// WriteCount and DropCount expose the running totals behind spec §8's
// queue-conservation invariant (Σ enqueued = Σ inserted + depth + drops).
func (d *Datastore) WriteCount() uint64 { return d.writeCount }
func (d *Datastore) DropCount() uint64  { return d.dropCount }
