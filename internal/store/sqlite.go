package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // CGO driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // Pure Go driver, registered as "sqlite"
)

// SQLiteConfig configures SQLitePersistence.
type SQLiteConfig struct {
	// Path is the database file. Empty opens an in-memory database.
	Path string
	// Driver is "sqlite" (modernc.org/sqlite, default) or "sqlite3"
	// (github.com/mattn/go-sqlite3).
	Driver string
}

// SQLitePersistence stores the committed generation in SQLite. Commit
// replaces every row inside one transaction and bumps a commit counter, so
// a Snapshot (one read transaction, WAL isolated) sees either the old or the
// new generation, including commits made by other processes.
type SQLitePersistence struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool

	// cacheMu guards the statistics cache. It is never held while waiting
	// for the connection.
	cacheMu  sync.Mutex
	stats    *DocumentStatistics
	statsSeq string
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Verify interface implementation at compile time
var _ IndexPersistence = (*SQLitePersistence)(nil)

// NewSQLitePersistence opens (creating if needed) the database at cfg.Path.
func NewSQLitePersistence(cfg SQLiteConfig) (*SQLitePersistence, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	if driver != "sqlite" && driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	dsn := ":memory:"
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = cfg.Path
		if driver == "sqlite3" {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: a single writer, and an in-memory database that
	// survives between calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if cfg.Path != "" {
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to set pragma: %w", err)
			}
		}
	}

	p := &SQLitePersistence{db: db, path: cfg.Path}
	if err := p.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Debug("sqlite_persistence_opened",
		slog.String("driver", driver),
		slog.String("path", cfg.Path))
	return p, nil
}

func (p *SQLitePersistence) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS postings (
		term      TEXT    NOT NULL,
		seq       INTEGER NOT NULL,
		doc_id    TEXT    NOT NULL,
		tf        INTEGER NOT NULL,
		positions TEXT    NOT NULL DEFAULT '',
		PRIMARY KEY (term, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_postings_term_seq ON postings(term, seq);

	CREATE TABLE IF NOT EXISTS documents (
		doc_id TEXT PRIMARY KEY,
		length INTEGER NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		title  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS index_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := p.db.Exec(schema); err != nil {
		return err
	}
	_, err := p.db.Exec(`INSERT OR REPLACE INTO index_meta(key, value) VALUES (?, ?)`, metaSchema, schemaVersion)
	return err
}

// Clear deletes every row in one transaction.
func (p *SQLitePersistence) Clear(ctx context.Context) error {
	return p.write(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM postings`,
			`DELETE FROM documents`,
			`DELETE FROM index_meta WHERE key NOT IN ('` + metaSchema + `', '` + metaCommitSeq + `')`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
		}
		return nil
	})
}

// SaveIndex replaces all postings.
func (p *SQLitePersistence) SaveIndex(ctx context.Context, idx *InvertedIndex) error {
	return p.write(ctx, func(tx *sql.Tx) error {
		return writeIndex(ctx, tx, idx)
	})
}

// SaveStats replaces all document statistics.
func (p *SQLitePersistence) SaveStats(ctx context.Context, stats *DocumentStatistics) error {
	return p.write(ctx, func(tx *sql.Tx) error {
		return writeStats(ctx, tx, stats)
	})
}

// Commit replaces postings and statistics in a single transaction.
func (p *SQLitePersistence) Commit(ctx context.Context, idx *InvertedIndex, stats *DocumentStatistics) error {
	return p.write(ctx, func(tx *sql.Tx) error {
		if err := writeIndex(ctx, tx, idx); err != nil {
			return err
		}
		return writeStats(ctx, tx, stats)
	})
}

func (p *SQLitePersistence) write(ctx context.Context, fn func(*sql.Tx) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO index_meta(key, value) VALUES (?, '1')
		 ON CONFLICT(key) DO UPDATE SET value = CAST(value AS INTEGER) + 1`, metaCommitSeq); err != nil {
		return fmt.Errorf("failed to bump commit sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	p.cacheMu.Lock()
	p.stats, p.statsSeq = nil, ""
	p.cacheMu.Unlock()
	return nil
}

func writeIndex(ctx context.Context, tx *sql.Tx, idx *InvertedIndex) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM postings`); err != nil {
		return fmt.Errorf("failed to delete postings: %w", err)
	}
	if idx == nil {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO postings(term, seq, doc_id, tf, positions) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare posting statement: %w", err)
	}
	defer stmt.Close()

	for _, term := range idx.Terms() {
		for seq, posting := range idx.postings[term] {
			positions, err := encodePositions(posting.Positions)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, term, seq, posting.DocID, posting.TermFrequency, positions); err != nil {
				return fmt.Errorf("failed to insert posting %s/%s: %w", term, posting.DocID, err)
			}
		}
	}
	return nil
}

func writeStats(ctx context.Context, tx *sql.Tx, stats *DocumentStatistics) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	if stats == nil {
		stats = NewDocumentStatistics()
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents(doc_id, length, source, title) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare document statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range stats.DocIDs() {
		st := stats.docs[id]
		if _, err := stmt.ExecContext(ctx, id, st.Length, st.Source, st.Title); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", id, err)
		}
	}

	meta := map[string]string{
		metaGeneration: stats.Generation,
		metaBuiltAt:    encodeTime(stats.BuiltAt),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO index_meta(key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write %s: %w", k, err)
		}
	}
	return nil
}

// GetIndex loads every posting.
func (p *SQLitePersistence) GetIndex(ctx context.Context) (*InvertedIndex, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT term, doc_id, tf, positions FROM postings ORDER BY term, seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load postings: %w", err)
	}
	defer rows.Close()

	idx := NewInvertedIndex()
	for rows.Next() {
		var term, raw string
		var posting Posting
		if err := rows.Scan(&term, &posting.DocID, &posting.TermFrequency, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		if posting.Positions, err = decodePositions(raw); err != nil {
			return nil, err
		}
		idx.AddPosting(term, posting)
	}
	return idx, rows.Err()
}

// GetStats returns the committed statistics.
func (p *SQLitePersistence) GetStats(ctx context.Context) (*DocumentStatistics, error) {
	view, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer view.Release()
	return view.Stats(), nil
}

// Snapshot opens a read transaction and loads the statistics it sees. The
// cached statistics are reused only while the commit counter is unchanged.
// The view holds the connection until Release.
func (p *SQLitePersistence) Snapshot(ctx context.Context) (IndexView, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read: %w", err)
	}
	stats, err := p.statsAt(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &sqliteView{tx: tx, stats: stats}, nil
}

func (p *SQLitePersistence) statsAt(ctx context.Context, q querier) (*DocumentStatistics, error) {
	// The first read also fixes the transaction's snapshot.
	seq, err := readCommitSeq(ctx, q)
	if err != nil {
		return nil, err
	}

	p.cacheMu.Lock()
	cached, cachedSeq := p.stats, p.statsSeq
	p.cacheMu.Unlock()
	if cached != nil && cachedSeq == seq {
		return cached, nil
	}

	stats, err := loadStats(ctx, q)
	if err != nil {
		return nil, err
	}
	p.cacheMu.Lock()
	p.stats, p.statsSeq = stats, seq
	p.cacheMu.Unlock()
	return stats, nil
}

func readCommitSeq(ctx context.Context, q querier) (string, error) {
	var seq string
	err := q.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = ?`, metaCommitSeq).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read commit sequence: %w", err)
	}
	return seq, nil
}

func loadStats(ctx context.Context, q querier) (*DocumentStatistics, error) {
	rows, err := q.QueryContext(ctx, `SELECT doc_id, length, source, title FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	defer rows.Close()

	stats := NewDocumentStatistics()
	for rows.Next() {
		var id string
		var st DocStat
		if err := rows.Scan(&id, &st.Length, &st.Source, &st.Title); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		stats.Add(id, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metaRows, err := q.QueryContext(ctx, `SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	defer metaRows.Close()

	for metaRows.Next() {
		var k, v string
		if err := metaRows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		switch k {
		case metaGeneration:
			stats.Generation = v
		case metaBuiltAt:
			stats.BuiltAt = decodeTime(v)
		}
	}
	return stats, metaRows.Err()
}

// GetPostingList loads the postings of one term in insertion order.
func (p *SQLitePersistence) GetPostingList(ctx context.Context, term string) ([]Posting, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	return queryPostings(ctx, p.db, term)
}

func queryPostings(ctx context.Context, q querier, term string) ([]Posting, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT doc_id, tf, positions FROM postings WHERE term = ? ORDER BY seq`, term)
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	defer rows.Close()

	postings := []Posting{}
	for rows.Next() {
		var posting Posting
		var raw string
		if err := rows.Scan(&posting.DocID, &posting.TermFrequency, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		if posting.Positions, err = decodePositions(raw); err != nil {
			return nil, err
		}
		postings = append(postings, posting)
	}
	return postings, rows.Err()
}

// sqliteView reads inside one transaction.
type sqliteView struct {
	tx    *sql.Tx
	stats *DocumentStatistics
	once  sync.Once
}

func (v *sqliteView) Stats() *DocumentStatistics { return v.stats }

func (v *sqliteView) PostingList(ctx context.Context, term string) ([]Posting, error) {
	return queryPostings(ctx, v.tx, term)
}

func (v *sqliteView) Release() {
	v.once.Do(func() { _ = v.tx.Rollback() })
}

// Close closes the database.
func (p *SQLitePersistence) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.db.Close()
}
