package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/lib/pq" // Postgres driver, registered as "postgres"
)

// SQLSourceConfig configures SQLSource.
type SQLSourceConfig struct {
	// Driver is "sqlite", "sqlite3" or "postgres".
	Driver string
	DSN    string
	// Table holds columns id, content, source, title. Default "documents".
	Table string
}

// SQLSource reads documents from a SQL table.
type SQLSource struct {
	db     *sql.DB
	driver string
	table  string
}

var (
	_ DocumentSource = (*SQLSource)(nil)
	_ DocumentLookup = (*SQLSource)(nil)
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// NewSQLSource opens the database described by cfg.
func NewSQLSource(cfg SQLSourceConfig) (*SQLSource, error) {
	switch cfg.Driver {
	case "sqlite", "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("unsupported source driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, errors.New("source dsn is required")
	}
	if cfg.Table == "" {
		cfg.Table = "documents"
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open source database: %w", err)
	}
	return &SQLSource{db: db, driver: cfg.Driver, table: cfg.Table}, nil
}

// NewSQLSourceFromDB wraps an open database.
func NewSQLSourceFromDB(db *sql.DB, driver, table string) (*SQLSource, error) {
	if table == "" {
		table = "documents"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQLSource{db: db, driver: driver, table: table}, nil
}

// FindAll returns every row ordered by id.
func (s *SQLSource) FindAll(ctx context.Context) ([]*Document, error) {
	query := fmt.Sprintf(`SELECT id, content, COALESCE(source, ''), COALESCE(title, '') FROM %s ORDER BY id`, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d := &Document{}
		if err := rows.Scan(&d.ID, &d.Content, &d.Source, &d.Title); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Get returns one document.
func (s *SQLSource) Get(ctx context.Context, id string) (*Document, error) {
	query := fmt.Sprintf(`SELECT id, content, COALESCE(source, ''), COALESCE(title, '') FROM %s WHERE id = %s`,
		s.table, s.placeholder(1))

	d := &Document{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Content, &d.Source, &d.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return d, nil
}

func (s *SQLSource) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Close closes the database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
