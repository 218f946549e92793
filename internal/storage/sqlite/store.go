// Package sqlite provides a SQLite-backed document store. Records live as
// JSON text in a single table and are queried with SQLite's JSON functions.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.up.sql
var migrationSQL string

// Store is a SQLite-backed document store.
type Store struct {
	db *sql.DB
}

// Config holds SQLite store configuration.
type Config struct {
	DBPath      string
	BusyTimeout int // milliseconds
}

// DefaultConfig returns default SQLite configuration.
func DefaultConfig(dbPath string) Config {
	return Config{
		DBPath:      dbPath,
		BusyTimeout: 5000,
	}
}

// New opens (and if needed creates) the database at cfg.DBPath.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000", // 64MB cache
		"PRAGMA temp_store=MEMORY",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout),
	}
	// WAL has no effect on in-memory databases.
	if cfg.DBPath != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	} else {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Collection returns a handle for the named collection.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{db: s.db, name: name}
}

// CompareIDs orders rowid identifiers.
func (s *Store) CompareIDs(a, b string) int {
	return storage.CompareSequenceIDs(a, b)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return models.NewStoreError("sqlite ping", s.db.PingContext(ctx))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends rec to the named collection and returns its identifier.
// Any identifier on rec is ignored.
func (s *Store) Insert(ctx context.Context, collectionName string, rec *models.Record) (string, error) {
	if rec == nil {
		return "", errors.New("record cannot be nil")
	}
	doc, err := models.Object(rec.Fields()...).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO log_records (collection, doc) VALUES (?, ?)`,
		collectionName, string(doc))
	if err != nil {
		return "", models.NewStoreError("sqlite insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", models.NewStoreError("sqlite insert", err)
	}
	return storage.FormatSequenceID(uint64(id)), nil
}

// collection is a handle to one collection of a Store.
type collection struct {
	db   *sql.DB
	name string
}

func (c *collection) Name() string { return c.name }

func (c *collection) Sample(ctx context.Context) (*models.Record, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, doc FROM log_records WHERE collection = ? LIMIT 1`, c.name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sample %s: %w", c.name, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewStoreError("sqlite sample", err)
	}
	return rec, nil
}

func (c *collection) Count(ctx context.Context, filter storage.Filter) (int64, error) {
	where, args, err := buildWhere(c.name, filter)
	if err != nil {
		return 0, err
	}

	var total int64
	err = c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM log_records WHERE "+where, args...).Scan(&total)
	if err != nil {
		return 0, models.NewStoreError("sqlite count", err)
	}
	return total, nil
}

func (c *collection) Find(ctx context.Context, filter storage.Filter, opts storage.FindOptions) ([]*models.Record, error) {
	query, args, err := buildFind(c.name, filter, opts)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.NewStoreError("sqlite find", err)
	}
	defer rows.Close()

	records := []*models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, models.NewStoreError("sqlite find", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStoreError("sqlite find", err)
	}
	return records, nil
}

func (c *collection) FindByID(ctx context.Context, id string) (*models.Record, error) {
	seq, ok := storage.ParseSequenceID(id)
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}

	row := c.db.QueryRowContext(ctx,
		`SELECT id, doc FROM log_records WHERE collection = ? AND id = ?`, c.name, int64(seq))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewStoreError("sqlite find by id", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*models.Record, error) {
	var (
		id  int64
		doc string
	)
	if err := sc.Scan(&id, &doc); err != nil {
		return nil, err
	}

	v, err := models.ParseJSON([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("decoding record %d: %w", id, err)
	}
	rec, err := models.RecordFromValue(v)
	if err != nil {
		return nil, fmt.Errorf("decoding record %d: %w", id, err)
	}
	rec.ID = storage.FormatSequenceID(uint64(id))
	return rec, nil
}

// jsonPath quotes a field name as a SQLite JSON path member.
func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

// buildWhere translates a filter into a WHERE clause and its arguments.
func buildWhere(collectionName string, filter storage.Filter) (string, []any, error) {
	var b strings.Builder
	args := []any{collectionName}
	b.WriteString("collection = ?")

	if filter.AfterID != "" {
		after, ok := storage.ParseSequenceID(filter.AfterID)
		if !ok {
			return "", nil, fmt.Errorf("invalid cursor %q: %w", filter.AfterID, models.ErrInvalidArgument)
		}
		b.WriteString(" AND id > ?")
		args = append(args, int64(after))
	}

	if len(filter.AnyContains) > 0 {
		b.WriteString(" AND (")
		for i, cl := range filter.AnyContains {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString("instr(lower(CAST(json_extract(doc, ?) AS TEXT)), lower(?)) > 0")
			args = append(args, jsonPath(cl.Field), cl.Term)
		}
		b.WriteString(")")
	}

	return b.String(), args, nil
}

// buildFind builds the full SELECT for Find.
func buildFind(collectionName string, filter storage.Filter, opts storage.FindOptions) (string, []any, error) {
	where, args, err := buildWhere(collectionName, filter)
	if err != nil {
		return "", nil, err
	}

	order := "id ASC"
	if opts.Sort == storage.ByTimestampDesc {
		order = "json_extract(doc, '$." + storage.TimestampField + "') DESC, id DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query := "SELECT id, doc FROM log_records WHERE " + where + " ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Skip)
	return query, args, nil
}
