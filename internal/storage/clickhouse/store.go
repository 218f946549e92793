// Package clickhouse provides a ClickHouse-backed document store. Records
// are JSON strings in a MergeTree table and are queried with JSONExtract*.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
)

// Store implements storage.Backend using ClickHouse
type Store struct {
	conn   driver.Conn
	logger *slog.Logger

	mu     sync.Mutex
	buffer *BatchBuffer
	seq    seqGenerator
}

// NewStore creates a new ClickHouse storage instance
func NewStore(ctx context.Context, config *ConnectionConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := Connect(ctx, config, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}

	if err := InitializeSchema(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &Store{
		conn:   conn,
		logger: logger,
	}, nil
}

// Insert queues rec for the named collection and returns its identifier.
// Records become visible to readers once the batch is flushed, either when
// it fills, on the flush interval, on Flush or on Close. The batch buffer
// is started by the first Insert.
func (s *Store) Insert(ctx context.Context, collectionName string, rec *models.Record) (string, error) {
	if rec == nil {
		return "", errors.New("record cannot be nil")
	}
	if collectionName == "" {
		return "", errors.New("collection name cannot be empty")
	}
	doc, err := models.Object(rec.Fields()...).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encoding record: %w", err)
	}

	seq := s.seq.next()
	if err := s.batchBuffer(true).Add(LogRow{Collection: collectionName, Seq: seq, Doc: string(doc)}); err != nil {
		return "", models.NewStoreError("clickhouse insert", err)
	}
	return storage.FormatSequenceID(seq), nil
}

// Flush writes queued records.
func (s *Store) Flush() error {
	buf := s.batchBuffer(false)
	if buf == nil {
		return nil
	}
	return models.NewStoreError("clickhouse flush", buf.Flush())
}

func (s *Store) batchBuffer(create bool) *BatchBuffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buffer == nil && create {
		s.buffer = NewBatchBuffer(s.conn, s.logger)
	}
	return s.buffer
}

// Collection returns a handle for the named collection.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{conn: s.conn, name: name}
}

// CompareIDs orders seq identifiers.
func (s *Store) CompareIDs(a, b string) int {
	return storage.CompareSequenceIDs(a, b)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return models.NewStoreError("clickhouse ping", s.conn.Ping(ctx))
}

// Close flushes queued records and closes the connection pool.
func (s *Store) Close() error {
	var flushErr error
	if buf := s.batchBuffer(false); buf != nil {
		flushErr = buf.Close(context.Background())
	}
	if err := s.conn.Close(); err != nil {
		return err
	}
	return flushErr
}

type collection struct {
	conn driver.Conn
	name string
}

func (c *collection) Name() string { return c.name }

func (c *collection) Sample(ctx context.Context) (*models.Record, error) {
	row := c.conn.QueryRow(ctx, "SELECT seq, doc FROM log_records WHERE collection = ? LIMIT 1", c.name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sample %s: %w", c.name, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewStoreError("clickhouse sample", err)
	}
	return rec, nil
}

func (c *collection) Count(ctx context.Context, filter storage.Filter) (int64, error) {
	where, args, err := buildWhere(c.name, filter)
	if err != nil {
		return 0, err
	}

	var total uint64
	if err := c.conn.QueryRow(ctx, "SELECT count() FROM log_records WHERE "+where, args...).Scan(&total); err != nil {
		return 0, models.NewStoreError("clickhouse count", err)
	}
	return int64(total), nil
}

func (c *collection) Find(ctx context.Context, filter storage.Filter, opts storage.FindOptions) ([]*models.Record, error) {
	query, args, err := buildFind(c.name, filter, opts)
	if err != nil {
		return nil, err
	}

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, models.NewStoreError("clickhouse find", err)
	}
	defer rows.Close()

	records := []*models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, models.NewStoreError("clickhouse find", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewStoreError("clickhouse find", err)
	}
	return records, nil
}

func (c *collection) FindByID(ctx context.Context, id string) (*models.Record, error) {
	seq, ok := storage.ParseSequenceID(id)
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}

	row := c.conn.QueryRow(ctx,
		"SELECT seq, doc FROM log_records WHERE collection = ? AND seq = ? LIMIT 1", c.name, seq)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, models.NewStoreError("clickhouse find by id", err)
	}
	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*models.Record, error) {
	var (
		seq uint64
		doc string
	)
	if err := sc.Scan(&seq, &doc); err != nil {
		return nil, err
	}

	v, err := models.ParseJSON([]byte(doc))
	if err != nil {
		return nil, fmt.Errorf("decoding record %d: %w", seq, err)
	}
	rec, err := models.RecordFromValue(v)
	if err != nil {
		return nil, fmt.Errorf("decoding record %d: %w", seq, err)
	}
	rec.ID = storage.FormatSequenceID(seq)
	return rec, nil
}

// containsClause matches string values on their contents and every other
// non-null value on its raw JSON text.
const containsClause = `((JSONType(doc, ?) = 'String' AND positionCaseInsensitiveUTF8(JSONExtractString(doc, ?), ?) > 0)` +
	` OR (JSONType(doc, ?) NOT IN ('String', 'Null') AND positionCaseInsensitiveUTF8(JSONExtractRaw(doc, ?), ?) > 0))`

func buildWhere(collectionName string, filter storage.Filter) (string, []any, error) {
	var b strings.Builder
	args := []any{collectionName}
	b.WriteString("collection = ?")

	if filter.AfterID != "" {
		after, ok := storage.ParseSequenceID(filter.AfterID)
		if !ok {
			return "", nil, fmt.Errorf("invalid cursor %q: %w", filter.AfterID, models.ErrInvalidArgument)
		}
		b.WriteString(" AND seq > ?")
		args = append(args, after)
	}

	if len(filter.AnyContains) > 0 {
		b.WriteString(" AND (")
		for i, cl := range filter.AnyContains {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.WriteString(containsClause)
			args = append(args, cl.Field, cl.Field, cl.Term, cl.Field, cl.Field, cl.Term)
		}
		b.WriteString(")")
	}

	return b.String(), args, nil
}

func buildFind(collectionName string, filter storage.Filter, opts storage.FindOptions) (string, []any, error) {
	where, args, err := buildWhere(collectionName, filter)
	if err != nil {
		return "", nil, err
	}

	order := "seq ASC"
	if opts.Sort == storage.ByTimestampDesc {
		// Numeric timestamps sort on the first key, string timestamps on the second.
		order = "JSONExtractFloat(doc, '" + storage.TimestampField + "') DESC, " +
			"JSONExtractString(doc, '" + storage.TimestampField + "') DESC, seq DESC"
	}

	query := "SELECT seq, doc FROM log_records WHERE " + where + " ORDER BY " + order
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Skip)
	} else if opts.Skip > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Skip)
	}
	return query, args, nil
}
