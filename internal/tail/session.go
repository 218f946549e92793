// Package tail implements polling-based live tailing of log categories.
//
// A Session keeps a per-category cursor (the last emitted identifier) and,
// on every tick, fetches a bounded batch of newer records for each category
// in scope. Delivery is at-least-once and nothing survives the session: a
// reconnecting client starts again from an empty cursor.
package tail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fidde/log_dashboard/internal/normalize"
	"github.com/fidde/log_dashboard/internal/registry"
	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
	"github.com/google/uuid"
)

// EventNewLogs names the event carrying a Batch.
const EventNewLogs = "new_logs"

// Defaults for Config.
const (
	DefaultInterval    = 2 * time.Second
	DefaultBatchSize   = 10
	DefaultMaxFailures = 3
)

// Config tunes a Session.
type Config struct {
	// Interval is the idle wait after every tick.
	Interval time.Duration

	// BatchSize caps the records fetched per category per tick.
	BatchSize int

	// MaxFailures is the number of consecutive failed ticks after which
	// the session terminates.
	MaxFailures int
}

// DefaultConfig returns the standard tail settings.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		BatchSize:   DefaultBatchSize,
		MaxFailures: DefaultMaxFailures,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	return c
}

// State is the lifecycle state of a Session.
type State int

const (
	Active State = iota
	Terminated
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "terminated"
}

// Batch holds the new records of one tick, keyed by category name.
type Batch map[string][]*models.Record

// Event is the payload pushed to clients for a non-empty Batch.
type Event struct {
	Event string `json:"event"`
	Data  Batch  `json:"data"`
}

// NewEvent wraps a batch as a new_logs event.
func NewEvent(b Batch) Event {
	return Event{Event: EventNewLogs, Data: b}
}

// Session is one client's tail subscription. It is owned by a single
// goroutine and is not safe for concurrent use.
type Session struct {
	id         uuid.UUID
	categories []*registry.Category
	backend    storage.Backend
	normalizer *normalize.Normalizer
	cfg        Config
	logger     *slog.Logger

	cursors  map[string]string // "" means nothing seen yet
	state    State
	failures int
}

// NewSession creates a session over one category, or over every
// registered category when category is empty.
func NewSession(reg *registry.Registry, category string, normalizer *normalize.Normalizer, cfg Config, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if normalizer == nil {
		normalizer = normalize.New(logger)
	}

	var cats []*registry.Category
	if category == "" {
		cats = reg.All()
	} else {
		cat, err := reg.Resolve(category)
		if err != nil {
			return nil, err
		}
		cats = []*registry.Category{cat}
	}

	id := uuid.New()
	s := &Session{
		id:         id,
		categories: cats,
		backend:    reg.Backend(),
		normalizer: normalizer,
		cfg:        cfg.withDefaults(),
		logger:     logger.With("session_id", id.String()),
		cursors:    make(map[string]string, len(cats)),
		state:      Active,
	}
	for _, c := range cats {
		s.cursors[c.Name] = ""
	}
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id.String() }

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Cursor returns the last emitted identifier for category; ok is false
// when nothing has been emitted yet or the category is not in scope.
func (s *Session) Cursor(category string) (id string, ok bool) {
	id = s.cursors[category]
	return id, id != ""
}

// Tick fetches up to BatchSize new records per category. Cursors advance
// only when every category was fetched successfully; on error nothing is
// committed and the same records are fetched again next tick.
func (s *Session) Tick(ctx context.Context) (Batch, error) {
	if s.state == Terminated {
		return nil, errors.New("tail session terminated")
	}

	batch := Batch{}
	next := make(map[string]string)

	for _, cat := range s.categories {
		cursor := s.cursors[cat.Name]
		records, err := cat.Collection.Find(ctx, storage.Filter{AfterID: cursor}, storage.FindOptions{
			Sort:  storage.ByIDAsc,
			Limit: int64(s.cfg.BatchSize),
		})
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", cat.Name, err)
		}

		fresh := s.newerThan(cursor, records)
		if len(fresh) == 0 {
			continue
		}
		batch[cat.Name] = fresh
		next[cat.Name] = fresh[len(fresh)-1].ID
	}

	for _, cat := range s.categories {
		if recs, ok := batch[cat.Name]; ok {
			s.normalizer.Apply(cat.Normalize, recs)
			s.cursors[cat.Name] = next[cat.Name]
		}
	}
	return batch, nil
}

// newerThan keeps records strictly above cursor and strictly increasing,
// dropping duplicates or out-of-order identifiers a store may return.
func (s *Session) newerThan(cursor string, records []*models.Record) []*models.Record {
	fresh := make([]*models.Record, 0, len(records))
	last := cursor
	for _, rec := range records {
		if last != "" && s.backend.CompareIDs(rec.ID, last) <= 0 {
			continue
		}
		fresh = append(fresh, rec)
		last = rec.ID
	}
	return fresh
}

// EmitFunc delivers a non-empty batch to the client. An error ends the
// session.
type EmitFunc func(ctx context.Context, b Batch) error

// Run ticks until ctx is cancelled (client disconnect), emit fails, or
// MaxFailures consecutive ticks fail. Cancellation is observed during the
// idle wait and during store I/O, and returns nil.
func (s *Session) Run(ctx context.Context, emit EmitFunc) error {
	defer func() { s.state = Terminated }()

	scope := make([]string, len(s.categories))
	for i, c := range s.categories {
		scope[i] = c.Name
	}
	s.logger.Info("tail session started", "categories", scope)
	defer s.logger.Info("tail session ended")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		batch, err := s.Tick(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			s.failures++
			s.logger.Warn("tail tick failed", "error", err, "consecutive_failures", s.failures)
			if s.failures >= s.cfg.MaxFailures {
				return fmt.Errorf("tail session giving up after %d failed ticks: %w", s.failures, err)
			}
		default:
			s.failures = 0
			if len(batch) > 0 {
				if err := emit(ctx, batch); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("emitting batch: %w", err)
				}
			}
		}

		timer.Reset(s.cfg.Interval)
	}
}
