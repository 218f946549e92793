// Package engine implements the log query path: schema sniffing, search
// planning and paginated retrieval over registered categories.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fidde/log_dashboard/internal/normalize"
	"github.com/fidde/log_dashboard/internal/registry"
	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
)

// Paging defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 15
	MaxLimit     = 100
)

// Options tunes an Engine.
type Options struct {
	// MaxLimit lowers the page size cap; values outside 1..MaxLimit use MaxLimit.
	MaxLimit int
	Logger   *slog.Logger
}

// Query is a request for one page of a category's logs.
type Query struct {
	Page   int
	Limit  int
	Search string
}

// Engine answers page, lookup and schema requests. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	registry   *registry.Registry
	normalizer *normalize.Normalizer
	maxLimit   int
	logger     *slog.Logger
}

// New creates an Engine over the given registry.
func New(reg *registry.Registry, normalizer *normalize.Normalizer, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxLimit <= 0 || opts.MaxLimit > MaxLimit {
		opts.MaxLimit = MaxLimit
	}
	if normalizer == nil {
		normalizer = normalize.New(opts.Logger)
	}
	return &Engine{
		registry:   reg,
		normalizer: normalizer,
		maxLimit:   opts.MaxLimit,
		logger:     opts.Logger,
	}
}

// Categories returns the registered category names.
func (e *Engine) Categories() []string {
	return e.registry.Names()
}

// Logs returns one page of a category's records, newest first, optionally
// restricted to records matching q.Search.
func (e *Engine) Logs(ctx context.Context, category string, q Query) (*models.Page, error) {
	cat, err := e.registry.Resolve(category)
	if err != nil {
		return nil, err
	}
	if err := e.validate(q.Page, q.Limit); err != nil {
		return nil, err
	}

	var filter storage.Filter
	if !isBlank(q.Search) {
		fields, err := SniffFields(ctx, cat.Collection)
		if err != nil {
			return nil, err
		}
		filter = Plan(fields, q.Search)
	}

	return e.Execute(ctx, cat, filter, q.Page, q.Limit)
}

// Execute counts and fetches one page of records matching filter.
// Records sharing a timestamp are ordered by identifier, newest first.
func (e *Engine) Execute(ctx context.Context, cat *registry.Category, filter storage.Filter, page, limit int) (*models.Page, error) {
	if err := e.validate(page, limit); err != nil {
		return nil, err
	}

	total, err := cat.Collection.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("counting %s: %w", cat.Name, err)
	}

	result := &models.Page{
		Logs:  []*models.Record{},
		Total: total,
		Page:  page,
		Pages: models.PageCount(total, limit),
	}

	skip := int64(page-1) * int64(limit)
	if skip >= total {
		return result, nil
	}

	records, err := cat.Collection.Find(ctx, filter, storage.FindOptions{
		Sort:  storage.ByTimestampDesc,
		Skip:  skip,
		Limit: int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", cat.Name, err)
	}

	e.normalizer.Apply(cat.Normalize, records)
	result.Logs = records
	return result, nil
}

// Log returns a single record exactly as stored, without normalization.
func (e *Engine) Log(ctx context.Context, category, id string) (*models.Record, error) {
	cat, err := e.registry.Resolve(category)
	if err != nil {
		return nil, err
	}
	return cat.Collection.FindByID(ctx, id)
}

// Fields returns the sniffed field set of a category.
func (e *Engine) Fields(ctx context.Context, category string) ([]string, error) {
	cat, err := e.registry.Resolve(category)
	if err != nil {
		return nil, err
	}
	return SniffFields(ctx, cat.Collection)
}

func (e *Engine) validate(page, limit int) error {
	if page < 1 {
		return fmt.Errorf("page must be >= 1, got %d: %w", page, models.ErrInvalidArgument)
	}
	if limit < 1 || limit > e.maxLimit {
		return fmt.Errorf("limit must be between 1 and %d, got %d: %w", e.maxLimit, limit, models.ErrInvalidArgument)
	}
	return nil
}
