// Package memory provides an in-memory document store backend.
//
// Each collection is a B-tree ordered by sequence identifier, so identifier
// range scans (the tail path) never touch older records.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
	"github.com/google/btree"
)

const treeDegree = 32

// entry is a B-tree item keyed by sequence number.
type entry struct {
	seq uint64
	rec *models.Record
}

func (e entry) Less(than btree.Item) bool {
	return e.seq < than.(entry).seq
}

// Store is an in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*btree.BTree
	seq         uint64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]*btree.BTree),
	}
}

// Collection returns a handle for the named collection.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{store: s, name: name}
}

// CompareIDs orders sequence identifiers.
func (s *Store) CompareIDs(a, b string) int {
	return storage.CompareSequenceIDs(a, b)
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// Insert stores a copy of rec in the named collection under a newly
// assigned identifier, which is returned. Any identifier on rec is ignored.
func (s *Store) Insert(ctx context.Context, collectionName string, rec *models.Record) (string, error) {
	if rec == nil {
		return "", errors.New("record cannot be nil")
	}
	if collectionName == "" {
		return "", errors.New("collection name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tree, ok := s.collections[collectionName]
	if !ok {
		tree = btree.New(treeDegree)
		s.collections[collectionName] = tree
	}

	s.seq++
	stored := rec.Clone()
	stored.ID = storage.FormatSequenceID(s.seq)
	tree.ReplaceOrInsert(entry{seq: s.seq, rec: stored})

	return stored.ID, nil
}

// collection is a handle to one collection of a Store.
type collection struct {
	store *Store
	name  string
}

func (c *collection) Name() string { return c.name }

func (c *collection) Sample(ctx context.Context) (*models.Record, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	tree, ok := c.store.collections[c.name]
	if !ok || tree.Len() == 0 {
		return nil, fmt.Errorf("sample %s: %w", c.name, models.ErrNotFound)
	}
	return tree.Min().(entry).rec.Clone(), nil
}

func (c *collection) Count(ctx context.Context, filter storage.Filter) (int64, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var n int64
	err := c.scan(filter, func(e entry) bool {
		n++
		return true
	})
	return n, err
}

func (c *collection) Find(ctx context.Context, filter storage.Filter, opts storage.FindOptions) ([]*models.Record, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	var matched []entry
	err := c.scan(filter, func(e entry) bool {
		matched = append(matched, e)
		// Ascending scans already produce identifier order.
		if opts.Sort == storage.ByIDAsc && opts.Limit > 0 && int64(len(matched)) >= opts.Skip+opts.Limit {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if opts.Sort == storage.ByTimestampDesc {
		sort.SliceStable(matched, func(i, j int) bool {
			ti, _ := matched[i].rec.Get(storage.TimestampField)
			tj, _ := matched[j].rec.Get(storage.TimestampField)
			if c := models.Compare(ti, tj); c != 0 {
				return c > 0
			}
			return matched[i].seq > matched[j].seq
		})
	}

	start := opts.Skip
	if start > int64(len(matched)) {
		start = int64(len(matched))
	}
	end := int64(len(matched))
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	out := make([]*models.Record, 0, end-start)
	for _, e := range matched[start:end] {
		out = append(out, e.rec.Clone())
	}
	return out, nil
}

func (c *collection) FindByID(ctx context.Context, id string) (*models.Record, error) {
	seq, ok := storage.ParseSequenceID(id)
	if !ok {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	tree, exists := c.store.collections[c.name]
	if !exists {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	item := tree.Get(entry{seq: seq})
	if item == nil {
		return nil, fmt.Errorf("record %q: %w", id, models.ErrNotFound)
	}
	return item.(entry).rec.Clone(), nil
}

// scan visits matching entries in identifier order until fn returns false.
// Callers must hold the read lock.
func (c *collection) scan(filter storage.Filter, fn func(entry) bool) error {
	tree, ok := c.store.collections[c.name]
	if !ok {
		return nil
	}

	visit := func(item btree.Item) bool {
		e := item.(entry)
		if !matches(e.rec, filter.AnyContains) {
			return true
		}
		return fn(e)
	}

	if filter.AfterID == "" {
		tree.Ascend(visit)
		return nil
	}
	after, ok := storage.ParseSequenceID(filter.AfterID)
	if !ok {
		return fmt.Errorf("invalid cursor %q: %w", filter.AfterID, models.ErrInvalidArgument)
	}
	tree.AscendGreaterOrEqual(entry{seq: after + 1}, visit)
	return nil
}

// matches evaluates the OR-of-substring clauses against a record.
func matches(rec *models.Record, clauses []storage.Contains) bool {
	if len(clauses) == 0 {
		return true
	}
	for _, cl := range clauses {
		v, ok := rec.Get(cl.Field)
		if !ok || v.IsNull() {
			continue
		}
		if strings.Contains(strings.ToLower(v.Text()), strings.ToLower(cl.Term)) {
			return true
		}
	}
	return false
}
