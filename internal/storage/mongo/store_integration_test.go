//go:build integration

package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := DefaultConfig()
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.URI = uri
	}
	cfg.Database = fmt.Sprintf("logdash_it_%d", time.Now().UnixNano())
	cfg.ConnectTimeout = 2 * time.Second

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := NewStore(context.Background(), cfg, logger)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	t.Cleanup(func() {
		_ = store.db.Drop(context.Background())
		store.Close()
	})
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 1; i <= 12; i++ {
		id, err := store.Insert(ctx, "network_log", models.NewRecord("",
			models.Field{Name: "timestamp", Value: models.Int(int64(i))},
			models.Field{Name: "msg", Value: models.String(fmt.Sprintf("event %d", i))},
		))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, id)
	}
	coll := store.Collection("network_log")

	total, err := coll.Count(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if total != 12 {
		t.Errorf("expected 12 records, got %d", total)
	}

	page, err := coll.Find(ctx, storage.Filter{}, storage.FindOptions{Skip: 5, Limit: 5})
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(page) != 5 {
		t.Fatalf("expected 5 records, got %d", len(page))
	}
	if ts, _ := page[0].Get("timestamp"); ts.Text() != "7" {
		t.Errorf("expected first timestamp 7, got %s", ts.Text())
	}

	matched, err := coll.Count(ctx, storage.Filter{AnyContains: []storage.Contains{{Field: "msg", Term: "EVENT 1"}}})
	if err != nil {
		t.Fatalf("Count with filter failed: %v", err)
	}
	if matched != 4 {
		t.Errorf("expected 4 matches, got %d", matched)
	}

	tail, err := coll.Find(ctx, storage.Filter{AfterID: ids[9]}, storage.FindOptions{Sort: storage.ByIDAsc, Limit: 10})
	if err != nil {
		t.Fatalf("Find after cursor failed: %v", err)
	}
	if len(tail) != 2 || tail[0].ID != ids[10] {
		t.Errorf("expected the last two records after cursor, got %d", len(tail))
	}
	if store.CompareIDs(ids[0], ids[1]) >= 0 {
		t.Error("expected identifiers in insertion order")
	}

	rec, err := coll.FindByID(ctx, ids[0])
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if msg, _ := rec.Get("msg"); msg.Text() != "event 1" {
		t.Errorf("unexpected record %s", msg.Text())
	}
	if _, err := coll.FindByID(ctx, "not-an-object-id"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Collection("empty").Sample(ctx); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound from empty sample, got %v", err)
	}
}
