package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
)

// setupTestStore creates a temporary SQLite database for testing
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustInsert(t *testing.T, s *Store, collection string, fields ...models.Field) string {
	t.Helper()
	id, err := s.Insert(context.Background(), collection, models.NewRecord("", fields...))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	return id
}

func TestInsertAndFindByID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, "network_log",
		models.Field{Name: "timestamp", Value: models.Int(10)},
		models.Field{Name: "src", Value: models.String("10.0.0.1")},
		models.Field{Name: "meta", Value: models.Object(models.Field{Name: "port", Value: models.Int(443)})},
	)
	if id != "1" {
		t.Errorf("expected first id 1, got %s", id)
	}

	rec, err := s.Collection("network_log").FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if rec.ID != id {
		t.Errorf("expected id %s, got %s", id, rec.ID)
	}
	if keys := rec.Keys(); strings.Join(keys, ",") != "timestamp,src,meta" {
		t.Errorf("expected field order preserved, got %v", keys)
	}
	meta, _ := rec.Get("meta")
	if got := string(meta.AppendJSON(nil)); got != `{"port":443}` {
		t.Errorf("unexpected nested value %s", got)
	}

	for _, bad := range []string{"0", "abc", "", "2"} {
		if _, err := s.Collection("network_log").FindByID(ctx, bad); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("FindByID(%q): expected ErrNotFound, got %v", bad, err)
		}
	}
	if _, err := s.Collection("file_log").FindByID(ctx, id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound from another collection, got %v", err)
	}
}

func TestSample(t *testing.T) {
	s := setupTestStore(t)
	coll := s.Collection("cpu_usage_log")

	if _, err := coll.Sample(context.Background()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty collection, got %v", err)
	}

	mustInsert(t, s, "cpu_usage_log", models.Field{Name: "0", Value: models.String("[1]")})
	rec, err := coll.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if _, ok := rec.Get("0"); !ok {
		t.Errorf("unexpected sample %v", rec.Keys())
	}
}

func TestFindOrderingAndWindow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 25; i++ {
		mustInsert(t, s, "network_log", models.Field{Name: "timestamp", Value: models.Int(int64(i))})
	}
	mustInsert(t, s, "other", models.Field{Name: "timestamp", Value: models.Int(100)})
	coll := s.Collection("network_log")

	total, err := coll.Count(ctx, storage.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 25 {
		t.Errorf("expected 25 records, got %d", total)
	}

	recs, err := coll.Find(ctx, storage.Filter{}, storage.FindOptions{Skip: 10, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 10 {
		t.Fatalf("expected 10 records, got %d", len(recs))
	}
	for i, rec := range recs {
		ts, _ := rec.Get("timestamp")
		if want := 15 - i; ts.Text() != itoa(want) {
			t.Errorf("position %d: expected timestamp %d, got %s", i, want, ts.Text())
		}
	}

	all, err := coll.Find(ctx, storage.Filter{}, storage.FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 25 {
		t.Errorf("expected unlimited find to return 25, got %d", len(all))
	}
}

func itoa(n int) string {
	return storage.FormatSequenceID(uint64(n))
}

func TestFindTimestampTieBreak(t *testing.T) {
	s := setupTestStore(t)
	for i := 0; i < 4; i++ {
		mustInsert(t, s, "c", models.Field{Name: "timestamp", Value: models.Int(int64(i % 2))})
	}

	recs, err := s.Collection("c").Find(context.Background(), storage.Filter{}, storage.FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(recs))
	for i, r := range recs {
		got[i] = r.ID
	}
	if strings.Join(got, ",") != "4,2,3,1" {
		t.Errorf("expected [4 2 3 1], got %v", got)
	}
}

func TestFindAfterID(t *testing.T) {
	s := setupTestStore(t)
	for i := 0; i < 5; i++ {
		mustInsert(t, s, "c", models.Field{Name: "i", Value: models.Int(int64(i))})
	}
	coll := s.Collection("c")

	recs, err := coll.Find(context.Background(), storage.Filter{AfterID: "3"}, storage.FindOptions{Sort: storage.ByIDAsc, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ID != "4" || recs[1].ID != "5" {
		t.Errorf("expected [4 5], got %d records", len(recs))
	}

	if _, err := coll.Count(context.Background(), storage.Filter{AfterID: "x"}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for bad cursor, got %v", err)
	}
}

func TestContains(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, v := range []models.Value{
		models.String("Disk FULL"),
		models.String("ok"),
		models.Int(404),
		models.Null(),
	} {
		mustInsert(t, s, "c", models.Field{Name: "msg", Value: v}, models.Field{Name: "host name", Value: models.String("web")})
	}
	coll := s.Collection("c")

	tests := []struct {
		field, term string
		want        int64
	}{
		{"msg", "full", 1},
		{"msg", "40", 1},
		{"msg", "f%ll", 0},
		{"msg", "f_ll", 0},
		{"missing", "ok", 0},
		{"host name", "WEB", 4},
	}
	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.term, func(t *testing.T) {
			filter := storage.Filter{AnyContains: []storage.Contains{{Field: tt.field, Term: tt.term}}}
			n, err := coll.Count(ctx, filter)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("Count = %d, want %d", n, tt.want)
			}
		})
	}

	or := storage.Filter{AnyContains: []storage.Contains{
		{Field: "msg", Term: "ok"},
		{Field: "msg", Term: "full"},
	}}
	recs, err := coll.Find(ctx, or, storage.FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("expected OR to match 2 records, got %d", len(recs))
	}
}

func TestBuildWhere(t *testing.T) {
	where, args, err := buildWhere("c", storage.Filter{
		AfterID:     "7",
		AnyContains: []storage.Contains{{Field: "a", Term: "x"}, {Field: `q"uote`, Term: "y"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(where, " OR ") != 1 || !strings.Contains(where, "id > ?") {
		t.Errorf("unexpected where clause %q", where)
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %d", len(args))
	}
	if args[1] != int64(7) {
		t.Errorf("expected cursor arg 7, got %v", args[1])
	}
	if args[2] != `$."a"` || args[4] != `$."q\"uote"` {
		t.Errorf("unexpected json paths %v %v", args[2], args[4])
	}
}

func TestInMemoryDatabase(t *testing.T) {
	s, err := New(DefaultConfig(":memory:"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	mustInsert(t, s, "c", models.Field{Name: "a", Value: models.Int(1)})
	n, err := s.Collection("c").Count(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
