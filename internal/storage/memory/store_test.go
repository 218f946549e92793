package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
)

func insertN(t *testing.T, s *Store, collection string, n int, mk func(i int) []models.Field) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := s.Insert(context.Background(), collection, models.NewRecord("", mk(i)...))
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := models.NewRecord("ignored", models.Field{Name: "a", Value: models.Int(1)})
	id1, err := s.Insert(ctx, "c", rec)
	if err != nil {
		t.Fatal(err)
	}
	id2, _ := s.Insert(ctx, "c", rec)

	if id1 != "1" || id2 != "2" {
		t.Errorf("expected ids 1 and 2, got %s and %s", id1, id2)
	}
	if s.CompareIDs(id1, id2) >= 0 {
		t.Error("expected id1 < id2")
	}
	if rec.ID != "ignored" {
		t.Error("Insert must not modify the caller's record")
	}

	if _, err := s.Insert(ctx, "", rec); err == nil {
		t.Error("expected error for empty collection")
	}
	if _, err := s.Insert(ctx, "c", nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestSample(t *testing.T) {
	s := New()
	coll := s.Collection("logs")

	if _, err := coll.Sample(context.Background()); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty collection, got %v", err)
	}

	insertN(t, s, "logs", 3, func(i int) []models.Field {
		return []models.Field{{Name: "i", Value: models.Int(int64(i))}}
	})
	rec, err := coll.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if rec.Len() != 1 {
		t.Errorf("unexpected sample %v", rec.Keys())
	}
}

func TestFindByTimestampDesc(t *testing.T) {
	s := New()
	// Timestamps 0,1,2,0,1,2,... so ties are broken by identifier.
	insertN(t, s, "logs", 6, func(i int) []models.Field {
		return []models.Field{{Name: "timestamp", Value: models.Int(int64(i % 3))}}
	})

	recs, err := s.Collection("logs").Find(context.Background(), storage.Filter{}, storage.FindOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"6", "3", "5", "2", "4", "1"}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(recs))
	}
	for i := range want {
		if recs[i].ID != want[i] {
			t.Errorf("position %d: expected id %s, got %s", i, want[i], recs[i].ID)
		}
	}
}

func TestFindSkipLimit(t *testing.T) {
	s := New()
	insertN(t, s, "logs", 10, func(i int) []models.Field {
		return []models.Field{{Name: "timestamp", Value: models.Int(int64(i))}}
	})
	coll := s.Collection("logs")

	tests := []struct {
		skip, limit int64
		want        int
		first       string
	}{
		{0, 3, 3, "10"},
		{3, 3, 3, "7"},
		{9, 3, 1, "1"},
		{10, 3, 0, ""},
		{0, 0, 10, "10"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("skip=%d/limit=%d", tt.skip, tt.limit), func(t *testing.T) {
			recs, err := coll.Find(context.Background(), storage.Filter{}, storage.FindOptions{Skip: tt.skip, Limit: tt.limit})
			if err != nil {
				t.Fatal(err)
			}
			if len(recs) != tt.want {
				t.Fatalf("expected %d records, got %d", tt.want, len(recs))
			}
			if tt.want > 0 && recs[0].ID != tt.first {
				t.Errorf("expected first id %s, got %s", tt.first, recs[0].ID)
			}
		})
	}
}

func TestFindAfterIDAscending(t *testing.T) {
	s := New()
	insertN(t, s, "logs", 5, func(i int) []models.Field { return nil })
	coll := s.Collection("logs")

	recs, err := coll.Find(context.Background(), storage.Filter{AfterID: "2"}, storage.FindOptions{Sort: storage.ByIDAsc, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ID != "3" || recs[1].ID != "4" {
		t.Errorf("expected [3 4], got %v", recs)
	}

	if _, err := coll.Find(context.Background(), storage.Filter{AfterID: "abc"}, storage.FindOptions{}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for bad cursor, got %v", err)
	}
}

func TestCountAndFindWithContains(t *testing.T) {
	s := New()
	ctx := context.Background()
	values := []models.Value{
		models.String("Disk FULL"),
		models.String("ok"),
		models.Int(404),
		models.Null(),
		models.Object(models.Field{Name: "code", Value: models.String("full")}),
	}
	for _, v := range values {
		if _, err := s.Insert(ctx, "logs", models.NewRecord("", models.Field{Name: "msg", Value: v})); err != nil {
			t.Fatal(err)
		}
	}
	coll := s.Collection("logs")

	tests := []struct {
		term string
		want int64
	}{
		{"full", 2},
		{"40", 1},
		{"null", 0},
		{"", 4}, // every non-null value contains the empty string
		{"f.ll", 0},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			filter := storage.Filter{AnyContains: []storage.Contains{{Field: "msg", Term: tt.term}}}
			n, err := coll.Count(ctx, filter)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("Count(%q) = %d, want %d", tt.term, n, tt.want)
			}
			recs, _ := coll.Find(ctx, filter, storage.FindOptions{})
			if int64(len(recs)) != tt.want {
				t.Errorf("Find(%q) returned %d records, want %d", tt.term, len(recs), tt.want)
			}
		})
	}

	multi := storage.Filter{AnyContains: []storage.Contains{
		{Field: "missing", Term: "ok"},
		{Field: "msg", Term: "OK"},
	}}
	if n, _ := coll.Count(ctx, multi); n != 1 {
		t.Errorf("expected OR over clauses to match 1, got %d", n)
	}
}

func TestFindByID(t *testing.T) {
	s := New()
	ids := insertN(t, s, "a", 2, func(i int) []models.Field {
		return []models.Field{{Name: "i", Value: models.Int(int64(i))}}
	})
	insertN(t, s, "b", 1, func(i int) []models.Field { return nil })

	rec, err := s.Collection("a").FindByID(context.Background(), ids[1])
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := rec.Get("i"); v.Text() != "1" {
		t.Errorf("unexpected record %v", rec)
	}

	for _, id := range []string{"0", "-1", "x", "", "3", "99"} {
		if _, err := s.Collection("a").FindByID(context.Background(), id); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("FindByID(%q): expected ErrNotFound, got %v", id, err)
		}
	}
	if _, err := s.Collection("missing").FindByID(context.Background(), "1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing collection, got %v", err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ids := insertN(t, s, "a", 1, func(i int) []models.Field {
		return []models.Field{{Name: "v", Value: models.String("orig")}}
	})
	coll := s.Collection("a")

	recs, _ := coll.Find(context.Background(), storage.Filter{}, storage.FindOptions{})
	recs[0].Set("v", models.String("changed"))

	rec, _ := coll.FindByID(context.Background(), ids[0])
	if v, _ := rec.Get("v"); v.Text() != "orig" {
		t.Errorf("stored record was modified through a returned copy: %s", v.Text())
	}
}

func TestConcurrentInsertAndRead(t *testing.T) {
	s := New()
	coll := s.Collection("logs")
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = s.Insert(ctx, "logs", models.NewRecord("", models.Field{Name: "i", Value: models.Int(int64(i))}))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = coll.Count(ctx, storage.Filter{})
				_, _ = coll.Find(ctx, storage.Filter{}, storage.FindOptions{Sort: storage.ByIDAsc, Limit: 10})
			}
		}()
	}
	wg.Wait()

	n, err := coll.Count(ctx, storage.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 200 {
		t.Errorf("expected 200 records, got %d", n)
	}
}
