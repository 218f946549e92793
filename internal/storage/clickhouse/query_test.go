package clickhouse

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
)

func TestBuildWhere(t *testing.T) {
	tests := []struct {
		name     string
		filter   storage.Filter
		wantArgs int
		contains []string
	}{
		{"match all", storage.Filter{}, 1, []string{"collection = ?"}},
		{"cursor", storage.Filter{AfterID: "42"}, 2, []string{"seq > ?"}},
		{
			"two clauses",
			storage.Filter{AnyContains: []storage.Contains{{Field: "a", Term: "x"}, {Field: "b", Term: "y"}}},
			13,
			[]string{" OR ", "positionCaseInsensitiveUTF8", "JSONExtractRaw"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := buildWhere("network_log", tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("expected %d args, got %d: %v", tt.wantArgs, len(args), args)
			}
			if args[0] != "network_log" {
				t.Errorf("expected collection as first arg, got %v", args[0])
			}
			for _, c := range tt.contains {
				if !strings.Contains(where, c) {
					t.Errorf("expected %q in %q", c, where)
				}
			}
		})
	}
}

func TestBuildWhereArgs(t *testing.T) {
	_, args, err := buildWhere("c", storage.Filter{
		AfterID:     "7",
		AnyContains: []storage.Contains{{Field: "msg", Term: "full"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []any{"c", uint64(7), "msg", "msg", "full", "msg", "msg", "full"}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %d", len(want), len(args))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d: expected %v, got %v", i, want[i], args[i])
		}
	}

	if _, _, err := buildWhere("c", storage.Filter{AfterID: "abc"}); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for bad cursor, got %v", err)
	}
}

func TestBuildFind(t *testing.T) {
	tests := []struct {
		name      string
		opts      storage.FindOptions
		order     string
		window    string
		extraArgs int
	}{
		{"page", storage.FindOptions{Skip: 10, Limit: 10}, "JSONExtractFloat(doc, 'timestamp') DESC", " LIMIT ? OFFSET ?", 2},
		{"unlimited", storage.FindOptions{}, "seq DESC", "", 0},
		{"skip only", storage.FindOptions{Skip: 5}, "seq DESC", " OFFSET ?", 1},
		{"tail", storage.FindOptions{Sort: storage.ByIDAsc, Limit: 10}, "ORDER BY seq ASC", " LIMIT ? OFFSET ?", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := buildFind("c", storage.Filter{}, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(query, tt.order) {
				t.Errorf("expected order %q in %q", tt.order, query)
			}
			if tt.window == "" && strings.Contains(query, "LIMIT") {
				t.Errorf("unexpected LIMIT in %q", query)
			}
			if tt.window != "" && !strings.HasSuffix(query, tt.window) {
				t.Errorf("expected %q suffix in %q", tt.window, query)
			}
			if len(args) != 1+tt.extraArgs {
				t.Errorf("expected %d args, got %d", 1+tt.extraArgs, len(args))
			}
		})
	}
}

func TestSeqGeneratorIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := seqGenerator{now: func() time.Time { return fixed }}

	first := g.next()
	if first != uint64(fixed.UnixMilli())<<22 {
		t.Errorf("unexpected first id %d", first)
	}
	second := g.next()
	if second != first+1 {
		t.Errorf("expected counter increment within the same millisecond, got %d after %d", second, first)
	}

	fixed = fixed.Add(-time.Second)
	if third := g.next(); third <= second {
		t.Errorf("ids must keep increasing when the clock goes back, got %d after %d", third, second)
	}
}

func TestSeqGeneratorConcurrent(t *testing.T) {
	var g seqGenerator
	const n = 1000
	ids := make(chan uint64, n)
	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < n/4; j++ {
				ids <- g.next()
			}
		}()
	}
	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		id := <-ids
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}
