package registry

import (
	"errors"
	"testing"

	"github.com/fidde/log_dashboard/internal/normalize"
	"github.com/fidde/log_dashboard/internal/storage/memory"
	"github.com/fidde/log_dashboard/pkg/models"
)

func TestNewAndResolve(t *testing.T) {
	reg, err := New(memory.New(), []Definition{
		{Name: "log-process", Collection: "process_log"},
		{Name: "cpu_usage", Collection: "cpu_usage_log", Normalize: normalize.DigitRepair},
		{Name: "network"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	names := reg.Names()
	want := []string{"log-process", "cpu_usage", "network"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("name %d: expected %q, got %q", i, want[i], names[i])
		}
	}

	cat, err := reg.Resolve("cpu_usage")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if cat.Collection.Name() != "cpu_usage_log" {
		t.Errorf("expected collection cpu_usage_log, got %q", cat.Collection.Name())
	}
	if cat.Normalize != normalize.DigitRepair {
		t.Errorf("expected DigitRepair, got %v", cat.Normalize)
	}

	net, _ := reg.Resolve("network")
	if net.Collection.Name() != "network" {
		t.Errorf("expected collection to default to the name, got %q", net.Collection.Name())
	}
}

func TestResolveUnknown(t *testing.T) {
	reg, err := New(memory.New(), []Definition{{Name: "network"}})
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", "Network", "network_log", "unknown"} {
		_, err := reg.Resolve(name)
		if !errors.Is(err, models.ErrCategoryNotFound) {
			t.Errorf("Resolve(%q): expected ErrCategoryNotFound, got %v", name, err)
		}
	}
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{"empty name", []Definition{{Collection: "x"}}},
		{"duplicate", []Definition{{Name: "a"}, {Name: "a", Collection: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(memory.New(), tt.defs); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for nil backend")
	}
}

func TestNamesReturnsCopy(t *testing.T) {
	reg, _ := New(memory.New(), []Definition{{Name: "a"}, {Name: "b"}})
	names := reg.Names()
	names[0] = "mutated"

	if reg.Names()[0] != "a" {
		t.Error("Names must not expose internal state")
	}
	if len(reg.All()) != 2 {
		t.Errorf("expected 2 categories, got %d", len(reg.All()))
	}
}
