package engine

import (
	"context"
	"errors"

	"github.com/fidde/log_dashboard/internal/storage"
	"github.com/fidde/log_dashboard/pkg/models"
)

// SniffFields approximates a collection's schema from one arbitrary record,
// returning its field names in order without the identifier. An empty
// collection yields an empty set.
//
// This is a heuristic for search scope, not a schema contract: a field that
// is absent from the sampled record is invisible to search even when other
// records carry it.
func SniffFields(ctx context.Context, coll storage.Collection) ([]string, error) {
	rec, err := coll.Sample(ctx)
	if errors.Is(err, models.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	fields := make([]string, 0, rec.Len())
	for _, name := range rec.Keys() {
		if name == models.IDField {
			continue
		}
		fields = append(fields, name)
	}
	return fields, nil
}
