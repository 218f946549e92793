package engine

import (
	"strings"

	"github.com/fidde/log_dashboard/internal/storage"
)

// Plan builds the search filter: an OR of case-insensitive substring
// matches of term over every field. A blank term, or an empty field set,
// matches everything.
//
// Field types are not checked; each backend matches non-string values on
// its own textual rendering.
func Plan(fields []string, term string) storage.Filter {
	if isBlank(term) || len(fields) == 0 {
		return storage.Filter{}
	}

	clauses := make([]storage.Contains, 0, len(fields))
	for _, f := range fields {
		clauses = append(clauses, storage.Contains{Field: f, Term: term})
	}
	return storage.Filter{AnyContains: clauses}
}

func isBlank(term string) bool {
	return strings.TrimSpace(term) == ""
}
