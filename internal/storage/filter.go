package storage

// Contains matches records whose Field value contains Term as a
// case-insensitive literal substring of its textual rendering.
type Contains struct {
	Field string
	Term  string
}

// Filter is the closed set of predicates the engine needs. The zero
// Filter matches every record.
type Filter struct {
	// AnyContains is an OR over substring clauses. Empty means no
	// constraint.
	AnyContains []Contains

	// AfterID restricts results to identifiers strictly greater than it.
	// Empty means no lower bound.
	AfterID string
}

// MatchAll reports whether the filter places no constraint on records.
func (f Filter) MatchAll() bool {
	return len(f.AnyContains) == 0 && f.AfterID == ""
}

// SortOrder selects result ordering for Find.
type SortOrder int

const (
	// ByTimestampDesc sorts on the "timestamp" field, newest first, with
	// the identifier (descending) as tie-break.
	ByTimestampDesc SortOrder = iota

	// ByIDAsc sorts by identifier, oldest first.
	ByIDAsc
)

// TimestampField is the field ByTimestampDesc sorts on.
const TimestampField = "timestamp"

// FindOptions windows a Find call.
type FindOptions struct {
	Sort  SortOrder
	Skip  int64
	Limit int64 // 0 means unlimited
}
