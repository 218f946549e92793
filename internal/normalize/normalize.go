// Package normalize repairs known malformed record shapes after retrieval.
//
// Each category selects one Strategy. New per-category quirks are added as
// new Strategy values, not as conditionals in the query path.
package normalize

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fidde/log_dashboard/pkg/models"
	"github.com/valyala/fastjson"
)

// Strategy selects the normalization applied to a category's records.
type Strategy int

const (
	// None leaves records untouched.
	None Strategy = iota

	// DigitRepair parses stringified, digit-named fields (the "cpu_usage"
	// shape) back into structured values.
	DigitRepair
)

// DigitSlots is the fixed window of digit-named fields kept by
// DigitRepair: "0" through "9". Digit fields outside it are dropped.
const DigitSlots = 10

// ParseStrategy maps a configuration name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "digit_repair":
		return DigitRepair, nil
	default:
		return None, fmt.Errorf("unknown normalize strategy %q (supported: none, digit_repair)", name)
	}
}

// String returns the configuration name of s.
func (s Strategy) String() string {
	switch s {
	case None:
		return "none"
	case DigitRepair:
		return "digit_repair"
	default:
		return "Strategy(" + strconv.Itoa(int(s)) + ")"
	}
}

// FieldError reports a digit-named field whose value could not be parsed.
// It is logged and the raw value kept; it never reaches callers.
type FieldError struct {
	RecordID string
	Field    string
	Err      error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("normalizing record %s field %q: %v", e.RecordID, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Normalizer applies strategies to records in place.
type Normalizer struct {
	logger  *slog.Logger
	parsers fastjson.ParserPool
}

// New creates a Normalizer. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Apply normalizes every record with the given strategy. It never fails:
// per-field problems are logged and the raw value kept.
func (n *Normalizer) Apply(strategy Strategy, records []*models.Record) {
	if strategy != DigitRepair {
		return
	}
	for _, rec := range records {
		for _, ferr := range n.repairDigits(rec) {
			n.logger.Debug("kept raw digit field", "record_id", ferr.RecordID, "field", ferr.Field, "error", ferr.Err)
		}
	}
}

// repairDigits rewrites the digit-named fields of rec and returns the
// fields that failed to parse.
func (n *Normalizer) repairDigits(rec *models.Record) []*FieldError {
	var (
		slots   [DigitSlots]models.Value
		present [DigitSlots]bool
		failed  []*FieldError
		dropped []string
	)

	for _, name := range rec.Keys() {
		if !isDigits(name) {
			continue
		}
		raw, _ := rec.Get(name)
		rec.Delete(name)

		slot, err := strconv.Atoi(name)
		if err != nil || slot >= DigitSlots || name != strconv.Itoa(slot) {
			dropped = append(dropped, name)
			continue
		}

		value, err := n.parseDigitValue(raw)
		if err != nil {
			failed = append(failed, &FieldError{RecordID: rec.ID, Field: name, Err: err})
		}
		slots[slot] = value
		present[slot] = true
	}

	for i := 0; i < DigitSlots; i++ {
		if present[i] {
			rec.Set(strconv.Itoa(i), slots[i])
		}
	}

	if len(dropped) > 0 {
		n.logger.Warn("dropped digit fields outside the slot window",
			"record_id", rec.ID,
			"fields", dropped,
			"window", DigitSlots,
		)
	}
	return failed
}

// parseDigitValue parses a stringified value after swapping single quotes
// for double quotes. Non-string values, and strings that decode to another
// plain string, are returned unchanged so a second pass is a no-op.
func (n *Normalizer) parseDigitValue(raw models.Value) (models.Value, error) {
	s, ok := raw.AsString()
	if !ok {
		return raw, nil
	}

	p := n.parsers.Get()
	defer n.parsers.Put(p)

	fv, err := p.Parse(strings.ReplaceAll(s, "'", `"`))
	if err != nil {
		return raw, err
	}
	if err := models.CheckNumbers(fv); err != nil {
		return raw, err
	}
	if fv.Type() == fastjson.TypeString {
		return raw, nil
	}
	return models.FromFastJSON(fv), nil
}

// isDigits reports whether name is non-empty and made only of ASCII digits.
func isDigits(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}
