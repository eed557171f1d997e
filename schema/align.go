package schema

import (
	"fmt"
	"strings"
)

// Field is one named value of a record, kept in the order it was received.
type Field struct {
	Name  string
	Value float64
}

// Record is a customer feature record as submitted by a caller.
type Record []Field

// RecordFromMap builds a record from a map. Map iteration order is random, so
// the result is only suitable where field order does not matter.
func RecordFromMap(m map[string]float64) Record {
	rec := make(Record, 0, len(m))
	for name, value := range m {
		rec = append(rec, Field{Name: name, Value: value})
	}
	return rec
}

// Names returns the field names in received order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// MismatchError reports a record whose fields differ from the model
// vocabulary. Names are given in request spelling.
type MismatchError struct {
	Record  int
	Missing []string
	Extra   []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in record %d: missing %s, extra %s",
		e.Record, quoteList(e.Missing), quoteList(e.Extra))
}

// DuplicateFieldError reports two fields of one record resolving to the same
// canonical feature.
type DuplicateFieldError struct {
	Record int
	Name   string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("record %d: field %q given more than once", e.Record, e.Name)
}

// Alignment is a record rewritten into the model's column order.
type Alignment struct {
	Vector []float64
	// Reordered is set when the fields matched as a set but arrived in a
	// different order than expected.
	Reordered bool
}

// Align renames the record's fields through the table, rejects any missing or
// extra feature, and emits the values in expected order.
func Align(rec Record, table *Table, expected []string) (Alignment, error) {
	values := make(map[string]float64, len(rec))
	order := make([]string, 0, len(rec))
	var extra []string

	expectedSet := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		expectedSet[name] = struct{}{}
	}

	for _, f := range rec {
		canonical, ok := table.Canonical(f.Name)
		if !ok {
			extra = append(extra, f.Name)
			continue
		}
		if _, dup := values[canonical]; dup {
			return Alignment{}, &DuplicateFieldError{Name: f.Name}
		}
		values[canonical] = f.Value
		if _, ok := expectedSet[canonical]; !ok {
			extra = append(extra, f.Name)
			continue
		}
		order = append(order, canonical)
	}

	var missing []string
	for _, name := range expected {
		if _, ok := values[name]; !ok {
			missing = append(missing, table.External(name))
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return Alignment{}, &MismatchError{Missing: missing, Extra: extra}
	}

	alignment := Alignment{Vector: make([]float64, len(expected))}
	for i, name := range expected {
		alignment.Vector[i] = values[name]
		if order[i] != name {
			alignment.Reordered = true
		}
	}
	return alignment, nil
}

// AlignBatch aligns every record. The batch is validated as a unit: the first
// failing record aborts the whole batch and is named in the error.
func AlignBatch(records []Record, table *Table, expected []string) ([][]float64, int, error) {
	vectors := make([][]float64, len(records))
	reordered := 0
	for i, rec := range records {
		alignment, err := Align(rec, table, expected)
		if err != nil {
			switch e := err.(type) {
			case *MismatchError:
				e.Record = i
			case *DuplicateFieldError:
				e.Record = i
			}
			return nil, 0, err
		}
		if alignment.Reordered {
			reordered++
		}
		vectors[i] = alignment.Vector
	}
	return vectors, reordered, nil
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = fmt.Sprintf("%q", name)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
