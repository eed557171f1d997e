// Package schema reconciles loosely named feature records with the ordered
// feature vocabulary a model was trained on.
package schema

import (
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Rename maps one accepted request spelling to the canonical model name.
type Rename struct {
	External  string
	Canonical string
}

// Table is a bijective rename table. The set of external spellings is the
// complete set of field names a request may use.
type Table struct {
	renames     []Rename
	toCanonical map[string]string
	toExternal  map[string]string
}

func NewTable(renames []Rename) (*Table, error) {
	if len(renames) == 0 {
		return nil, errors.New("rename table is empty")
	}
	t := &Table{
		renames:     make([]Rename, 0, len(renames)),
		toCanonical: make(map[string]string, len(renames)),
		toExternal:  make(map[string]string, len(renames)),
	}
	for _, r := range renames {
		external := norm.NFC.String(r.External)
		if external == "" || r.Canonical == "" {
			return nil, fmt.Errorf("rename %q -> %q has an empty name", r.External, r.Canonical)
		}
		if prev, ok := t.toCanonical[external]; ok {
			return nil, fmt.Errorf("external name %q mapped twice (%q and %q)", external, prev, r.Canonical)
		}
		if prev, ok := t.toExternal[r.Canonical]; ok {
			return nil, fmt.Errorf("canonical name %q targeted by both %q and %q", r.Canonical, prev, external)
		}
		t.toCanonical[external] = r.Canonical
		t.toExternal[r.Canonical] = external
		t.renames = append(t.renames, Rename{External: external, Canonical: r.Canonical})
	}
	return t, nil
}

// IdentityTable accepts the canonical names themselves.
func IdentityTable(names []string) (*Table, error) {
	renames := make([]Rename, len(names))
	for i, name := range names {
		renames[i] = Rename{External: name, Canonical: name}
	}
	return NewTable(renames)
}

// Canonical resolves a request field name. Unknown names report false.
func (t *Table) Canonical(external string) (string, bool) {
	canonical, ok := t.toCanonical[norm.NFC.String(external)]
	return canonical, ok
}

// External returns the request spelling of a canonical name, falling back to
// the canonical name itself when the table has no entry for it.
func (t *Table) External(canonical string) string {
	if external, ok := t.toExternal[canonical]; ok {
		return external
	}
	return canonical
}

func (t *Table) Accepts(name string) bool {
	_, ok := t.Canonical(name)
	return ok
}

// ExternalNames lists the accepted request spellings of the given canonical
// names, in the same order.
func (t *Table) ExternalNames(canonical []string) []string {
	names := make([]string, len(canonical))
	for i, name := range canonical {
		names[i] = t.External(name)
	}
	return names
}

func (t *Table) Len() int {
	return len(t.renames)
}

// Renames returns a copy of the declared entries in declaration order.
func (t *Table) Renames() []Rename {
	return append([]Rename(nil), t.renames...)
}

// CoverageError describes a table that does not match a model vocabulary.
type CoverageError struct {
	Unmapped []string // model features with no accepted spelling
	Unused   []string // table targets the model does not know
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("rename table does not cover model features: unmapped %v, unused %v", e.Unmapped, e.Unused)
}

// Covers checks that the table is total over featureNames and declares no
// spelling for a feature the model lacks.
func (t *Table) Covers(featureNames []string) error {
	known := make(map[string]struct{}, len(featureNames))
	var unmapped []string
	for _, name := range featureNames {
		known[name] = struct{}{}
		if _, ok := t.toExternal[name]; !ok {
			unmapped = append(unmapped, name)
		}
	}
	var unused []string
	for _, r := range t.renames {
		if _, ok := known[r.Canonical]; !ok {
			unused = append(unused, r.Canonical)
		}
	}
	if len(unmapped) > 0 || len(unused) > 0 {
		return &CoverageError{Unmapped: unmapped, Unused: unused}
	}
	return nil
}

// Unknown lists the record's field names the table does not accept, in
// received order.
func (t *Table) Unknown(rec Record) []string {
	var unknown []string
	for _, f := range rec {
		if !t.Accepts(f.Name) {
			unknown = append(unknown, f.Name)
		}
	}
	return unknown
}
