// Package frame is a small column-oriented table, just enough to merge two
// JSON record sets and hand the result to a SQL store.
//
// Cell values are one of nil, int64, float64, bool, string, time.Time,
// []any or map[string]any. nil is a null.
package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"time"
)

var ErrColumnNotFound = errors.New("column not found")

type Kind string

const (
	KindNull   Kind = "null"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindTime   Kind = "time"
	// Lists, objects and columns holding more than one kind of value
	KindJSON Kind = "json"
)

type Table struct {
	names  []string
	values map[string][]any
	rows   int
}

func New() *Table {
	return &Table{values: map[string][]any{}}
}

func (t *Table) Len() int {
	return t.rows
}

func (t *Table) Columns() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.values[name]
	return ok
}

func (t *Table) Column(name string) ([]any, error) {
	v, ok := t.values[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	return v, nil
}

// Value returns the cell at row for name, nil when either is out of range
func (t *Table) Value(row int, name string) any {
	v, ok := t.values[name]
	if !ok || row < 0 || row >= len(v) {
		return nil
	}
	return v[row]
}

// Row returns a copy of row i keyed by column name
func (t *Table) Row(i int) map[string]any {
	out := make(map[string]any, len(t.names))
	for _, name := range t.names {
		out[name] = t.values[name][i]
	}
	return out
}

// AddColumn appends a column. The first column fixes the row count, later
// ones must match it.
func (t *Table) AddColumn(name string, values []any) error {
	if _, ok := t.values[name]; ok {
		return fmt.Errorf("column %q already exists", name)
	}
	if len(t.names) == 0 {
		t.rows = len(values)
	} else if len(values) != t.rows {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), t.rows)
	}
	t.names = append(t.names, name)
	t.values[name] = values
	return nil
}

// Drop removes every named column. Nothing is removed unless all of them exist.
func (t *Table) Drop(names ...string) error {
	for _, name := range names {
		if !t.HasColumn(name) {
			return fmt.Errorf("drop: %w: %q", ErrColumnNotFound, name)
		}
	}
	drop := map[string]bool{}
	for _, name := range names {
		drop[name] = true
		delete(t.values, name)
	}
	kept := t.names[:0]
	for _, name := range t.names {
		if !drop[name] {
			kept = append(kept, name)
		}
	}
	t.names = kept
	return nil
}

// Rename applies mapping old->new. Every old name must exist, columns that
// aren't mentioned keep their names.
func (t *Table) Rename(mapping map[string]string) error {
	for from := range mapping {
		if !t.HasColumn(from) {
			return fmt.Errorf("rename: %w: %q", ErrColumnNotFound, from)
		}
	}
	values := make(map[string][]any, len(t.values))
	names := make([]string, len(t.names))
	for i, name := range t.names {
		to, ok := mapping[name]
		if !ok {
			to = name
		}
		if _, dup := values[to]; dup {
			return fmt.Errorf("rename: column %q would be duplicated", to)
		}
		names[i] = to
		values[to] = t.values[name]
	}
	t.names = names
	t.values = values
	return nil
}

// FillNull replaces nulls in one column with v
func (t *Table) FillNull(name string, v any) error {
	col, err := t.Column(name)
	if err != nil {
		return fmt.Errorf("fill: %w", err)
	}
	for i := range col {
		if col[i] == nil {
			col[i] = v
		}
	}
	return nil
}

// WithConstant adds a column holding v in every row
func (t *Table) WithConstant(name string, v any) error {
	values := make([]any, t.rows)
	for i := range values {
		values[i] = v
	}
	return t.AddColumn(name, values)
}

// Kind reports the storage kind of a column. Ints mixed with floats widen to
// float, any other mix is json.
func (t *Table) Kind(name string) Kind {
	kind := KindNull
	for _, v := range t.values[name] {
		k := kindOf(v)
		switch {
		case k == KindNull || k == kind:
		case kind == KindNull:
			kind = k
		case (kind == KindInt && k == KindFloat) || (kind == KindFloat && k == KindInt):
			kind = KindFloat
		default:
			return KindJSON
		}
	}
	return kind
}

func kindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case bool:
		return KindBool
	case string:
		return KindString
	case time.Time:
		return KindTime
	default:
		return KindJSON
	}
}

// Normalize turns decoded JSON records into a table. Every top level key
// becomes a column, nested objects are flattened into dotted names and
// declared columns are always present even when no record carries them.
// Records should be decoded with json.Decoder.UseNumber so integers stay
// integers.
func Normalize(records []any, declared ...string) (*Table, error) {
	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, name := range declared {
		add(name)
	}

	flat := make([]map[string]any, 0, len(records))
	for i, record := range records {
		obj, ok := record.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is %T, not an object", i, record)
		}
		row := map[string]any{}
		flatten("", obj, row, add)
		flat = append(flat, row)
	}

	t := New()
	t.rows = len(flat)
	for _, name := range names {
		values := make([]any, len(flat))
		for i, row := range flat {
			values[i] = row[name]
		}
		t.names = append(t.names, name)
		t.values[name] = values
	}
	return t, nil
}

func flatten(prefix string, obj map[string]any, row map[string]any, add func(string)) {
	// Decoded objects carry no key order, sort so columns come out stable
	for _, key := range slices.Sorted(maps.Keys(obj)) {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if nested, ok := obj[key].(map[string]any); ok && len(nested) > 0 {
			flatten(name, nested, row, add)
			continue
		}
		add(name)
		row[name] = normalizeValue(obj[key])
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case int:
		return int64(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalizeValue(t[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = normalizeValue(inner)
		}
		return out
	}
	return v
}

// LeftJoin keeps every row of left exactly once, attaching the first right row
// whose on value matches. Unmatched rows get nulls for the right columns.
// Non-key columns present on both sides are suffixed _x (left) and _y (right).
func LeftJoin(left, right *Table, on string) (*Table, error) {
	leftKeys, err := left.Column(on)
	if err != nil {
		return nil, fmt.Errorf("join left: %w", err)
	}
	rightKeys, err := right.Column(on)
	if err != nil {
		return nil, fmt.Errorf("join right: %w", err)
	}

	index := map[string]int{}
	for i, v := range rightKeys {
		key, ok := joinKey(v)
		if !ok {
			continue
		}
		if _, exists := index[key]; !exists {
			index[key] = i
		}
	}

	matches := make([]int, len(leftKeys))
	for i, v := range leftKeys {
		matches[i] = -1
		if key, ok := joinKey(v); ok {
			if j, found := index[key]; found {
				matches[i] = j
			}
		}
	}

	out := New()
	out.rows = left.rows
	for _, name := range left.names {
		target := name
		if name != on && right.HasColumn(name) {
			target = name + "_x"
		}
		values := make([]any, left.rows)
		copy(values, left.values[name])
		out.names = append(out.names, target)
		out.values[target] = values
	}
	for _, name := range right.names {
		if name == on {
			continue
		}
		target := name
		if left.HasColumn(name) {
			target = name + "_y"
		}
		src := right.values[name]
		values := make([]any, left.rows)
		for i, j := range matches {
			if j >= 0 {
				values[i] = src[j]
			}
		}
		out.names = append(out.names, target)
		out.values[target] = values
	}
	return out, nil
}

func joinKey(v any) (string, bool) {
	switch t := v.(type) {
	case int64:
		return "n:" + strconv.FormatInt(t, 10), true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return "n:" + strconv.FormatInt(int64(t), 10), true
		}
		return "n:" + strconv.FormatFloat(t, 'g', -1, 64), true
	case string:
		return "s:" + t, true
	case bool:
		return "b:" + strconv.FormatBool(t), true
	}
	return "", false
}
