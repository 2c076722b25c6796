package strata

import (
	"fmt"
	"slices"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"golang.org/x/exp/maps"
)

// Record is an immutable key/value snapshot of one fetched entity.
// An "id" key is assumed present and stable. A record is never merged in
// place; a refresh replaces the whole record so that fields fetched at
// different times cannot mix.
type Record struct {
	values map[string]any
}

// the top level is copied. Nested values are owned by the record once parsed
// out of a response body and must not be mutated by the caller.
func NewRecord(values map[string]any) Record {
	return Record{
		values: maps.Clone(values),
	}
}

func RecordFromJson(jsonBytes []byte) (Record, error) {
	parsed, err := oj.Parse(jsonBytes)
	if err != nil {
		return Record{}, err
	}
	values, ok := parsed.(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("record body must be an object, got %T", parsed)
	}
	return Record{values: values}, nil
}

// true until the owning node has fetched itself
func (self Record) Empty() bool {
	return self.values == nil
}

func (self Record) Get(key string) any {
	return self.values[key]
}

func (self Record) Has(key string) bool {
	_, ok := self.values[key]
	return ok
}

func (self Record) Id() string {
	if id, ok := self.values["id"].(string); ok {
		return id
	}
	return ""
}

func (self Record) Len() int {
	return len(self.values)
}

func (self Record) Keys() []string {
	keys := maps.Keys(self.values)
	slices.Sort(keys)
	return keys
}

// Select returns a partial record restricted to the given keys.
// Missing keys are carried as nil, matching the backend's sparse responses.
func (self Record) Select(keys ...string) Record {
	values := map[string]any{}
	for _, key := range keys {
		values[key] = self.values[key]
	}
	return Record{values: values}
}

// Fields returns the values for the given keys as one ordered tuple.
func (self Record) Fields(keys ...string) []any {
	fields := make([]any, len(keys))
	for i, key := range keys {
		fields[i] = self.values[key]
	}
	return fields
}

// Path evaluates a JSONPath expression against the record's nested values.
func (self Record) Path(expr string) ([]any, error) {
	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", expr, err)
	}
	return x.Get(self.values), nil
}

func (self Record) Values() map[string]any {
	return maps.Clone(self.values)
}

func (self Record) String() string {
	return fmt.Sprintf("Record(%s)", self.Id())
}
