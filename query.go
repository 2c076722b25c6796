package strata

import (
	"fmt"
	"reflect"
	"slices"
)

// Entity is anything stored in a Collection. The stored set is closed:
// every element exposes a Record, which is what the query grammar assumes.
type Entity interface {
	Record() Record
}

// Collection is an ordered container of entities. Insertion order is
// preserved; it is significant for chunked execution correspondence but
// carries no meaning for query results.
type Collection struct {
	entities []Entity
}

func NewCollection(entities ...Entity) *Collection {
	return &Collection{
		entities: slices.Clone(entities),
	}
}

func (self *Collection) Len() int {
	return len(self.entities)
}

// At panics on an out of range index, like a slice. Use ByIndex for a
// checked lookup.
func (self *Collection) At(index int) Entity {
	return self.entities[index]
}

func (self *Collection) Slice(i int, j int) *Collection {
	return NewCollection(self.entities[i:j]...)
}

func (self *Collection) Entities() []Entity {
	return slices.Clone(self.entities)
}

func (self *Collection) Records() []Record {
	records := make([]Record, len(self.entities))
	for i, entity := range self.entities {
		records[i] = entity.Record()
	}
	return records
}

// the query grammar is a small closed set of shapes, not an expression
// language. Each shape has an explicit constructor; `Select` dispatches on
// the variant tag.

type queryKind int

const (
	queryByIndex queryKind = iota
	queryByField
	queryByFields
	queryByFilter
	queryByFilterFields
)

type Query struct {
	kind   queryKind
	index  int
	fields []string
	// field -> accepted values (list, or a scalar normalized to one)
	conditions map[string]any
}

// ByIndex selects the entity at one position.
func ByIndex(index int) Query {
	return Query{kind: queryByIndex, index: index}
}

// ByField projects one field's value from every entity, in order.
func ByField(field string) Query {
	return Query{kind: queryByField, fields: []string{field}}
}

// ByFields projects a value tuple per entity, in order.
func ByFields(fields ...string) Query {
	return Query{kind: queryByFields, fields: fields}
}

// ByFilter keeps the entities whose record matches every condition.
// Each condition is a membership test against the field's accepted values.
func ByFilter(conditions map[string]any) Query {
	return Query{kind: queryByFilter, conditions: conditions}
}

// ByFilterFields filters, then projects the trailing keys from the matching
// records.
func ByFilterFields(conditions map[string]any, fields ...string) Query {
	return Query{kind: queryByFilterFields, conditions: conditions, fields: fields}
}

// Select evaluates a query against the collection.
//
// Result shapes:
//   - ByIndex: the Entity at that position
//   - ByField: []any, one value per entity
//   - ByFields: [][]any value tuples
//   - ByFilter: []Record of matches
//   - ByFilterFields: []Record restricted to the requested keys
//
// Cardinality rule, kept for call sites that destructure a presumed-unique
// match: when a filter form yields exactly one match, the bare Record is
// returned instead of a one-element slice.
func (self *Collection) Select(query Query) (any, error) {
	switch query.kind {
	case queryByIndex:
		if query.index < 0 || len(self.entities) <= query.index {
			return nil, &QueryTypeError{
				Message: fmt.Sprintf("index %d out of range (%d entities)", query.index, len(self.entities)),
			}
		}
		return self.entities[query.index], nil
	case queryByField:
		values := make([]any, len(self.entities))
		for i, entity := range self.entities {
			values[i] = entity.Record().Get(query.fields[0])
		}
		return values, nil
	case queryByFields:
		tuples := make([][]any, len(self.entities))
		for i, entity := range self.entities {
			tuples[i] = entity.Record().Fields(query.fields...)
		}
		return tuples, nil
	case queryByFilter:
		matches, err := self.filter(query.conditions)
		if err != nil {
			return nil, err
		}
		return unwrapSingle(matches), nil
	case queryByFilterFields:
		matches, err := self.filter(query.conditions)
		if err != nil {
			return nil, err
		}
		partials := make([]Record, len(matches))
		for i, record := range matches {
			partials[i] = record.Select(query.fields...)
		}
		return unwrapSingle(partials), nil
	default:
		return nil, &QueryTypeError{Message: "unknown query shape"}
	}
}

func (self *Collection) filter(conditions map[string]any) ([]Record, error) {
	normalized, err := normalizeConditions(conditions)
	if err != nil {
		return nil, err
	}

	matches := []Record{}
	for _, entity := range self.entities {
		record := entity.Record()
		if matchesConditions(record, normalized) {
			matches = append(matches, record)
		}
	}
	return matches, nil
}

func unwrapSingle(records []Record) any {
	if len(records) == 1 {
		return records[0]
	}
	return records
}

// every condition value must be a list of accepted values. A bare string,
// bool, float64 or int64 is normalized to a one-element list: those are the
// scalar types oj.Parse yields (integral JSON numbers parse as int64).
// Anything else is a caller mistake - record values are never Go ints, so an
// int condition would silently match nothing.
func normalizeConditions(conditions map[string]any) (map[string][]any, error) {
	normalized := map[string][]any{}
	for field, accepted := range conditions {
		switch v := accepted.(type) {
		case []any:
			normalized[field] = v
		case []string:
			values := make([]any, len(v))
			for i, s := range v {
				values[i] = s
			}
			normalized[field] = values
		case string, bool, float64, int64:
			normalized[field] = []any{v}
		default:
			return nil, &QueryTypeError{
				Field:   field,
				Message: fmt.Sprintf("accepted values must be a list or a string, got %T", accepted),
			}
		}
	}
	return normalized, nil
}

func matchesConditions(record Record, conditions map[string][]any) bool {
	for field, accepted := range conditions {
		value := record.Get(field)
		match := false
		for _, candidate := range accepted {
			if valueEqual(value, candidate) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

// records hold parsed JSON: scalars, []any and map[string]any. DeepEqual
// covers the nested shapes without per-type switches.
func valueEqual(a any, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
