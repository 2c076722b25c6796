package strata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fixtureEntity struct {
	record Record
}

func (self *fixtureEntity) Record() Record {
	return self.record
}

func fixtureCollection(values ...map[string]any) *Collection {
	entities := make([]Entity, len(values))
	for i, v := range values {
		entities[i] = &fixtureEntity{record: NewRecord(v)}
	}
	return NewCollection(entities...)
}

func statusFixture() *Collection {
	return fixtureCollection(
		map[string]any{"id": "1", "name": "inbox", "status": "open"},
		map[string]any{"id": "2", "name": "doing", "status": "active"},
		map[string]any{"id": "3", "name": "review", "status": "active"},
		map[string]any{"id": "4", "name": "done", "status": "closed"},
		map[string]any{"id": "5", "name": "archive", "status": "archived"},
	)
}

func TestCollectionAccess(t *testing.T) {
	collection := statusFixture()
	require.Equal(t, 5, collection.Len())
	require.Equal(t, "inbox", collection.At(0).Record().Get("name"))

	window := collection.Slice(1, 3)
	require.Equal(t, 2, window.Len())
	require.Equal(t, "doing", window.At(0).Record().Get("name"))

	records := collection.Records()
	require.Len(t, records, 5)
	require.Equal(t, "archive", records[4].Get("name"))
}

func TestCollectionByIndex(t *testing.T) {
	collection := statusFixture()

	result, err := collection.Select(ByIndex(2))
	require.NoError(t, err)
	entity := result.(Entity)
	require.Equal(t, "review", entity.Record().Get("name"))

	_, err = collection.Select(ByIndex(5))
	require.Error(t, err)
	require.IsType(t, &QueryTypeError{}, err)

	_, err = collection.Select(ByIndex(-1))
	require.Error(t, err)
}

func TestCollectionProjection(t *testing.T) {
	collection := statusFixture().Slice(0, 3)

	result, err := collection.Select(ByField("name"))
	require.NoError(t, err)
	require.Equal(t, []any{"inbox", "doing", "review"}, result)

	// tuples preserve both key order and entity order
	result, err = collection.Select(ByFields("id", "name"))
	require.NoError(t, err)
	tuples := result.([][]any)
	require.Len(t, tuples, 3)
	for _, tuple := range tuples {
		require.Len(t, tuple, 2)
	}
	require.Equal(t, []any{"1", "inbox"}, tuples[0])
	require.Equal(t, []any{"3", "review"}, tuples[2])

	// missing fields project as nil
	result, err = collection.Select(ByField("missing"))
	require.NoError(t, err)
	require.Equal(t, []any{nil, nil, nil}, result)
}

func TestCollectionFilter(t *testing.T) {
	collection := statusFixture()

	// membership within the field's accepted list
	result, err := collection.Select(ByFilter(map[string]any{
		"status": []string{"open", "closed"},
	}))
	require.NoError(t, err)
	records := result.([]Record)
	require.Len(t, records, 2)
	require.Equal(t, "inbox", records[0].Get("name"))
	require.Equal(t, "done", records[1].Get("name"))

	// zero matches is still a slice
	result, err = collection.Select(ByFilter(map[string]any{
		"status": []string{"nonexistent"},
	}))
	require.NoError(t, err)
	require.Len(t, result.([]Record), 0)

	// conjunction across fields
	result, err = collection.Select(ByFilter(map[string]any{
		"status": []string{"active"},
		"name":   []string{"review", "done"},
	}))
	require.NoError(t, err)
	record := result.(Record)
	require.Equal(t, "3", record.Id())
}

func TestCollectionFilterSingleMatchUnwrap(t *testing.T) {
	collection := statusFixture()

	// exactly one match returns the bare record, not a one-element slice.
	// Call sites destructure a presumed-unique match, e.g. "the list named X".
	result, err := collection.Select(ByFilter(map[string]any{
		"name": []string{"doing"},
	}))
	require.NoError(t, err)
	record, ok := result.(Record)
	require.True(t, ok)
	require.Equal(t, "2", record.Id())
}

func TestCollectionFilterScalarNormalization(t *testing.T) {
	collection := statusFixture()

	// a bare string normalizes to a one-element list
	result, err := collection.Select(ByFilter(map[string]any{
		"status": "active",
	}))
	require.NoError(t, err)
	require.Len(t, result.([]Record), 2)

	// an integer value is a malformed condition
	_, err = collection.Select(ByFilter(map[string]any{
		"status": 3,
	}))
	require.Error(t, err)
	queryErr, ok := err.(*QueryTypeError)
	require.True(t, ok)
	require.Equal(t, "status", queryErr.Field)
	require.Contains(t, queryErr.Error(), "status")
}

func TestCollectionFilterFields(t *testing.T) {
	collection := statusFixture()

	result, err := collection.Select(ByFilterFields(
		map[string]any{"status": []string{"active"}},
		"id", "name",
	))
	require.NoError(t, err)
	partials := result.([]Record)
	require.Len(t, partials, 2)
	require.Equal(t, "2", partials[0].Get("id"))
	require.Equal(t, "doing", partials[0].Get("name"))
	// projection drops everything but the requested keys
	require.False(t, partials[0].Has("status"))

	// single match unwraps here too
	result, err = collection.Select(ByFilterFields(
		map[string]any{"name": "inbox"},
		"id",
	))
	require.NoError(t, err)
	partial, ok := result.(Record)
	require.True(t, ok)
	require.Equal(t, "1", partial.Get("id"))
}

func TestCollectionFilterNumericValues(t *testing.T) {
	// transport bodies go through oj.Parse, which yields int64 for integral
	// JSON numbers
	first, err := RecordFromJson([]byte(`{"id": "1", "pos": 1}`))
	require.NoError(t, err)
	second, err := RecordFromJson([]byte(`{"id": "2", "pos": 2}`))
	require.NoError(t, err)
	collection := NewCollection(
		&fixtureEntity{record: first},
		&fixtureEntity{record: second},
	)

	// a bare int64 scalar normalizes and matches the parsed value
	result, err := collection.Select(ByFilter(map[string]any{
		"pos": int64(2),
	}))
	require.NoError(t, err)
	record, ok := result.(Record)
	require.True(t, ok)
	require.Equal(t, "2", record.Id())

	// a Go int is still a malformed condition: no record value is ever an int
	_, err = collection.Select(ByFilter(map[string]any{
		"pos": 2,
	}))
	require.Error(t, err)
	queryErr, ok := err.(*QueryTypeError)
	require.True(t, ok)
	require.Equal(t, "pos", queryErr.Field)
}

func TestCollectionFilterNestedValues(t *testing.T) {
	collection := fixtureCollection(
		map[string]any{"id": "1", "labels": []any{"a", "b"}},
		map[string]any{"id": "2", "labels": []any{"c"}},
	)

	// accepted values may be nested shapes; equality is deep
	result, err := collection.Select(ByFilter(map[string]any{
		"labels": []any{[]any{"c"}},
	}))
	require.NoError(t, err)
	record := result.(Record)
	require.Equal(t, "2", record.Id())
}
