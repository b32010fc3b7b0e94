package docstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/percona/percona-docshell/docstore"
	"github.com/percona/percona-docshell/errors"
)

func TestDocumentOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		keys []string
	}{
		{
			name: "bson.D keeps order",
			in:   bson.D{{Key: "name", Value: "Sakila"}, {Key: "age", Value: 15}, {Key: "_id", Value: "1"}},
			keys: []string{"name", "age", "_id"},
		},
		{
			name: "map sorted by key",
			in:   map[string]any{"name": "Sakila", "age": 15, "active": true},
			keys: []string{"active", "age", "name"},
		},
		{
			name: "bson.M sorted by key",
			in:   bson.M{"b": 1, "a": 2},
			keys: []string{"a", "b"},
		},
		{
			name: "json keeps order",
			in:   `{"name": "Mike", "age": 39, "tags": ["a", "b"], "address": {"city": "Lviv"}}`,
			keys: []string{"name", "age", "tags", "address"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := docstore.DocumentOf(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.keys, d.Keys())
		})
	}
}

func TestDocumentOfInvalid(t *testing.T) {
	t.Parallel()

	for name, in := range map[string]any{
		"scalar":      42,
		"broken json": `{"name": `,
		"channel":     map[string]any{"c": make(chan int)},
		"nil":         (*docstore.Document)(nil),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := docstore.DocumentOf(in)
			assert.ErrorIs(t, err, errors.ErrInvalidArgument)
		})
	}
}

func TestValueOf(t *testing.T) {
	t.Parallel()

	oid := bson.NewObjectID()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want docstore.Value
	}{
		{"nil", nil, docstore.Null()},
		{"string", "x", docstore.String("x")},
		{"int", 15, docstore.Int(15)},
		{"int32", int32(7), docstore.Int(7)},
		{"uint16", uint16(7), docstore.Int(7)},
		{"float", 1.5, docstore.Double(1.5)},
		{"bool", true, docstore.Bool(true)},
		{"object id", oid, docstore.String(oid.Hex())},
		{"time", ts, docstore.String("2024-03-01T12:00:00Z")},
		{"array", bson.A{"a", 1}, docstore.Array(docstore.String("a"), docstore.Int(1))},
		{"strings", []string{"a"}, docstore.Array(docstore.String("a"))},
		{
			"nested",
			bson.D{{Key: "city", Value: "Lviv"}},
			docstore.DocumentValue(docstore.NewDocument(docstore.Field{Key: "city", Value: docstore.String("Lviv")})),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := docstore.ValueOf(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want.Kind(), got.Kind())
		})
	}

	_, err := docstore.ValueOf(uint64(1 << 63))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = docstore.ValueOf(struct{}{})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestValueAccessors(t *testing.T) {
	t.Parallel()

	s, ok := docstore.String("Sakila").AsString()
	assert.True(t, ok)
	assert.Equal(t, "Sakila", s)

	_, ok = docstore.Int(1).AsString()
	assert.False(t, ok)

	f, ok := docstore.Int(3).AsDouble()
	assert.True(t, ok)
	assert.InDelta(t, 3.0, f, 0)

	assert.True(t, docstore.Int(3).Equal(docstore.Double(3)))
	assert.False(t, docstore.Int(3).Equal(docstore.String("3")))
	assert.True(t, docstore.Null().IsNull())
	assert.Equal(t, "document", docstore.KindDocument.String())
}

func TestDocumentEditing(t *testing.T) {
	t.Parallel()

	d := docstore.NewDocument(
		docstore.Field{Key: "name", Value: docstore.String("Sakila")},
		docstore.Field{Key: "age", Value: docstore.Int(15)},
	)

	clone := d.Clone()

	d.Set("age", docstore.Int(16))
	d.Set("_id", docstore.String("abc"))
	assert.True(t, d.Delete("name"))
	assert.False(t, d.Delete("name"))

	assert.Equal(t, []string{"age", "_id"}, d.Keys())

	id, ok := d.ID()
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	age, _ := clone.Get("age")
	assert.True(t, age.Equal(docstore.Int(15)))
	assert.Equal(t, 2, clone.Len())
	assert.False(t, clone.Equal(d))
}

func TestDocumentJSON(t *testing.T) {
	t.Parallel()

	d, err := docstore.DocumentOf(bson.D{
		{Key: "name", Value: "Sakila"},
		{Key: "age", Value: int64(15)},
		{Key: "score", Value: 1.5},
		{Key: "tags", Value: bson.A{"x"}},
		{Key: "nothing", Value: nil},
	})
	require.NoError(t, err)

	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Sakila","age":15,"score":1.5,"tags":["x"],"nothing":null}`, string(data))

	back, err := docstore.DocumentOf(data)
	require.NoError(t, err)
	assert.True(t, d.Equal(back))
}
