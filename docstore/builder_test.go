package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/percona/percona-docshell/errors"
)

// offlineCollection returns a collection whose session has no server. Only code paths that
// fail or finish before a round trip can run against it.
func offlineCollection() *Collection {
	s := &Session{pending: make(map[string]struct{})}
	sc := &Schema{sess: s, name: "sakila"}

	return &Collection{schema: sc, name: "my_collection"}
}

func TestFindBuilderIsImmutable(t *testing.T) {
	t.Parallel()

	c := offlineCollection()

	base := c.Find("name like :p1 AND age < :p2").Bind("p1", "S%")
	a := base.Bind("p2", 20).Limit(1)
	b := base.Bind("p2", 40).Sort("age DESC")

	assert.Equal(t, map[string]any{"p1": "S%"}, base.q.bindings)
	assert.False(t, base.q.hasLimit)
	assert.Empty(t, base.sort)

	assert.Equal(t, map[string]any{"p1": "S%", "p2": 20}, a.q.bindings)
	assert.Equal(t, int64(1), a.q.limit)
	assert.Equal(t, map[string]any{"p1": "S%", "p2": 40}, b.q.bindings)
	assert.Equal(t, []string{"age DESC"}, b.sort)
	assert.Empty(t, a.sort)
}

func TestAddStatementIsImmutable(t *testing.T) {
	t.Parallel()

	c := offlineCollection()

	first := c.Add(bson.D{{Key: "name", Value: "Sakila"}})
	second := first.Add(bson.D{{Key: "name", Value: "Susanne"}})
	third := first.Add(bson.D{{Key: "name", Value: "Mike"}})

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 2, second.Len())
	assert.Equal(t, 2, third.Len())
	assert.Equal(t, bson.D{{Key: "name", Value: "Susanne"}}, second.docs[1])
	assert.Equal(t, bson.D{{Key: "name", Value: "Mike"}}, third.docs[1])
}

func TestFindExecuteValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		builder func(c *Collection) FindBuilder
		kind    error
	}{
		{
			name:    "parse error deferred to execute",
			builder: func(c *Collection) FindBuilder { return c.Find("name like") },
			kind:    errors.ErrParse,
		},
		{
			name:    "unbound placeholder",
			builder: func(c *Collection) FindBuilder { return c.Find("age < :max") },
			kind:    errors.ErrUnboundParameter,
		},
		{
			name: "unknown binding",
			builder: func(c *Collection) FindBuilder {
				return c.Find("age < :max").Bind("max", 1).Bind("min", 0)
			},
			kind: errors.ErrInvalidArgument,
		},
		{
			name: "negative limit",
			builder: func(c *Collection) FindBuilder {
				return c.Find("").Limit(-1)
			},
			kind: errors.ErrInvalidArgument,
		},
		{
			name: "negative offset",
			builder: func(c *Collection) FindBuilder {
				return c.Find("").Offset(-5)
			},
			kind: errors.ErrInvalidArgument,
		},
		{
			name: "bad sort",
			builder: func(c *Collection) FindBuilder {
				return c.Find("").Sort("age SIDEWAYS")
			},
			kind: errors.ErrInvalidArgument,
		},
		{
			name: "unsupported binding type",
			builder: func(c *Collection) FindBuilder {
				return c.Find("age < :max").Bind("max", struct{}{})
			},
			kind: errors.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.builder(offlineCollection()).Execute(context.Background())
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestFindLimitZeroIsEmpty(t *testing.T) {
	t.Parallel()

	cur, err := offlineCollection().Find("age < :max").Bind("max", 20).Limit(0).Execute(context.Background())
	require.NoError(t, err)

	for range 3 {
		doc, err := cur.FetchOne(context.Background())
		require.NoError(t, err)
		assert.Nil(t, doc)
	}
}

func TestRemoveExecuteValidation(t *testing.T) {
	t.Parallel()

	c := offlineCollection()

	_, err := c.Remove("  ").Execute(context.Background())
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = c.Remove("age < :max").Execute(context.Background())
	require.ErrorIs(t, err, errors.ErrUnboundParameter)

	res, err := c.Remove("age < :max").Bind("max", 1).Limit(0).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.AffectedItems)
}

func TestAddExecuteValidation(t *testing.T) {
	t.Parallel()

	c := offlineCollection()

	_, err := c.Add().Execute(context.Background())
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.ErrorContains(t, err, "no documents specified")

	_, err = c.Add(bson.D{{Key: "name", Value: "ok"}}, 42).Execute(context.Background())
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.ErrorContains(t, err, "document 1")
}

func TestAddRejectsOversizedDocument(t *testing.T) {
	t.Parallel()

	c := offlineCollection()
	c.schema.sess.opts.maxDocumentSize = 64

	big := make([]byte, 128)
	for i := range big {
		big[i] = 'x'
	}

	_, err := c.Add(bson.D{{Key: "blob", Value: string(big)}}).Execute(context.Background())
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.ErrorContains(t, err, "exceeds the limit of 64 B")
}

func TestClosedSession(t *testing.T) {
	t.Parallel()

	c := offlineCollection()
	s := c.schema.sess
	s.closed.Store(true)

	ctx := context.Background()

	_, err := c.Find("").Execute(ctx)
	require.ErrorIs(t, err, errors.ErrConnectionClosed)

	_, err = c.Add(bson.D{{Key: "a", Value: 1}}).Execute(ctx)
	require.ErrorIs(t, err, errors.ErrConnectionClosed)

	_, err = c.Remove("a = 1").Execute(ctx)
	require.ErrorIs(t, err, errors.ErrConnectionClosed)

	_, err = c.Count(ctx)
	require.ErrorIs(t, err, errors.ErrConnectionClosed)

	_, err = s.GetSchema(ctx, "sakila")
	require.ErrorIs(t, err, errors.ErrConnectionClosed)

	_, err = c.schema.CreateCollection(ctx, "x")
	require.ErrorIs(t, err, errors.ErrConnectionClosed)

	err = s.DropCollection(ctx, "sakila", "my_collection")
	require.ErrorIs(t, err, errors.ErrConnectionClosed)

	err = s.Ping(ctx)
	require.ErrorIs(t, err, errors.ErrConnectionClosed)

	require.NoError(t, s.Close(ctx), "closing twice is a no-op")
}

func TestResultCursor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cur, err := mongo.NewCursorFromDocuments([]any{
		bson.D{{Key: "_id", Value: "1"}, {Key: "name", Value: "Sakila"}, {Key: "age", Value: int32(15)}},
		bson.D{{Key: "_id", Value: "2"}, {Key: "name", Value: "Susanne"}, {Key: "age", Value: int32(24)}},
	}, nil, nil)
	require.NoError(t, err)

	rc := &ResultCursor{sess: &Session{}, cur: cur}

	first, err := rc.FetchOne(ctx)
	require.NoError(t, err)

	name, _ := first.Get("name")
	assert.True(t, name.Equal(String("Sakila")))
	assert.Equal(t, []string{"_id", "name", "age"}, first.Keys())

	rest, err := rc.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	id, _ := rest[0].ID()
	assert.Equal(t, "2", id)

	for range 3 {
		doc, err := rc.FetchOne(ctx)
		require.NoError(t, err)
		assert.Nil(t, doc)
	}

	assert.Equal(t, int64(2), rc.Fetched())
	assert.NoError(t, rc.Close(ctx))
}

func TestResultCursorAfterClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cur, err := mongo.NewCursorFromDocuments([]any{bson.D{{Key: "a", Value: 1}}}, nil, nil)
	require.NoError(t, err)

	s := &Session{}
	rc := &ResultCursor{sess: s, cur: cur}

	s.closed.Store(true)

	_, err = rc.FetchOne(ctx)
	assert.ErrorIs(t, err, errors.ErrConnectionClosed)
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	c := offlineCollection()

	var handles []Capable = []Capable{c.schema.sess, c.schema, c}
	for _, h := range handles {
		caps := h.Capabilities()
		assert.NotEmpty(t, caps)

		caps[0] = "mutated"
		assert.NotEqual(t, "mutated", h.Capabilities()[0])

		for _, name := range caps {
			assert.NotContains(t, []string{"checkOpen", "withTimeout", "fail", "insert"}, name)
		}
	}

	assert.Contains(t, c.Capabilities(), "find")
	assert.Contains(t, c.schema.Capabilities(), "create_collection")
}
