package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/percona/percona-docshell/docstore"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/mongotest"
	"github.com/percona/percona-docshell/topo"
)

func TestSessionLifecycle(t *testing.T) {
	srv := mongotest.Start(t)
	ctx := context.Background()

	s, err := docstore.ConnectMap(ctx, srv.Endpoint())
	require.NoError(t, err)

	defer s.Close(ctx) //nolint:errcheck

	require.NoError(t, s.Ping(ctx))

	_, err = s.GetSchema(ctx, "sakila")
	require.ErrorIs(t, err, errors.ErrNotFound, "schemas are never created by lookup")

	_, err = s.GetSchema(ctx, "admin")
	require.ErrorIs(t, err, errors.ErrNotFound, "system schemas are hidden")

	schema, err := s.CreateSchema(ctx, "sakila")
	require.NoError(t, err)

	_, err = s.CreateSchema(ctx, "sakila")
	require.ErrorIs(t, err, errors.ErrAlreadyExists)

	coll, err := schema.CreateCollection(ctx, "my_collection")
	require.NoError(t, err)

	_, err = schema.CreateCollection(ctx, "my_collection")
	require.ErrorIs(t, err, errors.ErrAlreadyExists)

	dotted, err := schema.CreateCollection(ctx, "logs.2024")
	require.NoError(t, err)
	assert.Equal(t, "logs.2024", dotted.Name())

	_, err = schema.CreateCollection(ctx, "price$")
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	schemas, err := s.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Contains(t, schemas, "sakila")
	assert.NotContains(t, schemas, "admin")

	res, err := coll.
		Add(map[string]any{"name": "Sakila", "age": 15}).
		Add(map[string]any{"name": "Susanne", "age": 24}).
		Add(map[string]any{"name": "Mike", "age": 39}).
		Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.AffectedItems)
	assert.Len(t, res.GeneratedIDs, 3)

	find := coll.Find("name like :p1 AND age < :p2").Limit(1).Bind("p1", "S%").Bind("p2", 20)

	cur, err := find.Execute(ctx)
	require.NoError(t, err)

	docs, err := cur.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	name, _ := docs[0].Get("name")
	assert.True(t, name.Equal(docstore.String("Sakila")))

	for range 2 {
		doc, err := cur.FetchOne(ctx)
		require.NoError(t, err)
		assert.Nil(t, doc)
	}

	again, err := find.Execute(ctx)
	require.NoError(t, err)

	docsAgain, err := again.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, docsAgain, 1)
	assert.True(t, docs[0].Equal(docsAgain[0]), "executing a query twice yields the same documents")

	sorted, err := coll.Find("age > :min").Bind("min", 10).Sort("age DESC").Offset(1).Execute(ctx)
	require.NoError(t, err)

	sortedDocs, err := sorted.FetchAll(ctx)
	require.NoError(t, err)
	require.Len(t, sortedDocs, 2)

	age, _ := sortedDocs[0].Get("age")
	assert.True(t, age.Equal(docstore.Int(24)))

	removed, err := coll.Remove("name = :n").Bind("n", "Mike").Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed.AffectedItems)

	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.DropCollection(ctx, "sakila", "my_collection"))

	err = s.DropCollection(ctx, "sakila", "my_collection")
	require.ErrorIs(t, err, errors.ErrNotFound)

	err = s.DropCollection(ctx, "no_such_schema", "my_collection")
	require.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, s.Close(ctx))

	_, err = coll.Find("").Execute(ctx)
	require.ErrorIs(t, err, errors.ErrConnectionClosed)
}

func TestAddIsAllOrNothing(t *testing.T) {
	srv := mongotest.Start(t)
	ctx := context.Background()

	s, err := docstore.ConnectMap(ctx, srv.Endpoint())
	require.NoError(t, err)

	defer s.Close(ctx) //nolint:errcheck

	schema, err := s.CreateSchema(ctx, "atomic")
	require.NoError(t, err)

	coll, err := schema.CreateCollection(ctx, "people")
	require.NoError(t, err)

	_, err = coll.Add(bson.D{{Key: "_id", Value: "taken"}, {Key: "name", Value: "first"}}).Execute(ctx)
	require.NoError(t, err)

	_, err = coll.
		Add(bson.D{{Key: "name", Value: "a"}}).
		Add(bson.D{{Key: "name", Value: "b"}}).
		Add(bson.D{{Key: "_id", Value: "taken"}, {Key: "name", Value: "dup"}}).
		Execute(ctx)
	require.ErrorIs(t, err, errors.ErrAlreadyExists)

	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	doc, err := coll.GetOne(ctx, "taken")
	require.NoError(t, err)

	name, _ := doc.Get("name")
	assert.True(t, name.Equal(docstore.String("first")))

	require.NoError(t, coll.ReplaceOne(ctx, "taken", map[string]any{"name": "replaced"}))

	err = coll.ReplaceOne(ctx, "missing", map[string]any{"name": "x"})
	require.ErrorIs(t, err, errors.ErrNotFound)

	_, err = coll.GetOne(ctx, "missing")
	require.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, s.DropSchema(ctx, "atomic"))

	_, err = s.GetSchema(ctx, "atomic")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestObjectIDDocuments(t *testing.T) {
	srv := mongotest.Start(t)
	ctx := context.Background()

	client, err := topo.Connect(ctx, topo.Address(srv.Host, srv.Port), &topo.ConnectOptions{
		Credential: topo.Credential{User: srv.User, Password: srv.Password},
	})
	require.NoError(t, err)

	defer client.Disconnect(ctx) //nolint:errcheck

	oid := bson.NewObjectID()
	_, err = client.Database("foreign").Collection("items").
		InsertMany(ctx, []any{bson.D{{Key: "_id", Value: oid}, {Key: "name", Value: "a"}}, bson.D{{Key: "name", Value: "b"}}})
	require.NoError(t, err)

	s, err := docstore.ConnectMap(ctx, srv.Endpoint())
	require.NoError(t, err)

	defer s.Close(ctx) //nolint:errcheck

	schema, err := s.GetSchema(ctx, "foreign")
	require.NoError(t, err)

	coll, err := schema.GetCollection(ctx, "items")
	require.NoError(t, err)

	doc, err := coll.GetOne(ctx, oid.Hex())
	require.NoError(t, err)

	id, ok := doc.ID()
	require.True(t, ok)
	assert.Equal(t, oid.Hex(), id)

	require.NoError(t, coll.ReplaceOne(ctx, id, map[string]any{"name": "renamed"}))

	found, err := coll.Find("_id = :id AND name = 'renamed'").Bind("id", id).Execute(ctx)
	require.NoError(t, err)

	docs, err := found.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	removed, err := coll.Remove("_id = :id").Bind("id", id).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed.AffectedItems)

	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConnectFailure(t *testing.T) {
	srv := mongotest.Start(t)
	ctx := context.Background()

	ep := srv.Endpoint()
	ep["dbPassword"] = "wrong"

	_, err := docstore.ConnectMap(ctx, ep)
	require.ErrorIs(t, err, errors.ErrConnection)
}
