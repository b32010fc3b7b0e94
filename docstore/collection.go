package docstore

import (
	"context"
	"maps"
	"slices"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/expr"
	"github.com/percona/percona-docshell/log"
)

// Collection is a container of schemaless documents.
type Collection struct {
	schema *Schema
	name   string
	coll   *mongo.Collection
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) Schema() *Schema {
	return c.schema
}

// Add queues documents for insertion. Nothing is written until Execute.
func (c *Collection) Add(docs ...any) AddStatement {
	return AddStatement{coll: c}.Add(docs...)
}

// Find starts a query. The expression is parsed at Execute, after placeholders are bound.
// An empty expression matches every document.
func (c *Collection) Find(expr string) FindBuilder {
	return FindBuilder{coll: c, q: query{expr: expr}}
}

// Remove starts a delete of the documents matching expr.
func (c *Collection) Remove(expr string) RemoveBuilder {
	return RemoveBuilder{coll: c, q: query{expr: expr}}
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int64, error) {
	s := c.sess()

	err := s.checkOpen()
	if err != nil {
		return 0, err
	}

	var n int64

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		n, err = c.coll.CountDocuments(ctx, bson.D{})

		return err
	})
	if err != nil {
		return 0, s.fail("count", err)
	}

	return n, nil
}

// GetOne returns the document with the given identifier or fails with [errors.ErrNotFound].
// A hex identifier also matches a document whose identifier is the ObjectID it encodes.
func (c *Collection) GetOne(ctx context.Context, id string) (*Document, error) {
	s := c.sess()

	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	var raw bson.D

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return c.coll.FindOne(ctx, bson.D{{Key: IDField, Value: expr.MatchID(id)}}).Decode(&raw)
	})
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(errors.ErrNotFound, "document %q", id)
		}

		return nil, s.fail("get one", err)
	}

	return DocumentOf(raw)
}

// ReplaceOne replaces the document with the given identifier. The identifier field of doc
// is ignored. A missing document fails with [errors.ErrNotFound].
func (c *Collection) ReplaceOne(ctx context.Context, id string, doc any) error {
	return c.ReplaceOneIf(ctx, id, nil, doc)
}

// ReplaceOneIf replaces the document with the given identifier only while its fields equal
// the values in match. A missing or mismatching document fails with [errors.ErrNotFound].
func (c *Collection) ReplaceOneIf(ctx context.Context, id string, match map[string]any, doc any) error {
	s := c.sess()

	err := s.checkOpen()
	if err != nil {
		return err
	}

	d, err := DocumentOf(doc)
	if err != nil {
		return err
	}

	d.Delete(IDField)

	err = c.checkSize(d)
	if err != nil {
		return err
	}

	filter := bson.D{{Key: IDField, Value: expr.MatchID(id)}}
	for _, key := range slices.Sorted(maps.Keys(match)) {
		filter = append(filter, bson.E{Key: key, Value: match[key]})
	}

	var matched int64

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		res, err := c.coll.ReplaceOne(ctx, filter, d.bson())
		if err != nil {
			return err
		}

		matched = res.MatchedCount

		return nil
	})
	if err != nil {
		return s.fail("replace", err)
	}

	if matched == 0 {
		return errors.Wrapf(errors.ErrNotFound, "document %q", id)
	}

	s.lg.With(log.NS(c.schema.name, c.name)).Tracef("Replaced %q", id)

	return nil
}

func (c *Collection) sess() *Session {
	return c.schema.sess
}
