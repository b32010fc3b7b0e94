package docstore

import (
	"context"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/metrics"
	"github.com/percona/percona-docshell/topo"
)

// WriteResult reports the outcome of an add or remove.
type WriteResult struct {
	// AffectedItems is the number of inserted or deleted documents.
	AffectedItems int64 `json:"affectedItems"`
	// GeneratedIDs lists identifiers assigned to added documents that had none, in order.
	GeneratedIDs []string `json:"generatedIds,omitempty"`
}

// AddStatement is a queue of documents to insert. Add returns a new statement and leaves the
// receiver unchanged.
type AddStatement struct {
	coll *Collection
	docs []any
}

// Add queues more documents.
func (a AddStatement) Add(docs ...any) AddStatement {
	next := a
	next.docs = append(slices.Clip(a.docs), docs...)

	return next
}

// Len returns the number of queued documents.
func (a AddStatement) Len() int {
	return len(a.docs)
}

// Execute inserts all queued documents as one unit: either every document is stored or none
// is. A document without an identifier gets a generated one. A duplicate identifier fails
// with [errors.ErrAlreadyExists].
func (a AddStatement) Execute(ctx context.Context) (*WriteResult, error) {
	c := a.coll
	s := c.sess()

	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	if len(a.docs) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "no documents specified")
	}

	res := &WriteResult{}
	docs := make([]any, len(a.docs))
	generated := make([]any, 0, len(a.docs))

	for i, raw := range a.docs {
		d, err := DocumentOf(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "document %d", i)
		}

		if _, ok := d.Get(IDField); !ok {
			id := bson.NewObjectID().Hex()
			d = NewDocument(append([]Field{{Key: IDField, Value: String(id)}}, d.Fields()...)...)
			res.GeneratedIDs = append(res.GeneratedIDs, id)
			generated = append(generated, id)
		}

		err = c.checkSize(d)
		if err != nil {
			return nil, errors.Wrapf(err, "document %d", i)
		}

		docs[i] = d.bson()
	}

	startedAt := time.Now()

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return c.insert(ctx, docs, generated)
	})
	if err != nil {
		if topo.IsDuplicateKey(err) {
			return nil, errors.WithKind(errors.Wrap(err, "add"), errors.ErrAlreadyExists)
		}

		return nil, s.fail("add", err)
	}

	res.AffectedItems = int64(len(docs))
	metrics.AddDocumentsInserted(len(docs))

	s.lg.With(log.NS(c.schema.name, c.name), log.Count(res.AffectedItems), log.Elapsed(time.Since(startedAt))).
		Debug("Documents added")

	return res, nil
}

func (c *Collection) insert(ctx context.Context, docs, generated []any) error {
	if len(docs) == 1 {
		_, err := c.coll.InsertOne(ctx, docs[0])

		return err //nolint:wrapcheck
	}

	s := c.sess()
	if s.replicaSet {
		sess, err := s.client.StartSession()
		if err != nil {
			return errors.Wrap(err, "start session")
		}
		defer sess.EndSession(ctx)

		_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
			return c.coll.InsertMany(ctx, docs)
		})

		return err //nolint:wrapcheck
	}

	_, err := c.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		c.compensate(ctx, docs, generated, err)

		return err //nolint:wrapcheck
	}

	return nil
}

// compensate deletes documents stored by a failed ordered insert. Without a transaction the
// documents before the first failed write are already stored.
func (c *Collection) compensate(ctx context.Context, docs, generated []any, insertErr error) {
	ids := generated

	var bwe mongo.BulkWriteException
	if errors.As(insertErr, &bwe) && len(bwe.WriteErrors) != 0 {
		failed := bwe.WriteErrors[0].Index
		for _, we := range bwe.WriteErrors {
			failed = min(failed, we.Index)
		}

		ids = make([]any, 0, failed)
		for _, doc := range docs[:failed] {
			ids = append(ids, idOf(doc))
		}
	}

	if len(ids) == 0 {
		return
	}

	_, err := c.coll.DeleteMany(context.WithoutCancel(ctx), bson.D{{Key: IDField, Value: bson.D{{Key: "$in", Value: ids}}}})
	if err != nil {
		c.sess().lg.With(log.NS(c.schema.name, c.name)).
			Error(err, "Failed to roll back a partially applied add")
	}
}

func idOf(doc any) any {
	d, _ := doc.(bson.D)
	for _, e := range d {
		if e.Key == IDField {
			return e.Value
		}
	}

	return nil
}

func (c *Collection) checkSize(d *Document) error {
	limit := c.sess().opts.maxDocumentSize
	if limit <= 0 {
		return nil
	}

	data, err := bson.Marshal(d.bson())
	if err != nil {
		return errors.WithKind(errors.Wrap(err, "encode"), errors.ErrInvalidArgument)
	}

	if int64(len(data)) > limit {
		return errors.Wrapf(errors.ErrInvalidArgument, "document size %s exceeds the limit of %s",
			humanize.IBytes(uint64(len(data))), humanize.IBytes(uint64(limit)))
	}

	return nil
}
