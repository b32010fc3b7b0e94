package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/metrics"
)

// ResultCursor is a lazy, forward-only sequence of documents. It cannot be restarted: execute
// the builder again to read the results anew.
type ResultCursor struct {
	sess    *Session
	cur     *mongo.Cursor
	done    bool
	fetched int64
}

// FetchOne returns the next document. An exhausted cursor returns nil and no error on this and
// every later call.
func (r *ResultCursor) FetchOne(ctx context.Context) (*Document, error) {
	err := r.sess.checkOpen()
	if err != nil {
		return nil, err
	}

	if r.done {
		return nil, nil //nolint:nilnil
	}

	var raw bson.D

	err = r.sess.withTimeout(ctx, func(ctx context.Context) error {
		if !r.cur.Next(ctx) {
			r.done = true

			return r.cur.Err() //nolint:wrapcheck
		}

		return r.cur.Decode(&raw) //nolint:wrapcheck
	})
	if err != nil {
		r.done = true
		_ = r.cur.Close(context.Background())

		return nil, r.sess.fail("fetch", err)
	}

	if r.done {
		_ = r.cur.Close(ctx)

		return nil, nil //nolint:nilnil
	}

	doc, err := DocumentOf(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}

	r.fetched++
	metrics.IncDocumentsFetched()

	return doc, nil
}

// FetchAll returns the remaining documents.
func (r *ResultCursor) FetchAll(ctx context.Context) ([]*Document, error) {
	var docs []*Document

	for {
		doc, err := r.FetchOne(ctx)
		if err != nil {
			return docs, err
		}

		if doc == nil {
			return docs, nil
		}

		docs = append(docs, doc)
	}
}

// Fetched returns the number of documents read so far.
func (r *ResultCursor) Fetched() int64 {
	return r.fetched
}

// Close releases the server cursor. Later fetches return the end of results.
func (r *ResultCursor) Close(ctx context.Context) error {
	if r.done {
		return nil
	}

	r.done = true

	if r.cur == nil {
		return nil
	}

	return errors.Wrap(r.cur.Close(ctx), "close cursor")
}
