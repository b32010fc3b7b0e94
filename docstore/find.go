package docstore

import (
	"context"
	"maps"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/expr"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/metrics"
)

// query holds the state shared by find and remove builders. Builders copy it on every
// change, so a shared builder value is never mutated.
type query struct {
	expr     string
	bindings map[string]any
	limit    int64
	hasLimit bool
}

func (q query) bind(name string, v any) query {
	next := q
	next.bindings = make(map[string]any, len(q.bindings)+1)
	maps.Copy(next.bindings, q.bindings)
	next.bindings[name] = v

	return next
}

func (q query) withLimit(n int64) query {
	next := q
	next.limit = n
	next.hasLimit = true

	return next
}

// filter parses the expression and resolves the bindings.
func (q query) filter() (bson.D, error) {
	e, err := expr.Parse(q.expr)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	bindings := make(map[string]any, len(q.bindings))
	for name, raw := range q.bindings {
		v, err := ValueOf(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "bind %q", name)
		}

		bindings[name] = v.Interface()
	}

	f, err := e.Filter(bindings)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	if q.hasLimit && q.limit < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "limit must be non-negative, got %d", q.limit)
	}

	return f, nil
}

// FindBuilder describes a query. Every method returns a new builder.
type FindBuilder struct {
	coll   *Collection
	q      query
	offset int64
	sort   []string
}

// Bind sets the value of placeholder :name.
func (b FindBuilder) Bind(name string, v any) FindBuilder {
	b.q = b.q.bind(name, v)

	return b
}

// Limit caps the number of returned documents. n must be non-negative.
func (b FindBuilder) Limit(n int64) FindBuilder {
	b.q = b.q.withLimit(n)

	return b
}

// Offset skips the first n matching documents.
func (b FindBuilder) Offset(n int64) FindBuilder {
	b.offset = n

	return b
}

// Sort orders the results. Each spec is a field path optionally followed by ASC or DESC.
// Without a sort the order is unspecified.
func (b FindBuilder) Sort(specs ...string) FindBuilder {
	b.sort = append(append([]string(nil), b.sort...), specs...)

	return b
}

// Expression returns the filter expression text.
func (b FindBuilder) Expression() string {
	return b.q.expr
}

// Execute runs the query and returns a cursor over the matching documents. Executing the same
// builder again runs the query again.
func (b FindBuilder) Execute(ctx context.Context) (*ResultCursor, error) {
	c := b.coll
	s := c.sess()

	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	filter, err := b.q.filter()
	if err != nil {
		return nil, err
	}

	if b.offset < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "offset must be non-negative, got %d", b.offset)
	}

	sortSpec, err := parseSort(b.sort)
	if err != nil {
		return nil, err
	}

	metrics.IncFindExecutions()

	if b.q.hasLimit && b.q.limit == 0 {
		return &ResultCursor{sess: s, done: true}, nil
	}

	opts := options.Find().SetSkip(b.offset)
	if b.q.hasLimit {
		opts.SetLimit(b.q.limit)
	}

	if len(sortSpec) != 0 {
		opts.SetSort(sortSpec)
	}

	lg := s.lg.With(log.NS(c.schema.name, c.name))
	startedAt := time.Now()

	var cur *mongo.Cursor

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		cur, err = c.coll.Find(ctx, filter, opts)

		return err
	})
	if err != nil {
		return nil, s.fail("find", err)
	}

	lg.With(log.Elapsed(time.Since(startedAt))).Tracef("Find %q", b.q.expr)

	return &ResultCursor{sess: s, cur: cur}, nil
}

func parseSort(specs []string) (bson.D, error) {
	var sortSpec bson.D

	for _, spec := range specs {
		parts := strings.Fields(spec)

		switch {
		case len(parts) == 1:
			sortSpec = append(sortSpec, bson.E{Key: parts[0], Value: 1})
		case len(parts) == 2 && strings.EqualFold(parts[1], "ASC"):
			sortSpec = append(sortSpec, bson.E{Key: parts[0], Value: 1})
		case len(parts) == 2 && strings.EqualFold(parts[1], "DESC"):
			sortSpec = append(sortSpec, bson.E{Key: parts[0], Value: -1})
		default:
			return nil, errors.Wrapf(errors.ErrInvalidArgument, "invalid sort %q", spec)
		}
	}

	return sortSpec, nil
}

// RemoveBuilder describes a delete. Every method returns a new builder.
type RemoveBuilder struct {
	coll *Collection
	q    query
}

// Bind sets the value of placeholder :name.
func (b RemoveBuilder) Bind(name string, v any) RemoveBuilder {
	b.q = b.q.bind(name, v)

	return b
}

// Limit caps the number of deleted documents.
func (b RemoveBuilder) Limit(n int64) RemoveBuilder {
	b.q = b.q.withLimit(n)

	return b
}

// Execute deletes the matching documents. The expression must not be empty.
func (b RemoveBuilder) Execute(ctx context.Context) (*WriteResult, error) {
	c := b.coll
	s := c.sess()

	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(b.q.expr) == "" {
		return nil, errors.Wrap(errors.ErrInvalidArgument, "remove requires a filter expression")
	}

	filter, err := b.q.filter()
	if err != nil {
		return nil, err
	}

	if b.q.hasLimit && b.q.limit == 0 {
		return &WriteResult{}, nil
	}

	var deleted int64

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		if b.q.hasLimit {
			ids, err := c.matchingIDs(ctx, filter, b.q.limit)
			if err != nil {
				return err
			}

			if len(ids) == 0 {
				return nil
			}

			filter = bson.D{{Key: IDField, Value: bson.D{{Key: "$in", Value: ids}}}}
		}

		res, err := c.coll.DeleteMany(ctx, filter)
		if err != nil {
			return err //nolint:wrapcheck
		}

		deleted = res.DeletedCount

		return nil
	})
	if err != nil {
		return nil, s.fail("remove", err)
	}

	metrics.AddDocumentsRemoved(deleted)
	s.lg.With(log.NS(c.schema.name, c.name), log.Count(deleted)).Debug("Documents removed")

	return &WriteResult{AffectedItems: deleted}, nil
}

func (c *Collection) matchingIDs(ctx context.Context, filter bson.D, limit int64) ([]any, error) {
	opts := options.Find().SetProjection(bson.D{{Key: IDField, Value: 1}}).SetLimit(limit)

	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	var docs []bson.D

	err = cur.All(ctx, &docs)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	ids := make([]any, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, idOf(doc))
	}

	return ids, nil
}
