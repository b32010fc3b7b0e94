// Package docstore is a document collection client. A [Session] connects to a MongoDB
// endpoint, resolves schemas (databases) and collections, and issues add, find and remove
// operations that return lazily materialized results.
//
// A [Session] and the schemas and collections it resolves are safe for concurrent use.
// Statement builders are values; a [ResultCursor] belongs to one goroutine.
package docstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/percona/percona-docshell/config"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/metrics"
	"github.com/percona/percona-docshell/sel"
	"github.com/percona/percona-docshell/topo"
	"github.com/percona/percona-docshell/util"
	"github.com/percona/percona-docshell/validate"
)

type sessionOptions struct {
	connectTimeout   time.Duration
	operationTimeout time.Duration
	maxDocumentSize  int64
	filter           *sel.Filter
}

// Option configures a [Session].
type Option func(*sessionOptions)

// WithConnectTimeout bounds dialing and the initial ping.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.connectTimeout = d }
}

// WithOperationTimeout bounds every server round trip. Zero disables the limit.
func WithOperationTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.operationTimeout = d }
}

// WithMaxDocumentSize caps the encoded size of added documents.
func WithMaxDocumentSize(n int64) Option {
	return func(o *sessionOptions) { o.maxDocumentSize = n }
}

// WithNamespaceFilter restricts the schemas and collections the session can resolve.
func WithNamespaceFilter(f *sel.Filter) Option {
	return func(o *sessionOptions) { o.filter = f }
}

// Session is a connection to a database endpoint.
type Session struct {
	endpoint EndpointConfig
	client   *mongo.Client
	opts     sessionOptions
	lg       log.Logger

	replicaSet bool
	closed     atomic.Bool

	// schemas registered by CreateSchema that hold no collection yet
	pending   map[string]struct{}
	pendingMu sync.Mutex
}

// ConnectMap parses an option map with [ParseEndpoint] and connects.
func ConnectMap(ctx context.Context, endpoint map[string]any, opts ...Option) (*Session, error) {
	cfg, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	return Connect(ctx, cfg, opts...)
}

// Connect validates cfg and opens a session. Invalid configuration fails with
// [errors.ErrInvalidArgument] before any network contact.
func Connect(ctx context.Context, cfg EndpointConfig, opts ...Option) (*Session, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	o := sessionOptions{
		connectTimeout:   config.DefaultConnectTimeout,
		operationTimeout: config.DefaultMongoDBOperationTimeout,
		maxDocumentSize:  config.DefaultMaxDocumentSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	lg := log.New("docstore").With(log.Str("endpoint", cfg.Address()))
	startedAt := time.Now()

	client, err := topo.Connect(ctx, cfg.Address(), &topo.ConnectOptions{
		Credential: topo.Credential{User: cfg.User, Password: cfg.Password},
		Timeout:    o.connectTimeout,
	})
	if err != nil {
		metrics.IncOperationErrors("connect")

		return nil, errors.Wrapf(err, "connect to %s", cfg.Address())
	}

	s := &Session{
		endpoint: cfg,
		client:   client,
		opts:     o,
		lg:       lg,
		pending:  make(map[string]struct{}),
	}

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		hello, err := topo.Hello(ctx, client)
		if err != nil {
			return err
		}

		s.replicaSet = hello.IsReplicaSet()

		return nil
	})
	if err != nil {
		_ = client.Disconnect(context.Background())

		return nil, errors.Wrapf(err, "connect to %s", cfg.Address())
	}

	lg.InfoWith("Connected", log.Elapsed(time.Since(startedAt)))

	return s, nil
}

// Endpoint returns the endpoint configuration of the session.
func (s *Session) Endpoint() EndpointConfig {
	return s.endpoint
}

// IsReplicaSet reports whether the server is a replica set member. Multi-document adds run in
// a transaction on replica sets.
func (s *Session) IsReplicaSet() bool {
	return s.replicaSet
}

// IsOpen reports whether Close has not been called.
func (s *Session) IsOpen() bool {
	return !s.closed.Load()
}

// Ping performs a no-op round trip.
func (s *Session) Ping(ctx context.Context) error {
	err := s.checkOpen()
	if err != nil {
		return err
	}

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		_, err := topo.Hello(ctx, s.client)

		return err
	})

	return s.fail("ping", err)
}

// Close disconnects the session. Any later operation fails with [errors.ErrConnectionClosed].
// Closing a closed session is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}

	err := util.CtxWithTimeout(ctx, config.DisconnectTimeout, s.client.Disconnect)
	if err != nil {
		return errors.Wrap(err, "disconnect")
	}

	s.lg.Debug("Disconnected")

	return nil
}

// GetSchema resolves an existing schema. It never creates one: a missing or hidden schema
// fails with [errors.ErrNotFound].
func (s *Session) GetSchema(ctx context.Context, name string) (*Schema, error) {
	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	if !s.visibleSchema(name) {
		return nil, errors.Wrapf(errors.ErrNotFound, "schema %q", name)
	}

	if s.isPending(name) {
		return &Schema{sess: s, name: name}, nil
	}

	var exists bool

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		exists, err = topo.IsDatabaseExists(ctx, s.client, name)

		return err
	})
	if err != nil {
		return nil, s.fail("get schema", err)
	}

	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "schema %q", name)
	}

	return &Schema{sess: s, name: name}, nil
}

// CreateSchema registers a new schema. The server materializes it together with its first
// collection. An existing schema fails with [errors.ErrAlreadyExists].
func (s *Session) CreateSchema(ctx context.Context, name string) (*Schema, error) {
	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	err = validateName("schema", name)
	if err != nil {
		return nil, err
	}

	if !s.visibleSchema(name) {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "schema %q is reserved", name)
	}

	if s.isPending(name) {
		return nil, errors.Wrapf(errors.ErrAlreadyExists, "schema %q", name)
	}

	var exists bool

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		exists, err = topo.IsDatabaseExists(ctx, s.client, name)

		return err
	})
	if err != nil {
		return nil, s.fail("create schema", err)
	}

	if exists {
		return nil, errors.Wrapf(errors.ErrAlreadyExists, "schema %q", name)
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if _, ok := s.pending[name]; ok {
		return nil, errors.Wrapf(errors.ErrAlreadyExists, "schema %q", name)
	}

	s.pending[name] = struct{}{}

	return &Schema{sess: s, name: name}, nil
}

// ListSchemas returns the names of visible schemas in lexical order.
func (s *Session) ListSchemas(ctx context.Context) ([]string, error) {
	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	var names []string

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		names, err = topo.ListDatabaseNames(ctx, s.client)

		return err
	})
	if err != nil {
		return nil, s.fail("list schemas", err)
	}

	s.pendingMu.Lock()
	for name := range s.pending {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	s.pendingMu.Unlock()

	names = slices.DeleteFunc(names, func(name string) bool { return !s.visibleSchema(name) })
	sort.Strings(names)

	return names, nil
}

// DropSchema drops a schema and all of its collections.
func (s *Session) DropSchema(ctx context.Context, name string) error {
	schema, err := s.GetSchema(ctx, name)
	if err != nil {
		return err
	}

	if s.unsetPending(name) {
		return nil
	}

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return topo.DropDatabase(ctx, s.client, schema.name)
	})
	if err != nil {
		return s.fail("drop schema", err)
	}

	s.lg.Infof("Schema %q dropped", name)

	return nil
}

// DropCollection drops schema.collection. A missing schema or collection fails with
// [errors.ErrNotFound].
func (s *Session) DropCollection(ctx context.Context, schema, collection string) error {
	sc, err := s.GetSchema(ctx, schema)
	if err != nil {
		return err
	}

	if !s.visibleCollection(schema, collection) {
		return errors.Wrapf(errors.ErrNotFound, "collection %s.%s", schema, collection)
	}

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return topo.DropCollection(ctx, s.client, sc.name, collection)
	})
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.Wrapf(errors.ErrNotFound, "collection %s.%s", schema, collection)
		}

		return s.fail("drop collection", err)
	}

	s.lg.InfoWith("Collection dropped", log.NS(schema, collection))

	return nil
}

func (s *Session) isPending(name string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	_, ok := s.pending[name]

	return ok
}

// unsetPending forgets a pending schema and reports whether it was pending.
func (s *Session) unsetPending(name string) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	_, ok := s.pending[name]
	delete(s.pending, name)

	return ok
}

func (s *Session) checkOpen() error {
	if s == nil || s.closed.Load() {
		return errors.ErrConnectionClosed
	}

	return nil
}

func (s *Session) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	return util.CtxWithTimeout(ctx, s.opts.operationTimeout, func(ctx context.Context) error {
		return topo.Classify(ctx, fn(ctx))
	})
}

// fail counts and classifies a failed operation. It returns nil for a nil err.
func (s *Session) fail(op string, err error) error {
	if err == nil {
		return nil
	}

	metrics.IncOperationErrors(op)

	if s.closed.Load() {
		return errors.WithKind(errors.Wrap(err, op), errors.ErrConnectionClosed)
	}

	return errors.Wrap(err, op)
}

func (s *Session) visibleSchema(name string) bool {
	return s.opts.filter.AllowSchema(name)
}

func (s *Session) visibleCollection(schema, coll string) bool {
	return s.opts.filter.Allow(schema, coll)
}

func validateName(kind, name string) error {
	tag := "nsname"
	if kind == "collection" {
		tag = "collname"
	}

	err := validate.Var(name, tag)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidArgument, "%s name %q", kind, name)
	}

	return nil
}
