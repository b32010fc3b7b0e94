package main

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/percona/percona-docshell/config"
	"github.com/percona/percona-docshell/docstore"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/sel"
	"github.com/percona/percona-docshell/util"
)

// shell runs document commands on a session and prints the results as JSON.
type shell struct {
	sess *docstore.Session
	out  io.Writer
}

// queryArgs holds the find and remove flags.
type queryArgs struct {
	Expr     string
	Bindings map[string]any
	Limit    int64
	Offset   int64
	Sort     []string
}

// withSession connects to the configured endpoint, runs fn and closes the session.
func withSession(cmd *cobra.Command, fn func(context.Context, *shell) error) error {
	ctx := cmd.Context()
	cfg := configFrom(cmd)

	err := config.ValidateEndpoint(&cfg.Endpoint)
	if err != nil {
		return errors.Wrap(err, "endpoint")
	}

	sess, err := docstore.Connect(ctx,
		docstore.EndpointFromConfig(&cfg.Endpoint),
		sessionOptions(cfg, cfg.Store.MetadataSchema)...)
	if err != nil {
		return err //nolint:wrapcheck
	}

	defer func() {
		err := util.CtxWithTimeout(ctx, config.DisconnectTimeout, sess.Close)
		if err != nil {
			log.Ctx(ctx).Warn("Disconnect: " + err.Error())
		}
	}()

	return fn(ctx, &shell{sess: sess, out: cmd.OutOrStdout()})
}

// sessionOptions maps the configuration to session options. Schemas in hidden are not
// visible to the session.
func sessionOptions(cfg *config.Config, hidden ...string) []docstore.Option {
	opts := []docstore.Option{
		docstore.WithMaxDocumentSize(cfg.Store.MaxDocumentSizeBytes()),
		docstore.WithNamespaceFilter(sel.New(
			cfg.Store.IncludeNamespaces,
			cfg.Store.ExcludeNamespaces,
			hidden...)),
	}

	if cfg.MongoDB.ConnectTimeout > 0 {
		opts = append(opts, docstore.WithConnectTimeout(cfg.MongoDB.ConnectTimeout))
	}

	if cfg.MongoDB.OperationTimeout > 0 {
		opts = append(opts, docstore.WithOperationTimeout(cfg.MongoDB.OperationTimeout))
	}

	return opts
}

// queryFlags reads the expression argument and the --bind and --limit flags.
func queryFlags(cmd *cobra.Command, args []string) (queryArgs, error) {
	q := queryArgs{
		Bindings: make(map[string]any),
		Limit:    -1,
	}

	if len(args) > 2 {
		q.Expr = args[2]
	}

	q.Limit, _ = cmd.Flags().GetInt64("limit")

	binds, _ := cmd.Flags().GetStringArray("bind")
	for _, b := range binds {
		name, value, ok := strings.Cut(b, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), ":")

		if !ok || name == "" {
			return q, errors.Wrapf(errors.ErrInvalidArgument, "bind %q: expected name=value", b)
		}

		q.Bindings[name] = parseBindValue(value)
	}

	return q, nil
}

// parseBindValue converts a command line value. Quoted values are strings, "null", "true"
// and "false" are literals and numbers are parsed as int64 or float64.
func parseBindValue(s string) any {
	if len(s) >= 2 {
		if q := s[0]; (q == '\'' || q == '"') && s[len(s)-1] == q {
			return s[1 : len(s)-1]
		}
	}

	switch s {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}

	if i, err := cast.ToInt64E(s); err == nil {
		return i
	}

	if f, err := cast.ToFloat64E(s); err == nil {
		return f
	}

	return s
}

func (sh *shell) print(v any) error {
	enc := json.NewEncoder(sh.out)
	enc.SetIndent("", "  ")

	return errors.Wrap(enc.Encode(v), "print")
}

func (sh *shell) Ping(ctx context.Context) error {
	err := sh.sess.Ping(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return sh.print(map[string]any{
		"ok":         true,
		"endpoint":   sh.sess.Endpoint().Address(),
		"replicaSet": sh.sess.IsReplicaSet(),
	})
}

func (sh *shell) Schemas(ctx context.Context) error {
	names, err := sh.sess.ListSchemas(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return sh.print(names)
}

// schema resolves a schema, creating it when create is set.
func (sh *shell) schema(ctx context.Context, name string, create bool) (*docstore.Schema, error) {
	schema, err := sh.sess.GetSchema(ctx, name)
	if err == nil || !create || !errors.Is(err, errors.ErrNotFound) {
		return schema, err //nolint:wrapcheck
	}

	return sh.sess.CreateSchema(ctx, name) //nolint:wrapcheck
}

func (sh *shell) collection(ctx context.Context, schema, name string) (*docstore.Collection, error) {
	sc, err := sh.schema(ctx, schema, false)
	if err != nil {
		return nil, err
	}

	return sc.GetCollection(ctx, name) //nolint:wrapcheck
}

func (sh *shell) CreateCollection(ctx context.Context, schema, name string) error {
	sc, err := sh.schema(ctx, schema, true)
	if err != nil {
		return err
	}

	coll, err := sc.CreateCollection(ctx, name)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return sh.print(map[string]any{"ok": true, "schema": sc.Name(), "collection": coll.Name()})
}

func (sh *shell) DropCollection(ctx context.Context, schema, name string) error {
	err := sh.sess.DropCollection(ctx, schema, name)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return sh.print(map[string]any{"ok": true})
}

func (sh *shell) Add(ctx context.Context, schema, name string, docs []string) error {
	coll, err := sh.collection(ctx, schema, name)
	if err != nil {
		return err
	}

	stmt := coll.Add()
	for _, doc := range docs {
		stmt = stmt.Add(doc)
	}

	res, err := stmt.Execute(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return sh.print(res)
}

func (sh *shell) Find(ctx context.Context, schema, name string, q queryArgs) error {
	coll, err := sh.collection(ctx, schema, name)
	if err != nil {
		return err
	}

	b := coll.Find(q.Expr).Offset(q.Offset)
	for k, v := range q.Bindings {
		b = b.Bind(k, v)
	}

	if q.Limit >= 0 {
		b = b.Limit(q.Limit)
	}

	if len(q.Sort) != 0 {
		b = b.Sort(q.Sort...)
	}

	cur, err := b.Execute(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	defer cur.Close(ctx) //nolint:errcheck

	for {
		doc, err := cur.FetchOne(ctx)
		if err != nil {
			return err //nolint:wrapcheck
		}

		if doc == nil {
			break
		}

		err = sh.print(doc)
		if err != nil {
			return err
		}
	}

	log.Ctx(ctx).Debugf("Fetched %d documents", cur.Fetched())

	return nil
}

func (sh *shell) Remove(ctx context.Context, schema, name string, q queryArgs) error {
	coll, err := sh.collection(ctx, schema, name)
	if err != nil {
		return err
	}

	b := coll.Remove(q.Expr)
	for k, v := range q.Bindings {
		b = b.Bind(k, v)
	}

	if q.Limit >= 0 {
		b = b.Limit(q.Limit)
	}

	res, err := b.Execute(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	return sh.print(res)
}
