package docstore

import (
	"context"
	"sort"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/topo"
)

// Schema is a named namespace of collections.
type Schema struct {
	sess *Session
	name string
}

func (sc *Schema) Name() string {
	return sc.name
}

func (sc *Schema) Session() *Session {
	return sc.sess
}

// CreateCollection creates a collection. An existing one fails with [errors.ErrAlreadyExists].
func (sc *Schema) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	s := sc.sess

	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	err = validateName("collection", name)
	if err != nil {
		return nil, err
	}

	if !s.visibleCollection(sc.name, name) {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "collection %s.%s is not allowed", sc.name, name)
	}

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return topo.CreateCollection(ctx, s.client, sc.name, name)
	})
	if err != nil {
		if errors.Is(err, errors.ErrAlreadyExists) {
			return nil, errors.Wrapf(errors.ErrAlreadyExists, "collection %s.%s", sc.name, name)
		}

		return nil, s.fail("create collection", err)
	}

	s.unsetPending(sc.name)
	s.lg.InfoWith("Collection created", log.NS(sc.name, name))

	return sc.collection(name), nil
}

// GetCollection resolves an existing collection or fails with [errors.ErrNotFound].
func (sc *Schema) GetCollection(ctx context.Context, name string) (*Collection, error) {
	s := sc.sess

	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	if !s.visibleCollection(sc.name, name) {
		return nil, errors.Wrapf(errors.ErrNotFound, "collection %s.%s", sc.name, name)
	}

	var exists bool

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		exists, err = topo.IsCollectionExists(ctx, s.client, sc.name, name)

		return err
	})
	if err != nil {
		return nil, s.fail("get collection", err)
	}

	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "collection %s.%s", sc.name, name)
	}

	return sc.collection(name), nil
}

// GetCollections returns the visible collections ordered by name.
func (sc *Schema) GetCollections(ctx context.Context) ([]*Collection, error) {
	s := sc.sess

	err := s.checkOpen()
	if err != nil {
		return nil, err
	}

	var names []string

	err = s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		names, err = topo.ListCollectionNames(ctx, s.client, sc.name)

		return err
	})
	if err != nil {
		return nil, s.fail("get collections", err)
	}

	sort.Strings(names)

	colls := make([]*Collection, 0, len(names))
	for _, name := range names {
		if s.visibleCollection(sc.name, name) {
			colls = append(colls, sc.collection(name))
		}
	}

	return colls, nil
}

// DropCollection drops a collection of this schema.
func (sc *Schema) DropCollection(ctx context.Context, name string) error {
	return sc.sess.DropCollection(ctx, sc.name, name)
}

func (sc *Schema) collection(name string) *Collection {
	return &Collection{
		schema: sc,
		name:   name,
		coll:   sc.sess.client.Database(sc.name).Collection(name),
	}
}
