package topo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/percona/percona-docshell/errors"
)

// ListDatabaseNames returns the names of all databases on the server.
func ListDatabaseNames(ctx context.Context, m *mongo.Client) ([]string, error) {
	names, err := m.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(Classify(ctx, err), "listDatabases")
	}

	return names, nil
}

// ListCollectionNames returns the names of the collections in db. Views are excluded.
func ListCollectionNames(ctx context.Context, m *mongo.Client, db string) ([]string, error) {
	names, err := m.Database(db).ListCollectionNames(ctx, bson.D{{Key: "type", Value: "collection"}})
	if err != nil {
		return nil, errors.Wrap(Classify(ctx, err), "listCollections")
	}

	return names, nil
}

// IsDatabaseExists reports whether db holds at least one collection.
func IsDatabaseExists(ctx context.Context, m *mongo.Client, db string) (bool, error) {
	names, err := ListDatabaseNames(ctx, m)
	if err != nil {
		return false, err
	}

	for _, name := range names {
		if name == db {
			return true, nil
		}
	}

	return false, nil
}

// IsCollectionExists reports whether db.coll exists.
func IsCollectionExists(ctx context.Context, m *mongo.Client, db, coll string) (bool, error) {
	names, err := m.Database(db).ListCollectionNames(ctx, bson.D{{Key: "name", Value: coll}})
	if err != nil {
		return false, errors.Wrap(Classify(ctx, err), "listCollections")
	}

	return len(names) != 0, nil
}

// CreateCollection creates db.coll. An existing namespace yields [errors.ErrAlreadyExists].
func CreateCollection(ctx context.Context, m *mongo.Client, db, coll string) error {
	err := m.Database(db).CreateCollection(ctx, coll)
	if err != nil {
		if IsNamespaceExists(err) {
			return errors.WithKind(err, errors.ErrAlreadyExists)
		}

		return errors.Wrap(Classify(ctx, err), "create")
	}

	return nil
}

// DropCollection drops db.coll. A missing namespace yields [errors.ErrNotFound].
func DropCollection(ctx context.Context, m *mongo.Client, db, coll string) error {
	exists, err := IsCollectionExists(ctx, m, db, coll)
	if err != nil {
		return err
	}

	if !exists {
		return errors.WithKind(errors.Errorf("ns %s.%s", db, coll), errors.ErrNotFound)
	}

	err = m.Database(db).Collection(coll).Drop(ctx)
	if err != nil {
		return errors.Wrap(Classify(ctx, err), "drop")
	}

	return nil
}

// DropDatabase drops db.
func DropDatabase(ctx context.Context, m *mongo.Client, db string) error {
	err := m.Database(db).Drop(ctx)
	if err != nil {
		return errors.Wrap(Classify(ctx, err), "dropDatabase")
	}

	return nil
}
