package replset

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/percona/percona-docshell/docstore"
	"github.com/percona/percona-docshell/errors"
)

// MetadataCollection stores one document per replica set.
const MetadataCollection = "replica_sets"

// Record is the persisted form of a replica set.
type Record struct {
	Name        string      `bson:"_id"            json:"name"`
	UUID        string      `bson:"uuid"           json:"uuid"`
	Description string      `bson:"description"    json:"description,omitempty"`
	Default     bool        `bson:"default"        json:"default"`
	Auth        *AuthPolicy `bson:"auth,omitempty" json:"auth,omitempty"`
	Members     []Member    `bson:"members"        json:"members"`
	CreatedAt   string      `bson:"createdAt"      json:"createdAt"`
	// Revision counts the updates of the record.
	Revision int64 `bson:"revision" json:"-"`
}

// Store persists replica set records.
type Store interface {
	// Create stores a new record. A taken name fails with [errors.ErrAlreadyExists].
	Create(ctx context.Context, rec *Record) error
	// Get returns the record by name or fails with [errors.ErrNotFound].
	Get(ctx context.Context, name string) (*Record, error)
	// GetDefault returns the default record or fails with [errors.ErrNotFound].
	GetDefault(ctx context.Context) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	// Update replaces a record whose stored revision is still rec.Revision and advances
	// rec.Revision. A missing record fails with [errors.ErrNotFound]; a record changed since
	// it was read fails with [errors.ErrPrecondition].
	Update(ctx context.Context, rec *Record) error
	// Delete removes a record or fails with [errors.ErrNotFound].
	Delete(ctx context.Context, name string) error
}

// DocumentStore keeps records in a collection of the administrative session. The schema and
// collection are created on first use.
type DocumentStore struct {
	sess   *docstore.Session
	schema string

	mu   sync.Mutex
	coll *docstore.Collection
}

// NewDocumentStore returns a store in schema.replica_sets.
func NewDocumentStore(sess *docstore.Session, schema string) *DocumentStore {
	return &DocumentStore{sess: sess, schema: schema}
}

func (s *DocumentStore) collection(ctx context.Context) (*docstore.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coll != nil {
		return s.coll, nil
	}

	schema, err := s.sess.GetSchema(ctx, s.schema)
	if errors.Is(err, errors.ErrNotFound) {
		schema, err = s.sess.CreateSchema(ctx, s.schema)
		if errors.Is(err, errors.ErrAlreadyExists) {
			schema, err = s.sess.GetSchema(ctx, s.schema)
		}
	}

	if err != nil {
		return nil, errors.Wrap(err, "metadata schema")
	}

	coll, err := schema.GetCollection(ctx, MetadataCollection)
	if errors.Is(err, errors.ErrNotFound) {
		coll, err = schema.CreateCollection(ctx, MetadataCollection)
		if errors.Is(err, errors.ErrAlreadyExists) {
			coll, err = schema.GetCollection(ctx, MetadataCollection)
		}
	}

	if err != nil {
		return nil, errors.Wrap(err, "metadata collection")
	}

	s.coll = coll

	return coll, nil
}

func (s *DocumentStore) Create(ctx context.Context, rec *Record) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}

	doc, err := recordDocument(rec)
	if err != nil {
		return err
	}

	_, err = coll.Add(doc).Execute(ctx)
	if err != nil {
		return errors.Wrapf(err, "create %q", rec.Name)
	}

	return nil
}

func (s *DocumentStore) Get(ctx context.Context, name string) (*Record, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := coll.GetOne(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "get %q", name)
	}

	return decodeRecord(doc)
}

func (s *DocumentStore) GetDefault(ctx context.Context) (*Record, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Find("default = true").Limit(1).Execute(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get default")
	}

	doc, err := cur.FetchOne(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get default")
	}

	if doc == nil {
		return nil, errors.Wrap(errors.ErrNotFound, "default replica set")
	}

	return decodeRecord(doc)
}

func (s *DocumentStore) List(ctx context.Context) ([]*Record, error) {
	coll, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Find("").Sort("createdAt", "_id").Execute(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list")
	}

	docs, err := cur.FetchAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list")
	}

	recs := make([]*Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := decodeRecord(doc)
		if err != nil {
			return nil, err
		}

		recs = append(recs, rec)
	}

	return recs, nil
}

func (s *DocumentStore) Update(ctx context.Context, rec *Record) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}

	next := *rec
	next.Revision++

	doc, err := recordDocument(&next)
	if err != nil {
		return err
	}

	err = coll.ReplaceOneIf(ctx, rec.Name, map[string]any{"revision": rec.Revision}, doc)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return errors.Wrapf(err, "update %q", rec.Name)
		}

		_, getErr := coll.GetOne(ctx, rec.Name)
		if getErr == nil {
			return errors.Wrapf(errors.ErrPrecondition,
				"replica set %q was changed concurrently; retry", rec.Name)
		}

		return errors.Wrapf(err, "update %q", rec.Name)
	}

	rec.Revision = next.Revision

	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, name string) error {
	coll, err := s.collection(ctx)
	if err != nil {
		return err
	}

	res, err := coll.Remove("_id = :name").Bind("name", name).Execute(ctx)
	if err != nil {
		return errors.Wrapf(err, "delete %q", name)
	}

	if res.AffectedItems == 0 {
		return errors.Wrapf(errors.ErrNotFound, "replica set %q", name)
	}

	return nil
}

func recordDocument(rec *Record) (*docstore.Document, error) {
	data, err := bson.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}

	return docstore.DocumentOf(bson.Raw(data))
}

func decodeRecord(doc *docstore.Document) (*Record, error) {
	var rec Record

	err := doc.Decode(&rec)
	if err != nil {
		return nil, errors.Wrap(err, "decode record")
	}

	return &rec, nil
}
