// Package replset manages named replica sets and their member instances. Membership is kept
// in a metadata store; candidate members are validated and probed before they are added.
package replset

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/percona/percona-docshell/config"
	"github.com/percona/percona-docshell/docstore"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/metrics"
	"github.com/percona/percona-docshell/validate"
)

// Manager creates, resolves and drops replica sets. It is safe for concurrent use: membership
// changes of one manager are serialized.
type Manager struct {
	// mu serializes store access and membership changes
	mu sync.Mutex

	admin          *docstore.Session
	store          Store
	prober         Prober
	probeTimeout   time.Duration
	metadataSchema string
	lg             log.Logger

	// passwords holds the member password of each replica set by uuid. The store keeps only
	// a hash, so entries exist for replica sets seeded or extended by this manager.
	passwords map[string]string
}

// Option configures a [Manager].
type Option func(*Manager)

// WithStore replaces the metadata store.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithProber replaces the reachability prober.
func WithProber(p Prober) Option {
	return func(m *Manager) { m.prober = p }
}

// WithProbeTimeout bounds each reachability probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(m *Manager) { m.probeTimeout = d }
}

// WithMetadataSchema sets the schema of the default metadata store.
func WithMetadataSchema(name string) Option {
	return func(m *Manager) { m.metadataSchema = name }
}

// NewManager returns a manager operating through the administrative session admin.
func NewManager(admin *docstore.Session, opts ...Option) *Manager {
	m := &Manager{
		admin:          admin,
		probeTimeout:   config.DefaultProbeTimeout,
		metadataSchema: config.DefaultMetadataSchema,
		lg:             log.New("replset"),
		passwords:      make(map[string]string),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.store == nil {
		m.store = NewDocumentStore(admin, m.metadataSchema)
	}

	if m.prober == nil {
		m.prober = NewMongoProber(m.probeTimeout)
	}

	return m
}

// CreateReplicaSet registers a new replica set. The first replica set in the store becomes
// the default one. A taken name fails with [errors.ErrAlreadyExists].
func (m *Manager) CreateReplicaSet(ctx context.Context, name, description string) (*ReplicaSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := validate.Var(name, "nsname")
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidArgument, "replica set name %q", name)
	}

	isDefault := false

	_, err = m.store.GetDefault(ctx)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		isDefault = true
	case err != nil:
		return nil, errors.Wrap(err, "create replica set")
	}

	rec := &Record{
		Name:        name,
		UUID:        uuid.NewString(),
		Description: description,
		Default:     isDefault,
		CreatedAt:   now(),
	}

	err = m.store.Create(ctx, rec)
	if err != nil {
		if errors.Is(err, errors.ErrAlreadyExists) {
			return nil, errors.Wrapf(errors.ErrAlreadyExists, "replica set %q", name)
		}

		return nil, errors.Wrap(err, "create replica set")
	}

	metrics.SetReplicaSetMembers(name, 0)
	m.lg.With(log.ReplicaSet(name)).Infof("Replica set created (default: %t)", isDefault)

	return m.handle(rec), nil
}

// GetReplicaSet resolves a replica set by name. An empty name resolves the default one.
func (m *Manager) GetReplicaSet(ctx context.Context, name string) (*ReplicaSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getReplicaSet(ctx, name)
}

func (m *Manager) getReplicaSet(ctx context.Context, name string) (*ReplicaSet, error) {
	var rec *Record
	var err error

	if name == "" {
		rec, err = m.store.GetDefault(ctx)
	} else {
		rec, err = m.store.Get(ctx, name)
	}

	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			if name == "" {
				return nil, errors.Wrap(errors.ErrNotFound, "default replica set")
			}

			return nil, errors.Wrapf(errors.ErrNotFound, "replica set %q", name)
		}

		return nil, errors.Wrap(err, "get replica set")
	}

	return m.handle(rec), nil
}

// ListReplicaSets returns all replica sets in creation order.
func (m *Manager) ListReplicaSets(ctx context.Context) ([]*ReplicaSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recs, err := m.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list replica sets")
	}

	sets := make([]*ReplicaSet, len(recs))
	for i, rec := range recs {
		sets[i] = m.handle(rec)
	}

	return sets, nil
}

// DropOptions controls [Manager.DropReplicaSet].
type DropOptions struct {
	// DropDefault acknowledges dropping the default replica set.
	DropDefault bool `json:"dropDefault"`
}

// DropReplicaSet removes a replica set. Dropping the default one without
// [DropOptions.DropDefault] fails with [errors.ErrConfirmationRequired]. Handles of a dropped
// replica set fail with [errors.ErrNotFound] afterwards.
func (m *Manager) DropReplicaSet(ctx context.Context, name string, opts DropOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rs, err := m.getReplicaSet(ctx, name)
	if err != nil {
		return err
	}

	if rs.rec.Default && !opts.DropDefault {
		return errors.Wrapf(errors.ErrConfirmationRequired,
			"replica set %q is the default one; set dropDefault to drop it", rs.Name)
	}

	err = m.store.Delete(ctx, rs.Name)
	if err != nil {
		return errors.Wrap(err, "drop replica set")
	}

	delete(m.passwords, rs.uuid)
	metrics.DeleteReplicaSet(rs.Name)
	m.lg.With(log.ReplicaSet(rs.Name)).Info("Replica set dropped")

	return nil
}

func (m *Manager) handle(rec *Record) *ReplicaSet {
	return &ReplicaSet{
		Name: rec.Name,
		mgr:  m,
		uuid: rec.UUID,
		rec:  rec,
	}
}

// adminCredentials returns the credentials of the administrative session.
func (m *Manager) adminCredentials() (string, string) {
	if m.admin == nil {
		return "", ""
	}

	ep := m.admin.Endpoint()

	return ep.User, ep.Password
}

// memberPassword returns the password members of rec are probed with: the one the replica set
// was seeded with when known, else the one of the administrative session.
func (m *Manager) memberPassword(rec *Record) string {
	if password, ok := m.passwords[rec.UUID]; ok {
		return password
	}

	_, adminPassword := m.adminCredentials()

	return adminPassword
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
