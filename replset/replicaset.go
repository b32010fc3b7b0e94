package replset

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/metrics"
	"github.com/percona/percona-docshell/topo"
	"github.com/percona/percona-docshell/util"
)

// State is the lifecycle state of a replica set.
type State string

const (
	// StateUninitialized is a created replica set without a seed instance.
	StateUninitialized State = "uninitialized"
	// StateCreated is a replica set with a seed instance only.
	StateCreated State = "created"
	// StateActive is a replica set with at least one member besides the seed.
	StateActive State = "active"
	// StateDropped is terminal.
	StateDropped State = "dropped"
)

// Role of a member.
type Role string

const (
	RoleSeed   Role = "seed"
	RoleMember Role = "member"
)

// Status is the last observed health of a member.
type Status string

const (
	StatusPending     Status = "pending"
	StatusHealthy     Status = "healthy"
	StatusUnreachable Status = "unreachable"
)

// Member is an instance of a replica set.
type Member struct {
	ID      string `bson:"id"      json:"id"`
	Host    string `bson:"host"    json:"host"`
	Port    int    `bson:"port"    json:"port"`
	Address string `bson:"address" json:"address"`
	Role    Role   `bson:"role"    json:"role"`
	Status  Status `bson:"status"  json:"status"`
	// SetName is the replica set name reported by the instance.
	SetName   string `bson:"setName,omitempty"   json:"setName,omitempty"`
	Version   string `bson:"version,omitempty"   json:"version,omitempty"`
	AddedAt   string `bson:"addedAt"             json:"addedAt"`
	CheckedAt string `bson:"checkedAt,omitempty" json:"checkedAt,omitempty"`
}

// ReplicaSet is a handle to a named replica set. Every operation reloads the replica set from
// the store, so a handle of a dropped replica set fails with [errors.ErrNotFound]. Handles are
// safe for concurrent use.
type ReplicaSet struct {
	Name string

	mgr  *Manager
	uuid string
	rec  *Record
}

// GetName returns the replica set name.
func (rs *ReplicaSet) GetName() string {
	return rs.Name
}

// Description returns the description given at creation.
func (rs *ReplicaSet) Description() string {
	return rs.rec.Description
}

// IsDefault reports whether this is the default replica set.
func (rs *ReplicaSet) IsDefault() bool {
	return rs.rec.Default
}

func (rs *ReplicaSet) load(ctx context.Context) (*Record, error) {
	rec, err := rs.mgr.store.Get(ctx, rs.Name)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrNotFound, "replica set %q", rs.Name)
		}

		return nil, err
	}

	if rec.UUID != rs.uuid {
		return nil, errors.Wrapf(errors.ErrNotFound, "replica set %q", rs.Name)
	}

	rs.rec = rec

	return rec, nil
}

func stateOf(rec *Record) State {
	switch {
	case lo.ContainsBy(rec.Members, func(m Member) bool { return m.Role == RoleMember }):
		return StateActive
	case len(rec.Members) != 0:
		return StateCreated
	}

	return StateUninitialized
}

// State returns the current state. A dropped replica set reports [StateDropped].
func (rs *ReplicaSet) State(ctx context.Context) (State, error) {
	rs.mgr.mu.Lock()
	defer rs.mgr.mu.Unlock()

	rec, err := rs.load(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return StateDropped, nil
		}

		return "", err
	}

	return stateOf(rec), nil
}

// Members returns the members, seed first.
func (rs *ReplicaSet) Members(ctx context.Context) ([]Member, error) {
	rs.mgr.mu.Lock()
	defer rs.mgr.mu.Unlock()

	rec, err := rs.load(ctx)
	if err != nil {
		return nil, err
	}

	return slices.Clone(rec.Members), nil
}

// AddSeedInstance adds the first member and establishes the authentication policy of the
// replica set. Credentials missing from the descriptor come from the administrative session.
func (rs *ReplicaSet) AddSeedInstance(ctx context.Context, args ...any) (*Member, error) {
	rs.mgr.mu.Lock()
	defer rs.mgr.mu.Unlock()

	rec, err := rs.load(ctx)
	if err != nil {
		return nil, err
	}

	d, err := parseInstanceArgs(args)
	if err != nil {
		return nil, err
	}

	adminUser, adminPassword := rs.mgr.adminCredentials()

	policy, err := newAuthPolicy(d, adminUser, adminPassword)
	if err != nil {
		return nil, err
	}

	err = d.requireHost()
	if err != nil {
		return nil, err
	}

	if len(rec.Members) != 0 {
		return nil, errors.Wrapf(errors.ErrPrecondition, "replica set %q already has a seed instance", rs.Name)
	}

	target := Target{
		Host: d.Host,
		Port: d.Port,
		Credential: topo.Credential{
			User:       policy.User,
			Password:   passwordFor(d, adminPassword),
			AuthMethod: policy.AuthMethod,
		},
	}

	member, err := rs.probeMember(ctx, target, RoleSeed)
	if err != nil {
		return nil, err
	}

	rec.Auth = policy
	rec.Members = []Member{*member}

	err = rs.save(ctx, rec, "add_seed")
	if err != nil {
		return nil, err
	}

	rs.mgr.passwords[rec.UUID] = target.Credential.Password

	return member, nil
}

// AddInstance validates the descriptor and adds a member. Malformed descriptors and
// credentials that disagree with the replica set fail with [errors.ErrInvalidArgument]
// before the instance is contacted. The replica set must have a seed instance.
func (rs *ReplicaSet) AddInstance(ctx context.Context, args ...any) (*Member, error) {
	rs.mgr.mu.Lock()
	defer rs.mgr.mu.Unlock()

	rec, err := rs.load(ctx)
	if err != nil {
		return nil, err
	}

	d, err := parseInstanceArgs(args)
	if err != nil {
		return nil, err
	}

	err = rec.Auth.check(d)
	if err != nil {
		return nil, err
	}

	err = d.requireHost()
	if err != nil {
		return nil, err
	}

	if len(rec.Members) == 0 {
		return nil, errors.Wrapf(errors.ErrPrecondition,
			"replica set %q has no seed instance; add one first", rs.Name)
	}

	if lo.ContainsBy(rec.Members, func(m Member) bool { return m.Address == d.Address() }) {
		return nil, errors.Wrapf(errors.ErrAlreadyExists, "instance %s", d.Address())
	}

	target := Target{Host: d.Host, Port: d.Port}
	if rec.Auth != nil {
		target.Credential = topo.Credential{
			User:       rec.Auth.User,
			Password:   passwordFor(d, rs.mgr.memberPassword(rec)),
			AuthMethod: rec.Auth.AuthMethod,
		}
	}

	member, err := rs.probeMember(ctx, target, RoleMember)
	if err != nil {
		return nil, err
	}

	rec.Members = append(rec.Members, *member)

	err = rs.save(ctx, rec, "add")
	if err != nil {
		return nil, err
	}

	// the policy check has verified an explicit password against the stored hash
	if rec.Auth != nil && d.hasPassword {
		rs.mgr.passwords[rec.UUID] = d.Password
	}

	return member, nil
}

// RemoveInstance removes a member identified by "host:port" or {host, port}. An unknown
// member fails with [errors.ErrNotFound]. The seed can be removed only as the last member.
func (rs *ReplicaSet) RemoveInstance(ctx context.Context, args ...any) error {
	rs.mgr.mu.Lock()
	defer rs.mgr.mu.Unlock()

	rec, err := rs.load(ctx)
	if err != nil {
		return err
	}

	d, err := parseInstanceArgs(args)
	if err != nil {
		return err
	}

	err = d.requireHost()
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(rec.Members, func(m Member) bool { return m.Address == d.Address() })
	if idx == -1 {
		return errors.Wrapf(errors.ErrNotFound, "instance %s in replica set %q", d.Address(), rs.Name)
	}

	if rec.Members[idx].Role == RoleSeed && len(rec.Members) > 1 {
		return errors.Wrapf(errors.ErrPrecondition,
			"instance %s is the seed; remove the other members first", d.Address())
	}

	rec.Members = slices.Delete(rec.Members, idx, idx+1)
	if len(rec.Members) == 0 {
		rec.Auth = nil
	}

	err = rs.save(ctx, rec, "remove")
	if err != nil {
		return err
	}

	if rec.Auth == nil {
		delete(rs.mgr.passwords, rec.UUID)
	}

	return nil
}

// Status probes every member concurrently and records the observed health.
func (rs *ReplicaSet) Status(ctx context.Context) ([]Member, error) {
	rs.mgr.mu.Lock()
	defer rs.mgr.mu.Unlock()

	rec, err := rs.load(ctx)
	if err != nil {
		return nil, err
	}

	password := rs.mgr.memberPassword(rec)

	members := slices.Clone(rec.Members)
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(maxConcurrentProbes)

	for i := range members {
		grp.Go(func() error {
			m := &members[i]

			target := Target{Host: m.Host, Port: m.Port}
			if rec.Auth != nil {
				target.Credential = topo.Credential{
					User:       rec.Auth.User,
					Password:   password,
					AuthMethod: rec.Auth.AuthMethod,
				}
			}

			res, err := rs.probe(grpCtx, target)

			m.CheckedAt = now()
			if err != nil {
				m.Status = StatusUnreachable

				rs.mgr.lg.With(log.ReplicaSet(rs.Name), log.Member(m.Address)).Warnf("Probe failed: %v", err)

				return nil
			}

			m.Status = StatusHealthy
			m.SetName = res.SetName
			m.Version = res.Version

			return nil
		})
	}

	_ = grp.Wait()

	rec.Members = members

	err = rs.mgr.store.Update(ctx, rec)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Wrapf(errors.ErrNotFound, "replica set %q", rs.Name)
		}

		return nil, errors.Wrap(err, "status")
	}

	rs.rec = rec

	return slices.Clone(members), nil
}

const maxConcurrentProbes = 8

func (rs *ReplicaSet) probe(ctx context.Context, target Target) (*ProbeResult, error) {
	var res *ProbeResult

	startedAt := time.Now()
	err := util.CtxWithTimeout(ctx, rs.mgr.probeTimeout, func(ctx context.Context) error {
		var err error
		res, err = rs.mgr.prober.Probe(ctx, target)

		return topo.Classify(ctx, err)
	})
	metrics.ObserveProbeDuration(err == nil, time.Since(startedAt))

	return res, err //nolint:wrapcheck
}

func (rs *ReplicaSet) probeMember(ctx context.Context, target Target, role Role) (*Member, error) {
	res, err := rs.probe(ctx, target)
	if err != nil {
		if !errors.Is(err, errors.ErrTimeout) && !errors.Is(err, errors.ErrConnection) {
			err = errors.WithKind(err, errors.ErrConnection)
		}

		return nil, errors.Wrapf(err, "instance %s is not reachable", target.Address())
	}

	ts := now()

	return &Member{
		ID:        uuid.NewString(),
		Host:      target.Host,
		Port:      target.Port,
		Address:   target.Address(),
		Role:      role,
		Status:    StatusHealthy,
		SetName:   res.SetName,
		Version:   res.Version,
		AddedAt:   ts,
		CheckedAt: ts,
	}, nil
}

func (rs *ReplicaSet) save(ctx context.Context, rec *Record, op string) error {
	err := rs.mgr.store.Update(ctx, rec)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.Wrapf(errors.ErrNotFound, "replica set %q", rs.Name)
		}

		return errors.Wrap(err, op)
	}

	rs.rec = rec

	metrics.IncMembershipChanges(op)
	metrics.SetReplicaSetMembers(rs.Name, len(rec.Members))
	rs.mgr.lg.With(log.ReplicaSet(rs.Name), log.Int64("members", int64(len(rec.Members)))).
		Infof("Membership changed: %s", op)

	return nil
}

func passwordFor(d Descriptor, adminPassword string) string {
	if d.hasPassword {
		return d.Password
	}

	return adminPassword
}
