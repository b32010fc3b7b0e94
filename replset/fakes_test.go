package replset

import (
	"context"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/percona/percona-docshell/errors"
)

func TestMain(m *testing.M) {
	bcryptCost = bcrypt.MinCost

	os.Exit(m.Run())
}

// memStore is an in-memory Store.
type memStore struct {
	mu    sync.Mutex
	order []string
	recs  map[string]*Record
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*Record)}
}

func copyRecord(rec *Record) *Record {
	c := *rec
	c.Members = slices.Clone(rec.Members)

	if rec.Auth != nil {
		auth := *rec.Auth
		c.Auth = &auth
	}

	return &c
}

func (s *memStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[rec.Name]; ok {
		return errors.ErrAlreadyExists
	}

	s.recs[rec.Name] = copyRecord(rec)
	s.order = append(s.order, rec.Name)

	return nil
}

func (s *memStore) Get(_ context.Context, name string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[name]
	if !ok {
		return nil, errors.ErrNotFound
	}

	return copyRecord(rec), nil
}

func (s *memStore) GetDefault(_ context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.order {
		if s.recs[name].Default {
			return copyRecord(s.recs[name]), nil
		}
	}

	return nil, errors.ErrNotFound
}

func (s *memStore) List(_ context.Context) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := make([]*Record, 0, len(s.order))
	for _, name := range s.order {
		recs = append(recs, copyRecord(s.recs[name]))
	}

	return recs, nil
}

func (s *memStore) Update(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.recs[rec.Name]
	if !ok {
		return errors.ErrNotFound
	}

	if cur.Revision != rec.Revision {
		return errors.ErrPrecondition
	}

	rec.Revision++
	s.recs[rec.Name] = copyRecord(rec)

	return nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.recs[name]; !ok {
		return errors.ErrNotFound
	}

	delete(s.recs, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })

	return nil
}

// countingProber records every probe and fails for addresses listed in failures. A probe
// takes delay and calls onProbe first when set.
type countingProber struct {
	mu       sync.Mutex
	targets  []Target
	failures map[string]error
	delay    time.Duration
	onProbe  func(Target)
}

func (p *countingProber) Probe(_ context.Context, target Target) (*ProbeResult, error) {
	if p.onProbe != nil {
		p.onProbe(target)
	}

	time.Sleep(p.delay)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.targets = append(p.targets, target)

	if err := p.failures[target.Address()]; err != nil {
		return nil, err
	}

	return &ProbeResult{SetName: "rs0", Version: "7.0.14"}, nil
}

func (p *countingProber) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.targets)
}

func (p *countingProber) all() []Target {
	p.mu.Lock()
	defer p.mu.Unlock()

	return slices.Clone(p.targets)
}

func (p *countingProber) last() Target {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.targets[len(p.targets)-1]
}

func newTestManager() (*Manager, *memStore, *countingProber) {
	store := newMemStore()
	prober := &countingProber{failures: make(map[string]error)}

	return NewManager(nil, WithStore(store), WithProber(prober)), store, prober
}

//nolint:gochecknoglobals
var seedDescriptor = map[string]any{
	"host":     "seed.local",
	"port":     27017,
	"user":     "root",
	"password": "secret",
}
