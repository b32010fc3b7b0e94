package replset

import (
	"context"
	"time"

	"github.com/percona/percona-docshell/config"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/topo"
)

// Target is an instance to probe.
type Target struct {
	Host       string
	Port       int
	Credential topo.Credential
}

// Address returns "host:port".
func (t Target) Address() string {
	return topo.Address(t.Host, t.Port)
}

// ProbeResult describes a reachable instance.
type ProbeResult struct {
	// SetName is the replica set name the instance reports, if any.
	SetName string
	Version string
	Primary bool
}

// Prober checks that an instance is reachable. Failures carry [errors.ErrConnection] or
// [errors.ErrTimeout].
type Prober interface {
	Probe(ctx context.Context, target Target) (*ProbeResult, error)
}

// MongoProber connects directly to the instance and runs hello and buildInfo.
type MongoProber struct {
	Timeout time.Duration
}

// NewMongoProber returns a prober bounded by timeout.
func NewMongoProber(timeout time.Duration) *MongoProber {
	if timeout <= 0 {
		timeout = config.DefaultProbeTimeout
	}

	return &MongoProber{Timeout: timeout}
}

func (p *MongoProber) Probe(ctx context.Context, target Target) (*ProbeResult, error) {
	client, err := topo.Connect(ctx, target.Address(), &topo.ConnectOptions{
		Credential: target.Credential,
		Timeout:    p.Timeout,
		Direct:     true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "probe %s", target.Address())
	}

	defer func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.DisconnectTimeout)
		defer cancel()

		_ = client.Disconnect(dctx)
	}()

	hello, err := topo.Hello(ctx, client)
	if err != nil {
		return nil, errors.Wrapf(err, "probe %s", target.Address())
	}

	version, err := topo.Version(ctx, client)
	if err != nil {
		return nil, errors.Wrapf(err, "probe %s", target.Address())
	}

	return &ProbeResult{
		SetName: hello.SetName,
		Version: version,
		Primary: hello.IsWritablePrimary,
	}, nil
}
