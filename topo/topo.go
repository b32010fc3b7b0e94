// Package topo wraps MongoDB client plumbing shared by the document store and the
// replica set manager: connecting, server introspection and error classification.
package topo

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/percona/percona-docshell/errors"
)

const appName = "pdsh"

// Credential authenticates a connection. The zero value connects without auth.
type Credential struct {
	User       string
	Password   string
	AuthMethod string
}

// ConnectOptions controls how [Connect] dials a server.
type ConnectOptions struct {
	Credential Credential
	// Timeout bounds server selection and the initial ping.
	Timeout time.Duration
	// Direct disables topology discovery and talks to the given host only.
	Direct bool
}

// Address formats host and port as a MongoDB seed address.
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Connect dials host:port and verifies the connection with a ping.
func Connect(ctx context.Context, addr string, opts *ConnectOptions) (*mongo.Client, error) {
	if opts == nil {
		opts = &ConnectOptions{}
	}

	clientOpts := options.Client().
		SetHosts([]string{addr}).
		SetAppName(appName).
		SetDirect(opts.Direct).
		SetReadPreference(readpref.Primary())

	if opts.Timeout > 0 {
		clientOpts.SetConnectTimeout(opts.Timeout).SetServerSelectionTimeout(opts.Timeout)
	}

	if opts.Credential.User != "" {
		clientOpts.SetAuth(options.Credential{
			Username:      opts.Credential.User,
			Password:      opts.Credential.Password,
			AuthMechanism: opts.Credential.AuthMethod,
			AuthSource:    "admin",
		})
	}

	client, err := mongo.Connect(clientOpts)
	if err != nil {
		return nil, errors.WithKind(errors.Wrap(err, "connect"), errors.ErrConnection)
	}

	pingCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	err = client.Ping(pingCtx, readpref.Primary())
	if err != nil {
		_ = client.Disconnect(context.Background())

		err = Classify(pingCtx, errors.Wrap(err, "ping"))
		if !errors.Is(err, errors.ErrTimeout) {
			err = errors.WithKind(err, errors.ErrConnection)
		}

		return nil, err
	}

	return client, nil
}

// HelloResult is the subset of the hello command reply used to describe an instance.
type HelloResult struct {
	SetName           string   `bson:"setName,omitempty"`
	IsWritablePrimary bool     `bson:"isWritablePrimary"`
	Secondary         bool     `bson:"secondary"`
	Hosts             []string `bson:"hosts,omitempty"`
	Me                string   `bson:"me,omitempty"`
	Msg               string   `bson:"msg,omitempty"`
}

// IsReplicaSet reports whether the instance is a replica set member.
func (h *HelloResult) IsReplicaSet() bool {
	return h.SetName != ""
}

// Hello runs the hello command.
func Hello(ctx context.Context, m *mongo.Client) (*HelloResult, error) {
	var res HelloResult

	err := m.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&res)
	if err != nil {
		return nil, errors.Wrap(Classify(ctx, err), "hello")
	}

	return &res, nil
}

// Version returns the server version string reported by buildInfo.
func Version(ctx context.Context, m *mongo.Client) (string, error) {
	var res struct {
		Version string `bson:"version"`
	}

	err := m.Database("admin").RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&res)
	if err != nil {
		return "", errors.Wrap(Classify(ctx, err), "buildInfo")
	}

	return res.Version, nil
}

// Classify marks driver errors with the error kind callers match on. Refused, unresolvable and
// unauthenticated connections are [errors.ErrConnection]; expired deadlines, including dial
// and read deadlines, are [errors.ErrTimeout]. Server replies that are not connection related
// are returned unchanged.
func Classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrClientDisconnected):
		return errors.WithKind(err, errors.ErrConnectionClosed)
	case isConnectionFailure(err):
		return errors.WithKind(err, errors.ErrConnection)
	case isTimeout(ctx, err):
		return errors.WithKind(err, errors.ErrTimeout)
	case mongo.IsNetworkError(err):
		return errors.WithKind(err, errors.ErrConnection)
	}

	return err
}

//nolint:gochecknoglobals
var connectionFailureMarkers = []string{
	"connection refused",
	"no such host",
	"no reachable servers",
	"authentication failed",
	"auth error",
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	if ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return mongo.IsTimeout(err)
}

func isConnectionFailure(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && !opErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.Timeout() {
		return true
	}

	if IsAuthenticationFailed(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range connectionFailureMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
