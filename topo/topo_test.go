package topo

import (
	"context"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/percona/percona-docshell/errors"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain failure")

	tests := []struct {
		name string
		err  error
		kind error
	}{
		{
			name: "deadline",
			err:  errors.Wrap(context.DeadlineExceeded, "ping"),
			kind: errors.ErrTimeout,
		},
		{
			name: "dial refused",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")},
			kind: errors.ErrConnection,
		},
		{
			name: "dial deadline",
			err:  &net.OpError{Op: "dial", Net: "tcp", Err: os.ErrDeadlineExceeded},
			kind: errors.ErrTimeout,
		},
		{
			name: "read deadline",
			err:  errors.Wrap(&net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}, "hello"),
			kind: errors.ErrTimeout,
		},
		{
			name: "dns",
			err:  &net.DNSError{Err: "no such host", Name: "nowhere.invalid"},
			kind: errors.ErrConnection,
		},
		{
			name: "dns timeout",
			err:  &net.DNSError{Err: "i/o timeout", Name: "slow.invalid", IsTimeout: true},
			kind: errors.ErrTimeout,
		},
		{
			name: "auth",
			err:  mongo.CommandError{Code: 18, Message: "Authentication failed."},
			kind: errors.ErrConnection,
		},
		{
			name: "disconnected",
			err:  mongo.ErrClientDisconnected,
			kind: errors.ErrConnectionClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Classify(context.Background(), tt.err)
			assert.ErrorIs(t, err, tt.kind)

			if tt.kind == errors.ErrTimeout {
				assert.NotErrorIs(t, err, errors.ErrConnection)
			}

			assert.ErrorContains(t, err, tt.err.Error())
		})
	}

	t.Run("passthrough", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, plain, Classify(context.Background(), plain))
		assert.NoError(t, Classify(context.Background(), nil))
	})

	t.Run("expired context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 0)
		defer cancel()
		<-ctx.Done()

		assert.ErrorIs(t, Classify(ctx, plain), errors.ErrTimeout)
	})
}

func TestServerErrorCodes(t *testing.T) {
	t.Parallel()

	exists := mongo.CommandError{Code: 48, Name: "NamespaceExists"}
	notFound := mongo.CommandError{Code: 26, Name: "NamespaceNotFound"}
	dup := mongo.WriteException{
		WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key error"}},
	}

	assert.True(t, IsNamespaceExists(errors.Wrap(exists, "create")))
	assert.False(t, IsNamespaceExists(notFound))
	assert.True(t, IsNamespaceNotFound(notFound))
	assert.True(t, IsDuplicateKey(dup))
	assert.False(t, IsDuplicateKey(exists))
	assert.False(t, IsAuthenticationFailed(errors.New("other")))
}

func TestAddress(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "localhost:27017", Address("localhost", 27017))
	assert.Equal(t, "[::1]:3310", Address("::1", 3310))
}
