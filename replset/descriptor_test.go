package replset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/percona/percona-docshell/errors"
)

func TestParseAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Descriptor
	}{
		{"localhost:3310", Descriptor{Host: "localhost", Port: 3310}},
		{"localhost", Descriptor{Host: "localhost"}},
		{"mongodb://db1.local:27018", Descriptor{Host: "db1.local", Port: 27018}},
		{"[::1]:3310", Descriptor{Host: "::1", Port: 3310}},
		{"::1", Descriptor{Host: "::1"}},
		{":3310", Descriptor{Port: 3310}},
		{
			"admin:pw@db1.local:3310",
			Descriptor{Host: "db1.local", Port: 3310, User: "admin", Password: "pw", hasUser: true, hasPassword: true},
		},
		{"admin@db1.local", Descriptor{Host: "db1.local", User: "admin", hasUser: true}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := parseAddress(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAddressInvalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "host:", "host:port", "@host", "a,b", "host/db", "a b"} {
		t.Run(in, func(t *testing.T) {
			t.Parallel()

			_, err := parseAddress(in)
			require.ErrorIs(t, err, errors.ErrInvalidArgument)
			assert.ErrorContains(t, err, "invalid connection data")
		})
	}
}

func TestRequireHost(t *testing.T) {
	t.Parallel()

	d := Descriptor{Host: " db1.local "}
	require.NoError(t, d.requireHost())
	assert.Equal(t, "db1.local:27017", d.Address())

	d = Descriptor{Host: "db1.local", Port: 70000}
	require.ErrorIs(t, d.requireHost(), errors.ErrInvalidArgument)

	d = Descriptor{Port: 3310}
	err := d.requireHost()
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.ErrorContains(t, err, "host required")
}

func TestParseOptionsUnknownKeysSorted(t *testing.T) {
	t.Parallel()

	_, err := parseOptions(map[string]any{"host": "a", "zeta": 1, "alpha": 2})
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.ErrorContains(t, err, "unknown option: alpha, zeta")

	_, err = parseOptions(map[string]any{"host": "a", "port": "abc"})
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = parseOptions(map[string]any{"host": []int{1}})
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
}
