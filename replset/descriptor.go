package replset

import (
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/percona/percona-docshell/config"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/topo"
)

// Descriptor option keys.
const (
	OptHost       = "host"
	OptPort       = "port"
	OptUser       = "user"
	OptPassword   = "password"
	OptAuthMethod = "authMethod"
)

//nolint:gochecknoglobals
var descriptorKeys = []string{OptHost, OptPort, OptUser, OptPassword, OptAuthMethod}

// Descriptor holds the connection parameters of a candidate member.
type Descriptor struct {
	Host       string
	Port       int
	User       string
	Password   string
	AuthMethod string

	hasUser       bool
	hasPassword   bool
	hasAuthMethod bool
}

// Address returns "host:port".
func (d Descriptor) Address() string {
	return topo.Address(d.Host, d.Port)
}

func invalidArgument(msg string) error {
	return errors.Wrap(errors.ErrInvalidArgument, msg)
}

// parseInstanceArgs checks the call shape and decodes the single descriptor argument. It
// accepts a "host[:port]" string (optionally "user[:password]@host[:port]") or a map.
// The host requirement is checked separately by requireHost.
func parseInstanceArgs(args []any) (Descriptor, error) {
	switch len(args) {
	case 0:
		return Descriptor{}, invalidArgument("instance definition required")
	case 1:
	default:
		return Descriptor{}, invalidArgument("wrong number of arguments")
	}

	switch arg := args[0].(type) {
	case string:
		return parseAddress(arg)
	case map[string]any:
		return parseOptions(arg)
	case bson.M:
		return parseOptions(arg)
	case map[string]string:
		return parseOptions(lo.MapValues(arg, func(v, _ string) any { return v }))
	case Descriptor:
		return arg, nil
	case *Descriptor:
		if arg != nil {
			return *arg, nil
		}
	}

	return Descriptor{}, invalidArgument("invalid connection data")
}

func parseAddress(s string) (Descriptor, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "mongodb://"))
	if s == "" {
		return Descriptor{}, invalidArgument("invalid connection data")
	}

	var d Descriptor

	if userinfo, rest, ok := strings.Cut(s, "@"); ok {
		user, password, hasPassword := strings.Cut(userinfo, ":")
		if user == "" {
			return Descriptor{}, invalidArgument("invalid connection data")
		}

		d.User, d.hasUser = user, true
		if hasPassword {
			d.Password, d.hasPassword = password, true
		}

		s = rest
	}

	if strings.ContainsAny(s, "/?,@ ") {
		return Descriptor{}, invalidArgument("invalid connection data")
	}

	host, port := s, ""
	if h, p, err := net.SplitHostPort(s); err == nil {
		if p == "" {
			return Descriptor{}, invalidArgument("invalid connection data")
		}

		host, port = h, p
	}

	d.Host = host

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return Descriptor{}, invalidArgument("invalid connection data")
		}

		d.Port = n
	}

	return d, nil
}

func parseOptions(m map[string]any) (Descriptor, error) {
	if _, ok := m["schema"]; ok {
		return Descriptor{}, invalidArgument("unsupported option: schema")
	}

	unknown := lo.Filter(lo.Keys(m), func(key string, _ int) bool {
		return !lo.Contains(descriptorKeys, key)
	})
	if len(unknown) != 0 {
		sort.Strings(unknown)

		return Descriptor{}, invalidArgument("unknown option: " + strings.Join(unknown, ", "))
	}

	var d Descriptor
	var err error

	if v, ok := m[OptHost]; ok {
		d.Host, err = cast.ToStringE(v)
		if err != nil {
			return Descriptor{}, invalidArgument("invalid value for host")
		}
	}

	if v, ok := m[OptPort]; ok {
		d.Port, err = cast.ToIntE(v)
		if err != nil {
			return Descriptor{}, invalidArgument("invalid value for port")
		}
	}

	if v, ok := m[OptUser]; ok {
		d.User, err = cast.ToStringE(v)
		if err != nil {
			return Descriptor{}, invalidArgument("invalid value for user")
		}

		d.hasUser = true
	}

	if v, ok := m[OptPassword]; ok {
		d.Password, err = cast.ToStringE(v)
		if err != nil {
			return Descriptor{}, invalidArgument("invalid value for password")
		}

		d.hasPassword = true
	}

	if v, ok := m[OptAuthMethod]; ok {
		d.AuthMethod, err = cast.ToStringE(v)
		if err != nil {
			return Descriptor{}, invalidArgument("invalid value for authMethod")
		}

		d.hasAuthMethod = true
	}

	return d, nil
}

// requireHost checks the host and fills in the default port.
func (d *Descriptor) requireHost() error {
	d.Host = strings.TrimSpace(d.Host)
	if d.Host == "" {
		return invalidArgument("host required")
	}

	if d.Port == 0 {
		d.Port = config.DefaultDBPort
	}

	if d.Port < 0 || d.Port > 65535 {
		return invalidArgument("port value is outside the range [1 - 65535]")
	}

	return nil
}
