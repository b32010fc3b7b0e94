package docstore

import (
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/percona/percona-docshell/config"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/topo"
	"github.com/percona/percona-docshell/validate"
)

// Endpoint option keys accepted by [ParseEndpoint].
const (
	OptHost       = "host"
	OptPort       = "port"
	OptDBUser     = "dbUser"
	OptDBPassword = "dbPassword"
)

// EndpointConfig identifies a database endpoint and its credentials.
type EndpointConfig struct {
	Host     string `mapstructure:"host"       validate:"required,hostname_rfc1123|ip"`
	Port     int    `mapstructure:"port"       validate:"gt=0,lte=65535"`
	User     string `mapstructure:"dbUser"     validate:"required"`
	Password string `mapstructure:"dbPassword" validate:"required"`
}

// Address returns "host:port".
func (c EndpointConfig) Address() string {
	return topo.Address(c.Host, c.Port)
}

// Validate checks that all fields are set and well formed.
func (c EndpointConfig) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return errors.WithKind(errors.Wrap(err, "endpoint"), errors.ErrInvalidArgument)
	}

	return nil
}

// EndpointFromConfig builds an endpoint from the application configuration.
func EndpointFromConfig(cfg *config.EndpointConfig) EndpointConfig {
	return EndpointConfig{
		Host:     cfg.Host,
		Port:     cfg.DBPort,
		User:     cfg.User,
		Password: cfg.Password,
	}
}

// ParseEndpoint decodes an option map with the keys host, port, dbUser and dbPassword.
// Every key is required and unknown keys are rejected.
func ParseEndpoint(opts map[string]any) (EndpointConfig, error) {
	var cfg EndpointConfig
	var md mapstructure.Metadata

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           &cfg,
	})
	if err != nil {
		return EndpointConfig{}, errors.Wrap(err, "new decoder")
	}

	err = dec.Decode(opts)
	if err != nil {
		return EndpointConfig{}, errors.WithKind(errors.Wrap(err, "endpoint"), errors.ErrInvalidArgument)
	}

	var missing []string
	for _, key := range []string{OptHost, OptPort, OptDBUser, OptDBPassword} {
		if !containsFold(md.Keys, key) {
			missing = append(missing, key)
		}
	}

	if len(missing) != 0 {
		return EndpointConfig{}, errors.Wrapf(errors.ErrInvalidArgument,
			"missing endpoint option: %s", strings.Join(missing, ", "))
	}

	err = cfg.Validate()
	if err != nil {
		return EndpointConfig{}, err
	}

	return cfg, nil
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}

	return false
}
