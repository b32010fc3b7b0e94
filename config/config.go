// Package config provides configuration management for pdsh using Viper.
package config

import (
	"context"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
)

// Config holds all pdsh configuration.
type Config struct {
	// Port is the HTTP admin server port.
	Port int `mapstructure:"port" validate:"omitempty,gt=1024,lte=65535"`

	Endpoint EndpointConfig `mapstructure:",squash"`

	Log LogConfig `mapstructure:",squash"`

	MongoDB MongoDBConfig `mapstructure:",squash"`

	Store StoreConfig `mapstructure:",squash"`
}

// EndpointConfig holds the database endpoint of the administrative session.
type EndpointConfig struct {
	Host     string `mapstructure:"host"`
	DBPort   int    `mapstructure:"db-port"  validate:"omitempty,gte=1,lte=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `mapstructure:"log-level"`
	JSON    bool   `mapstructure:"log-json"`
	NoColor bool   `mapstructure:"log-no-color"`
}

// MongoDBConfig holds MongoDB client configuration.
type MongoDBConfig struct {
	OperationTimeout time.Duration `mapstructure:"mongodb-operation-timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect-timeout"`
	ProbeTimeout     time.Duration `mapstructure:"probe-timeout"`
}

// StoreConfig holds document store and metadata options.
type StoreConfig struct {
	// MaxDocumentSize is the largest document accepted by add (e.g., "16MiB").
	// Empty string means [DefaultMaxDocumentSize].
	MaxDocumentSize string `mapstructure:"max-document-size" validate:"bytesize,bytesizemax=16MiB"`
	// MetadataSchema is the schema holding replica set metadata.
	MetadataSchema string `mapstructure:"metadata-schema"`
	// IncludeNamespaces limits the schemas and collections visible to sessions.
	IncludeNamespaces []string `mapstructure:"include-namespaces"`
	// ExcludeNamespaces hides schemas and collections from sessions.
	ExcludeNamespaces []string `mapstructure:"exclude-namespaces"`
}

// Load initializes Viper and returns the decoded Config.
func Load(cmd *cobra.Command) (*Config, error) {
	viper.SetEnvPrefix("PDSH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cmd.PersistentFlags() != nil {
		_ = viper.BindPFlags(cmd.PersistentFlags())
	}

	if cmd.Flags() != nil {
		_ = viper.BindPFlags(cmd.Flags())
	}

	bindEnvVars()

	var cfg Config

	err := viper.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if cfg.Endpoint.DBPort == 0 {
		cfg.Endpoint.DBPort = DefaultDBPort
	}

	if cfg.Store.MetadataSchema == "" {
		cfg.Store.MetadataSchema = DefaultMetadataSchema
	}

	return &cfg, nil
}

// WarnDeprecatedEnvVars logs warnings for any deprecated environment variables that are set.
// Expects the logger to be initialized.
func WarnDeprecatedEnvVars(ctx context.Context) {
	deprecated := map[string]string{
		"PDSH_DB_USER":     "PDSH_USER",
		"PDSH_DB_PASSWORD": "PDSH_PASSWORD",
	}

	for old, replacement := range deprecated {
		if _, ok := os.LookupEnv(old); ok {
			log.Ctx(ctx).Warnf(
				"Environment variable %s is deprecated; use %s instead",
				old, replacement,
			)
		}
	}
}

func bindEnvVars() {
	_ = viper.BindEnv("port", "PDSH_PORT")

	_ = viper.BindEnv("host", "PDSH_HOST")
	_ = viper.BindEnv("db-port", "PDSH_DB_PORT")
	_ = viper.BindEnv("user", "PDSH_USER", "PDSH_DB_USER")
	_ = viper.BindEnv("password", "PDSH_PASSWORD", "PDSH_DB_PASSWORD")

	_ = viper.BindEnv("log-level", "PDSH_LOG_LEVEL")
	_ = viper.BindEnv("log-json", "PDSH_LOG_JSON")
	_ = viper.BindEnv("log-no-color", "PDSH_LOG_NO_COLOR", "PDSH_NO_COLOR")

	_ = viper.BindEnv("mongodb-operation-timeout", "PDSH_MONGODB_OPERATION_TIMEOUT")
	_ = viper.BindEnv("connect-timeout", "PDSH_CONNECT_TIMEOUT")
	_ = viper.BindEnv("probe-timeout", "PDSH_PROBE_TIMEOUT")

	_ = viper.BindEnv("max-document-size", "PDSH_MAX_DOCUMENT_SIZE")
	_ = viper.BindEnv("metadata-schema", "PDSH_METADATA_SCHEMA")
	_ = viper.BindEnv("include-namespaces", "PDSH_INCLUDE_NAMESPACES")
	_ = viper.BindEnv("exclude-namespaces", "PDSH_EXCLUDE_NAMESPACES")
}

// MaxDocumentSizeBytes returns the configured maximum document size, or
// [DefaultMaxDocumentSize] when unset or invalid.
func (s *StoreConfig) MaxDocumentSizeBytes() int64 {
	if s.MaxDocumentSize == "" {
		return DefaultMaxDocumentSize
	}

	size, err := ParseAndValidateMaxDocumentSize(s.MaxDocumentSize)
	if err != nil || size == 0 {
		return DefaultMaxDocumentSize
	}

	return size
}

// ParseAndValidateMaxDocumentSize parses a byte size string and validates it.
// It allows 0 (default) or values within [MinDocumentSizeBytes, MaxDocumentSizeBytes].
func ParseAndValidateMaxDocumentSize(value string) (int64, error) {
	sizeBytes, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid maxDocumentSize value: %s", value)
	}

	err = ValidateMaxDocumentSize(sizeBytes)
	if err != nil {
		return 0, err
	}

	return int64(min(sizeBytes, math.MaxInt64)), nil //nolint:gosec
}
