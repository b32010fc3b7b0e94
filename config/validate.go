package config

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/validate"
)

// DefaultServerPort is the default port for the pdsh HTTP admin server.
const DefaultServerPort = 2243

// DefaultDBPort is the well-known MongoDB port.
const DefaultDBPort = 27017

// DefaultMetadataSchema is the schema that stores replica set metadata.
const DefaultMetadataSchema = "pdsh_metadata"

const (
	DefaultMongoDBOperationTimeout = 30 * time.Second
	DefaultConnectTimeout          = 10 * time.Second
	DefaultProbeTimeout            = 10 * time.Second
	DisconnectTimeout              = 5 * time.Second
)

const (
	// DefaultMaxDocumentSize matches the MongoDB BSON document limit.
	DefaultMaxDocumentSize = 16 * humanize.MiByte
	MinDocumentSizeBytes   = humanize.KiByte
	MaxDocumentSizeBytes   = 16 * humanize.MiByte
)

// Validate validates the Config for required fields and value ranges.
func Validate(cfg *Config) error {
	port := cfg.Port
	if port == 0 {
		port = DefaultServerPort
	}

	if port <= 1024 || port > 65535 {
		return errors.New("port value is outside the supported range [1024 - 65535]")
	}

	err := ValidateEndpoint(&cfg.Endpoint)
	if err != nil {
		return err
	}

	return validate.Struct(cfg) //nolint:wrapcheck
}

// ValidateEndpoint checks that the administrative endpoint is complete.
func ValidateEndpoint(ep *EndpointConfig) error {
	switch {
	case ep.Host == "" && ep.User == "":
		return errors.New("host and user are empty")
	case ep.Host == "":
		return errors.New("host is empty")
	case ep.User == "":
		return errors.New("user is empty")
	case ep.Password == "":
		return errors.New("password is empty")
	}

	if ep.DBPort < 0 || ep.DBPort > 65535 {
		return errors.New("db-port value is outside the supported range [1 - 65535]")
	}

	return nil
}

// ValidateMaxDocumentSize validates a maximum document size value in bytes.
// It allows 0 (default) or values within [MinDocumentSizeBytes, MaxDocumentSizeBytes].
func ValidateMaxDocumentSize(sizeBytes uint64) error {
	if sizeBytes == 0 {
		return nil // 0 means default
	}

	if sizeBytes < MinDocumentSizeBytes {
		return errors.Errorf("maxDocumentSize must be at least %s, got %s",
			humanize.IBytes(MinDocumentSizeBytes),
			humanize.IBytes(sizeBytes))
	}

	if sizeBytes > MaxDocumentSizeBytes {
		return errors.Errorf("maxDocumentSize must be at most %s, got %s",
			humanize.IBytes(MaxDocumentSizeBytes),
			humanize.IBytes(sizeBytes))
	}

	return nil
}
