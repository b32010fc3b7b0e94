package topo

import (
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/percona/percona-docshell/errors"
)

// Server error codes.
const (
	codeAuthenticationFailed = 18
	codeNamespaceNotFound    = 26
	codeNamespaceExists      = 48
	codeUnauthorized         = 13
)

func hasErrorCode(err error, code int) bool {
	var srvErr mongo.ServerError
	if errors.As(err, &srvErr) {
		return srvErr.HasErrorCode(code)
	}

	return false
}

// IsNamespaceExists reports whether the server refused to create an existing namespace.
func IsNamespaceExists(err error) bool {
	return hasErrorCode(err, codeNamespaceExists)
}

// IsNamespaceNotFound reports whether the command targeted a missing namespace.
func IsNamespaceNotFound(err error) bool {
	return hasErrorCode(err, codeNamespaceNotFound)
}

// IsDuplicateKey reports whether a write violated a unique index.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsAuthenticationFailed reports whether the server rejected the credentials.
func IsAuthenticationFailed(err error) bool {
	return hasErrorCode(err, codeAuthenticationFailed) || hasErrorCode(err, codeUnauthorized)
}
