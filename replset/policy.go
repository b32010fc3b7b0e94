package replset

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/percona/percona-docshell/errors"
)

// Supported authentication mechanisms.
const (
	AuthSCRAMSHA1   = "SCRAM-SHA-1"
	AuthSCRAMSHA256 = "SCRAM-SHA-256"
	AuthX509        = "MONGODB-X509"
	AuthPlain       = "PLAIN"
)

//nolint:gochecknoglobals
var authMethods = []string{AuthSCRAMSHA1, AuthSCRAMSHA256, AuthX509, AuthPlain}

//nolint:gochecknoglobals
var bcryptCost = bcrypt.DefaultCost

// AuthPolicy is the authentication every member of a replica set shares. It is established by
// the seed instance. Only a hash of the password is kept.
type AuthPolicy struct {
	User         string `bson:"user"         json:"user"`
	AuthMethod   string `bson:"authMethod"   json:"authMethod,omitempty"`
	PasswordHash string `bson:"passwordHash" json:"-"`
}

func normalizeAuthMethod(method string) (string, error) {
	if method == "" {
		return "", nil
	}

	for _, m := range authMethods {
		if strings.EqualFold(m, method) {
			return m, nil
		}
	}

	return "", invalidArgument("unsupported authMethod: " + method +
		" (expected one of " + strings.Join(authMethods, ", ") + ")")
}

// newAuthPolicy derives the policy from the seed descriptor. Missing credentials are taken
// from the administrative session.
func newAuthPolicy(d Descriptor, adminUser, adminPassword string) (*AuthPolicy, error) {
	if d.hasPassword && !d.hasUser {
		return nil, invalidArgument("password specified without user")
	}

	method, err := normalizeAuthMethod(d.AuthMethod)
	if err != nil {
		return nil, err
	}

	user, password := adminUser, adminPassword
	if d.hasUser {
		user = d.User
	}

	if d.hasPassword {
		password = d.Password
	}

	if user == "" {
		return nil, invalidArgument("user required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	return &AuthPolicy{User: user, AuthMethod: method, PasswordHash: string(hash)}, nil
}

// check rejects credentials that disagree with the policy.
func (p *AuthPolicy) check(d Descriptor) error {
	if p == nil {
		if d.hasUser || d.hasPassword || d.hasAuthMethod {
			return invalidArgument("replica set has no authentication policy")
		}

		return nil
	}

	if d.hasPassword && !d.hasUser {
		return invalidArgument("password specified without user")
	}

	if d.hasUser && d.User != p.User {
		return invalidArgument("user " + d.User + " does not match the replica set user " + p.User)
	}

	if d.hasPassword {
		err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(d.Password))
		if err != nil {
			return invalidArgument("password does not match the replica set credentials")
		}
	}

	if d.hasAuthMethod {
		method, err := normalizeAuthMethod(d.AuthMethod)
		if err != nil {
			return err
		}

		if method != p.AuthMethod {
			return invalidArgument("authMethod " + method + " does not match the replica set authMethod")
		}
	}

	return nil
}
