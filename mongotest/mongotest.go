// Package mongotest starts disposable MongoDB servers for integration tests.
package mongotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	image    = "mongo:7.0"
	rootUser = "root"
	rootPass = "pdsh-secret"

	mongoPort = "27017/tcp"
)

// Server is a running MongoDB container with root credentials.
type Server struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Endpoint returns the connection options in the form accepted by docstore.ParseEndpoint.
func (s Server) Endpoint() map[string]any {
	return map[string]any{
		"host":       s.Host,
		"port":       s.Port,
		"dbUser":     s.User,
		"dbPassword": s.Password,
	}
}

// Start runs a standalone mongod and terminates it when the test ends. The test is skipped
// in short mode or when no container provider is available.
func Start(t *testing.T) Server {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{mongoPort},
			Env: map[string]string{
				"MONGO_INITDB_ROOT_USERNAME": rootUser,
				"MONGO_INITDB_ROOT_PASSWORD": rootPass,
			},
			// the init scripts run against a temporary server first
			WaitingFor: wait.ForAll(
				wait.ForLog("Waiting for connections").WithOccurrence(2),
				wait.ForListeningPort(mongoPort),
			),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, c)
	require.NoError(t, err, "start mongo container")

	host, err := c.Host(ctx)
	require.NoError(t, err)

	port, err := c.MappedPort(ctx, mongoPort)
	require.NoError(t, err)

	return Server{
		Host:     host,
		Port:     port.Int(),
		User:     rootUser,
		Password: rootPass,
	}
}
