package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/percona/percona-docshell/errors"
)

// errCommandTimeout is returned when the command execution times out.
var errCommandTimeout = errors.New("command timed out")

// binaryPath holds the path to the compiled pdsh binary.
//
//nolint:gochecknoglobals
var binaryPath string

// TestMain builds the binary once before running all tests.
func TestMain(m *testing.M) {
	code := runTestMain(m)
	os.Exit(code)
}

func runTestMain(m *testing.M) int {
	tmpDir, err := os.MkdirTemp("", "pdsh-cli-test")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create temp dir: %v\n", err)

		return 1
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "pdsh")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "build", "-o", binaryPath, ".")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err = cmd.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build binary: %v\n", err)

		return 1
	}

	return m.Run()
}

// capturedRequest holds the details of an HTTP request captured by the mock server.
type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Body   []byte
}

// mockServer creates a mock admin server that captures requests.
func mockServer(t *testing.T, response any) (*httptest.Server, *capturedRequest, *sync.Mutex) {
	t.Helper()

	var captured capturedRequest
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		captured.Method = r.Method
		captured.Path = r.URL.Path
		captured.Query = r.URL.RawQuery

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read request body: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)

			return
		}
		captured.Body = body

		w.Header().Set("Content-Type", "application/json")

		encErr := json.NewEncoder(w).Encode(response)
		if encErr != nil {
			t.Errorf("failed to encode response: %v", encErr)
		}
	}))
	t.Cleanup(server.Close)

	return server, &captured, &mu
}

func extractPort(serverURL string) string {
	parts := strings.Split(serverURL, ":")
	if len(parts) < 3 {
		return ""
	}

	return parts[len(parts)-1]
}

// runPDSH runs the pdsh binary with the given arguments and environment variables.
func runPDSH(t *testing.T, args []string, env map[string]string) (string, string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath, args...)

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout.String(), stderr.String(), errCommandTimeout
	}

	return stdout.String(), stderr.String(), err
}

type mockResponse struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	stdout, stderr, err := runPDSH(t, []string{"version"}, nil)
	require.NoError(t, err, "stderr: %s", stderr)

	assert.Contains(t, stdout+stderr, "Version:")
	assert.Contains(t, stdout+stderr, "GoVersion:")
}

func TestStatusCommand(t *testing.T) {
	t.Parallel()

	server, captured, mu := mockServer(t, map[string]any{
		"ok":          true,
		"version":     "v0.1.0",
		"replicaSets": 2,
	})

	stdout, stderr, err := runPDSH(t, []string{"--port", extractPort(server.URL), "status"}, nil)
	require.NoError(t, err, "stderr: %s", stderr)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Equal(t, "/status", captured.Path)
	assert.Empty(t, captured.Body)

	assert.Contains(t, stdout, `"ok": true`)
	assert.Contains(t, stdout, `"replicaSets": 2`)
}

func TestReplicaSetCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		args         []string
		method       string
		path         string
		query        string
		expectedBody map[string]any
	}{
		{
			name:         "create",
			args:         []string{"replicaset", "create", "farm", "--description", "test farm"},
			method:       http.MethodPost,
			path:         "/replicasets/create",
			expectedBody: map[string]any{"name": "farm", "description": "test farm"},
		},
		{
			name:         "drop",
			args:         []string{"replicaset", "drop", "farm"},
			method:       http.MethodPost,
			path:         "/replicasets/drop",
			expectedBody: map[string]any{"name": "farm"},
		},
		{
			name:         "drop default",
			args:         []string{"rs", "drop", "farm", "--drop-default"},
			method:       http.MethodPost,
			path:         "/replicasets/drop",
			expectedBody: map[string]any{"name": "farm", "dropDefault": true},
		},
		{
			name:         "add seed by address",
			args:         []string{"replicaset", "add-seed", "farm", "root:secret@db1.local:27017"},
			method:       http.MethodPost,
			path:         "/replicasets/add-seed-instance",
			expectedBody: map[string]any{"replicaSet": "farm", "instance": "root:secret@db1.local:27017"},
		},
		{
			name:   "add instance by options",
			args:   []string{"replicaset", "add-instance", "farm", `{"host": "db2.local", "port": 27018}`},
			method: http.MethodPost,
			path:   "/replicasets/add-instance",
			expectedBody: map[string]any{
				"replicaSet": "farm",
				"instance":   map[string]any{"host": "db2.local", "port": float64(27018)},
			},
		},
		{
			name:         "remove instance",
			args:         []string{"replicaset", "remove-instance", "farm", "db2.local:27018"},
			method:       http.MethodPost,
			path:         "/replicasets/remove-instance",
			expectedBody: map[string]any{"replicaSet": "farm", "instance": "db2.local:27018"},
		},
		{
			name:   "describe",
			args:   []string{"replicaset", "describe", "farm"},
			method: http.MethodGet,
			path:   "/replicasets/describe",
			query:  "name=farm",
		},
		{
			name:   "describe default",
			args:   []string{"replicaset", "describe"},
			method: http.MethodGet,
			path:   "/replicasets/describe",
		},
		{
			name:   "member status",
			args:   []string{"replicaset", "status", "farm"},
			method: http.MethodGet,
			path:   "/replicasets/status",
			query:  "name=farm",
		},
		{
			name:   "list",
			args:   []string{"replicaset", "list"},
			method: http.MethodGet,
			path:   "/replicasets/list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, captured, mu := mockServer(t, mockResponse{Ok: true})

			args := append([]string{"--port", extractPort(server.URL)}, tt.args...)

			stdout, stderr, err := runPDSH(t, args, nil)
			require.NoError(t, err, "stderr: %s", stderr)

			mu.Lock()
			defer mu.Unlock()

			assert.Equal(t, tt.method, captured.Method)
			assert.Equal(t, tt.path, captured.Path)
			assert.Equal(t, tt.query, captured.Query)
			assert.Contains(t, stdout, `"ok": true`)

			if tt.expectedBody == nil {
				assert.Empty(t, captured.Body)

				return
			}

			var body map[string]any
			require.NoError(t, json.Unmarshal(captured.Body, &body))
			assert.Equal(t, tt.expectedBody, body)
		})
	}
}

func TestReplicaSetCommandErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		args          []string
		expectedError string
	}{
		{
			name:          "create without name",
			args:          []string{"replicaset", "create"},
			expectedError: "accepts 1 arg(s)",
		},
		{
			name:          "add seed without instance",
			args:          []string{"replicaset", "add-seed", "farm"},
			expectedError: "accepts 2 arg(s)",
		},
		{
			name:          "malformed instance options",
			args:          []string{"replicaset", "add-instance", "farm", "{host"},
			expectedError: "parse instance options",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, captured, mu := mockServer(t, mockResponse{Ok: true})

			args := append([]string{"--port", extractPort(server.URL)}, tt.args...)

			stdout, stderr, err := runPDSH(t, args, nil)
			require.Error(t, err)
			assert.Contains(t, stdout+stderr, tt.expectedError)

			mu.Lock()
			defer mu.Unlock()

			assert.Empty(t, captured.Path, "no request expected")
		})
	}
}

func TestFailedResponseIsPrinted(t *testing.T) {
	t.Parallel()

	server, _, _ := mockServer(t, mockResponse{
		Error: `replica set "farm" is the default one; set dropDefault to drop it: confirmation required`,
		Kind:  "confirmation_required",
	})

	stdout, stderr, err := runPDSH(t,
		[]string{"--port", extractPort(server.URL), "replicaset", "drop", "farm"}, nil)
	require.NoError(t, err, "stderr: %s", stderr)

	assert.Contains(t, stdout, `"ok": false`)
	assert.Contains(t, stdout, `"kind": "confirmation_required"`)
}

func TestPortFromEnv(t *testing.T) {
	t.Parallel()

	server, captured, mu := mockServer(t, mockResponse{Ok: true})

	_, stderr, err := runPDSH(t, []string{"replicaset", "list"},
		map[string]string{"PDSH_PORT": extractPort(server.URL)})
	require.NoError(t, err, "stderr: %s", stderr)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "/replicasets/list", captured.Path)
}

func TestShellRequiresEndpoint(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"ping"},
		{"schemas"},
		{"find", "sakila", "actor", "name like 'A%'"},
		{"--host", "localhost", "collection", "create", "sakila", "actor"},
	} {
		stdout, stderr, err := runPDSH(t, args, map[string]string{"PDSH_HOST": "", "PDSH_USER": ""})
		require.Error(t, err, "args: %v", args)
		assert.Contains(t, stdout+stderr, "endpoint", "args: %v", args)
	}
}

func TestConnectionRefused(t *testing.T) {
	t.Parallel()

	_, stderr, err := runPDSH(t, []string{"--port", "59999", "status"}, nil)

	require.Error(t, err)
	assert.True(t,
		strings.Contains(stderr, "connection refused") ||
			strings.Contains(stderr, "connect:") ||
			strings.Contains(stderr, "dial"),
		"expected connection error, got: %s", stderr)
}
