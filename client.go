package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
)

// PDSHClient calls the admin server on localhost.
type PDSHClient struct {
	port int
}

func NewClient(port int) PDSHClient {
	return PDSHClient{port: port}
}

// Status sends a request to get the status of the admin server.
func (c PDSHClient) Status(ctx context.Context) error {
	return doClientRequest[statusResponse](ctx, c.port, http.MethodGet, "status", nil)
}

// Create sends a request to create a replica set.
func (c PDSHClient) Create(ctx context.Context, req createRequest) error {
	return doClientRequest[replicaSetResponse](ctx, c.port, http.MethodPost, "replicasets/create", req)
}

// Drop sends a request to drop a replica set.
func (c PDSHClient) Drop(ctx context.Context, req dropRequest) error {
	return doClientRequest[dropResponse](ctx, c.port, http.MethodPost, "replicasets/drop", req)
}

// AddSeedInstance sends a request to add the seed instance of a replica set.
func (c PDSHClient) AddSeedInstance(ctx context.Context, req instanceRequest) error {
	return doClientRequest[instanceResponse](ctx, c.port,
		http.MethodPost, "replicasets/add-seed-instance", req)
}

// AddInstance sends a request to add an instance to a replica set.
func (c PDSHClient) AddInstance(ctx context.Context, req instanceRequest) error {
	return doClientRequest[instanceResponse](ctx, c.port, http.MethodPost, "replicasets/add-instance", req)
}

// RemoveInstance sends a request to remove an instance from a replica set.
func (c PDSHClient) RemoveInstance(ctx context.Context, req instanceRequest) error {
	return doClientRequest[instanceResponse](ctx, c.port,
		http.MethodPost, "replicasets/remove-instance", req)
}

// Describe sends a request to describe a replica set. An empty name means the default one.
func (c PDSHClient) Describe(ctx context.Context, name string) error {
	return doClientRequest[replicaSetResponse](ctx, c.port,
		http.MethodGet, "replicasets/describe"+nameQuery(name), nil)
}

// MemberStatus sends a request to probe the members of a replica set.
func (c PDSHClient) MemberStatus(ctx context.Context, name string) error {
	return doClientRequest[memberStatusResponse](ctx, c.port,
		http.MethodGet, "replicasets/status"+nameQuery(name), nil)
}

// List sends a request to list the replica sets.
func (c PDSHClient) List(ctx context.Context) error {
	return doClientRequest[listResponse](ctx, c.port, http.MethodGet, "replicasets/list", nil)
}

func nameQuery(name string) string {
	if name == "" {
		return ""
	}

	return "?" + url.Values{"name": {name}}.Encode()
}

func doClientRequest[T any](ctx context.Context, port int, method, path string, body any) error {
	endpoint := fmt.Sprintf("http://localhost:%d/%s", port, path)

	bodyData := []byte("")
	if body != nil {
		var err error
		bodyData, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(bodyData))
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	log.Ctx(ctx).Debugf("%s /%s %s", method, path, string(bodyData))

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("%s /%s: %s", method, path, res.Status)
	}

	var resp T

	err = json.NewDecoder(res.Body).Decode(&resp)
	if err != nil {
		return errors.Wrap(err, "decode response")
	}

	j := json.NewEncoder(os.Stdout)
	j.SetIndent("", "  ")
	err = j.Encode(resp)

	return errors.Wrap(err, "print response")
}
