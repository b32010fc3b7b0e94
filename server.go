package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/percona/percona-docshell/config"
	"github.com/percona/percona-docshell/docstore"
	"github.com/percona/percona-docshell/errors"
	"github.com/percona/percona-docshell/log"
	"github.com/percona/percona-docshell/metrics"
	"github.com/percona/percona-docshell/replset"
)

// Server is the replica set admin server.
type Server struct {
	// Cfg holds the configuration.
	Cfg *config.Config
	// admin is the administrative session. It also backs the metadata store.
	admin *docstore.Session
	// farm manages the replica sets.
	farm *replset.Manager
	// probeTimeout bounds a single instance probe.
	probeTimeout time.Duration

	// promRegistry is the Prometheus registry for metrics.
	promRegistry *prometheus.Registry
}

// createServer connects the administrative session and creates a new server.
func createServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	admin, err := docstore.Connect(ctx,
		docstore.EndpointFromConfig(&cfg.Endpoint),
		sessionOptions(cfg)...)
	if err != nil {
		return nil, errors.Wrap(err, "connect administrative session")
	}

	log.Ctx(ctx).Infof("Connected to %s (replica set: %t)",
		admin.Endpoint().Address(), admin.IsReplicaSet())

	probeTimeout := cfg.MongoDB.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = config.DefaultProbeTimeout
	}

	farm := replset.NewManager(admin,
		replset.WithProbeTimeout(probeTimeout),
		replset.WithMetadataSchema(cfg.Store.MetadataSchema))

	return newServer(cfg, admin, farm, probeTimeout), nil
}

func newServer(
	cfg *config.Config,
	admin *docstore.Session,
	farm *replset.Manager,
	probeTimeout time.Duration,
) *Server {
	promRegistry := prometheus.NewRegistry()
	metrics.Init(promRegistry)

	return &Server{
		Cfg:          cfg,
		admin:        admin,
		farm:         farm,
		probeTimeout: probeTimeout,
		promRegistry: promRegistry,
	}
}

// Close closes the administrative session.
func (s *Server) Close(ctx context.Context) error {
	if s.admin == nil {
		return nil
	}

	return s.admin.Close(ctx) //nolint:wrapcheck
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", s.HandleStatus)
	mux.HandleFunc("/replicasets/create", s.HandleCreate)
	mux.HandleFunc("/replicasets/drop", s.HandleDrop)
	mux.HandleFunc("/replicasets/add-seed-instance", s.HandleAddSeedInstance)
	mux.HandleFunc("/replicasets/add-instance", s.HandleAddInstance)
	mux.HandleFunc("/replicasets/remove-instance", s.HandleRemoveInstance)
	mux.HandleFunc("/replicasets/describe", s.HandleDescribe)
	mux.HandleFunc("/replicasets/status", s.HandleMemberStatus)
	mux.HandleFunc("/replicasets/list", s.HandleList)
	mux.Handle("/metrics", s.HandleMetrics())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			log.New("http").Trace(r.Method + " " + r.URL.String())
		} else {
			log.New("http").Info(r.Method + " " + r.URL.String())
		}
		mux.ServeHTTP(w, r)
	})
}

// probeResponseTimeout bounds requests that probe instances.
func (s *Server) probeResponseTimeout() time.Duration {
	return 2*s.probeTimeout + ServerResponseTimeout
}

// HandleStatus handles the /status endpoint.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ServerResponseTimeout)
	defer cancel()

	_, ok := readRequest[struct{}](w, r, http.MethodGet)
	if !ok {
		return
	}

	res := statusResponse{Version: Version}

	if s.admin != nil {
		res.Endpoint = s.admin.Endpoint().Address()
		res.ReplicaSetEndpoint = s.admin.IsReplicaSet()

		err := s.admin.Ping(ctx)
		if err != nil {
			res.result = failed(err)
			writeResponse(w, res)

			return
		}
	}

	sets, err := s.farm.ListReplicaSets(ctx)
	if err != nil {
		res.result = failed(err)
		writeResponse(w, res)

		return
	}

	res.Ok = true
	res.ReplicaSets = len(sets)

	writeResponse(w, res)
}

// HandleCreate handles the /replicasets/create endpoint.
func (s *Server) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ServerResponseTimeout)
	defer cancel()

	params, ok := readRequest[createRequest](w, r, http.MethodPost)
	if !ok {
		return
	}

	rs, err := s.farm.CreateReplicaSet(ctx, params.Name, params.Description)
	if err != nil {
		writeResponse(w, replicaSetResponse{result: failed(err)})

		return
	}

	desc, err := rs.Describe(ctx)
	if err != nil {
		writeResponse(w, replicaSetResponse{result: failed(err)})

		return
	}

	writeResponse(w, replicaSetResponse{result: result{Ok: true}, ReplicaSet: desc})
}

// HandleDrop handles the /replicasets/drop endpoint.
func (s *Server) HandleDrop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ServerResponseTimeout)
	defer cancel()

	params, ok := readRequest[dropRequest](w, r, http.MethodPost)
	if !ok {
		return
	}

	if params.Name == "" {
		writeResponse(w, dropResponse{result: failed(
			errors.Wrap(errors.ErrInvalidArgument, "replica set name required"))})

		return
	}

	err := s.farm.DropReplicaSet(ctx, params.Name, replset.DropOptions{
		DropDefault: params.DropDefault,
	})
	if err != nil {
		writeResponse(w, dropResponse{result: failed(err)})

		return
	}

	writeResponse(w, dropResponse{result: result{Ok: true}})
}

// HandleAddSeedInstance handles the /replicasets/add-seed-instance endpoint.
func (s *Server) HandleAddSeedInstance(w http.ResponseWriter, r *http.Request) {
	s.handleAdd(w, r, (*replset.ReplicaSet).AddSeedInstance)
}

// HandleAddInstance handles the /replicasets/add-instance endpoint.
func (s *Server) HandleAddInstance(w http.ResponseWriter, r *http.Request) {
	s.handleAdd(w, r, (*replset.ReplicaSet).AddInstance)
}

type addFunc func(*replset.ReplicaSet, context.Context, ...any) (*replset.Member, error)

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request, add addFunc) {
	ctx, cancel := context.WithTimeout(r.Context(), s.probeResponseTimeout())
	defer cancel()

	params, ok := readRequest[instanceRequest](w, r, http.MethodPost)
	if !ok {
		return
	}

	rs, err := s.farm.GetReplicaSet(ctx, params.ReplicaSet)
	if err != nil {
		writeResponse(w, instanceResponse{result: failed(err)})

		return
	}

	member, err := add(rs, ctx, params.args()...)
	if err != nil {
		writeResponse(w, instanceResponse{result: failed(err)})

		return
	}

	writeResponse(w, instanceResponse{result: result{Ok: true}, Member: member})
}

// HandleRemoveInstance handles the /replicasets/remove-instance endpoint.
func (s *Server) HandleRemoveInstance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ServerResponseTimeout)
	defer cancel()

	params, ok := readRequest[instanceRequest](w, r, http.MethodPost)
	if !ok {
		return
	}

	rs, err := s.farm.GetReplicaSet(ctx, params.ReplicaSet)
	if err != nil {
		writeResponse(w, instanceResponse{result: failed(err)})

		return
	}

	err = rs.RemoveInstance(ctx, params.args()...)
	if err != nil {
		writeResponse(w, instanceResponse{result: failed(err)})

		return
	}

	writeResponse(w, instanceResponse{result: result{Ok: true}})
}

// HandleDescribe handles the /replicasets/describe endpoint.
func (s *Server) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ServerResponseTimeout)
	defer cancel()

	_, ok := readRequest[struct{}](w, r, http.MethodGet)
	if !ok {
		return
	}

	rs, err := s.farm.GetReplicaSet(ctx, r.URL.Query().Get("name"))
	if err != nil {
		writeResponse(w, replicaSetResponse{result: failed(err)})

		return
	}

	desc, err := rs.Describe(ctx)
	if err != nil {
		writeResponse(w, replicaSetResponse{result: failed(err)})

		return
	}

	writeResponse(w, replicaSetResponse{result: result{Ok: true}, ReplicaSet: desc})
}

// HandleMemberStatus handles the /replicasets/status endpoint.
func (s *Server) HandleMemberStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.probeResponseTimeout())
	defer cancel()

	_, ok := readRequest[struct{}](w, r, http.MethodGet)
	if !ok {
		return
	}

	rs, err := s.farm.GetReplicaSet(ctx, r.URL.Query().Get("name"))
	if err != nil {
		writeResponse(w, memberStatusResponse{result: failed(err)})

		return
	}

	members, err := rs.Status(ctx)
	if err != nil {
		writeResponse(w, memberStatusResponse{result: failed(err), Name: rs.Name})

		return
	}

	writeResponse(w, memberStatusResponse{result: result{Ok: true}, Name: rs.Name, Members: members})
}

// HandleList handles the /replicasets/list endpoint.
func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), ServerResponseTimeout)
	defer cancel()

	_, ok := readRequest[struct{}](w, r, http.MethodGet)
	if !ok {
		return
	}

	sets, err := s.farm.ListReplicaSets(ctx)
	if err != nil {
		writeResponse(w, listResponse{result: failed(err)})

		return
	}

	res := listResponse{
		result:      result{Ok: true},
		ReplicaSets: make([]*replset.Description, 0, len(sets)),
	}

	for _, rs := range sets {
		desc, err := rs.Describe(ctx)
		if err != nil {
			writeResponse(w, listResponse{result: failed(err)})

			return
		}

		res.ReplicaSets = append(res.ReplicaSets, desc)
	}

	writeResponse(w, res)
}

// HandleMetrics returns the Prometheus metrics handler.
func (s *Server) HandleMetrics() http.Handler {
	return promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{})
}

// readRequest checks the method and size of r and decodes its JSON body, if any. On failure
// it writes the error response and returns false.
func readRequest[T any](w http.ResponseWriter, r *http.Request, method string) (T, bool) {
	var params T

	if r.Method != method {
		http.Error(w,
			http.StatusText(http.StatusMethodNotAllowed),
			http.StatusMethodNotAllowed)

		return params, false
	}

	if r.ContentLength > MaxRequestSize {
		http.Error(w,
			http.StatusText(http.StatusRequestEntityTooLarge),
			http.StatusRequestEntityTooLarge)

		return params, false
	}

	if r.ContentLength == 0 || r.Body == nil {
		return params, true
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestSize))
	if err != nil {
		http.Error(w,
			http.StatusText(http.StatusInternalServerError),
			http.StatusInternalServerError)

		return params, false
	}

	if len(data) == 0 {
		return params, true
	}

	err = json.Unmarshal(data, &params)
	if err != nil {
		http.Error(w,
			http.StatusText(http.StatusBadRequest),
			http.StatusBadRequest)

		return params, false
	}

	return params, true
}

// writeResponse writes the response as JSON to the ResponseWriter.
func writeResponse[T any](w http.ResponseWriter, resp T) {
	w.Header().Set("Content-Type", "application/json")

	err := json.NewEncoder(w).Encode(resp)
	if err != nil {
		http.Error(w,
			http.StatusText(http.StatusInternalServerError),
			http.StatusInternalServerError)
	}
}

//nolint:gochecknoglobals
var errorKinds = []struct {
	err  error
	kind string
}{
	{errors.ErrConnectionClosed, "connection_closed"},
	{errors.ErrConnection, "connection"},
	{errors.ErrTimeout, "timeout"},
	{errors.ErrNotFound, "not_found"},
	{errors.ErrAlreadyExists, "already_exists"},
	{errors.ErrUnboundParameter, "unbound_parameter"},
	{errors.ErrParse, "parse"},
	{errors.ErrInvalidArgument, "invalid_argument"},
	{errors.ErrConfirmationRequired, "confirmation_required"},
	{errors.ErrPrecondition, "precondition_failed"},
}

// errorKind returns the machine readable kind of err, or "internal".
func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return "internal"
}

// result is the common part of every response.
type result struct {
	// Ok indicates if the operation was successful.
	Ok bool `json:"ok"`
	// Err is the error message if the operation failed.
	Err string `json:"error,omitempty"`
	// Kind classifies Err.
	Kind string `json:"kind,omitempty"`
}

func failed(err error) result {
	return result{Err: err.Error(), Kind: errorKind(err)}
}

// statusResponse represents the response body for the /status endpoint.
type statusResponse struct {
	result

	Version string `json:"version"`
	// Endpoint is the address of the administrative session.
	Endpoint string `json:"endpoint,omitempty"`
	// ReplicaSetEndpoint indicates if the administrative endpoint is a replica set member.
	ReplicaSetEndpoint bool `json:"replicaSetEndpoint"`
	// ReplicaSets is the number of managed replica sets.
	ReplicaSets int `json:"replicaSets"`
}

// createRequest represents the request body for the /replicasets/create endpoint.
type createRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// dropRequest represents the request body for the /replicasets/drop endpoint.
type dropRequest struct {
	Name string `json:"name"`
	// DropDefault acknowledges dropping the default replica set.
	DropDefault bool `json:"dropDefault,omitempty"`
}

// instanceRequest represents the request body of the instance endpoints.
type instanceRequest struct {
	// ReplicaSet is the replica set name. Empty means the default one.
	ReplicaSet string `json:"replicaSet,omitempty"`
	// Instance is an address string or an object of connection options.
	Instance any `json:"instance,omitempty"`
}

func (r instanceRequest) args() []any {
	if r.Instance == nil {
		return nil
	}

	return []any{r.Instance}
}

// replicaSetResponse represents the response body for the create and describe endpoints.
type replicaSetResponse struct {
	result

	ReplicaSet *replset.Description `json:"replicaSet,omitempty"`
}

// dropResponse represents the response body for the /replicasets/drop endpoint.
type dropResponse struct {
	result
}

// instanceResponse represents the response body of the instance endpoints.
type instanceResponse struct {
	result

	Member *replset.Member `json:"member,omitempty"`
}

// memberStatusResponse represents the response body for the /replicasets/status endpoint.
type memberStatusResponse struct {
	result

	Name    string           `json:"name,omitempty"`
	Members []replset.Member `json:"members,omitempty"`
}

// listResponse represents the response body for the /replicasets/list endpoint.
type listResponse struct {
	result

	ReplicaSets []*replset.Description `json:"replicaSets"`
}
