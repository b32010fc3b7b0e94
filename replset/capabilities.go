package replset

import (
	"context"
	"slices"
)

//nolint:gochecknoglobals
var replicaSetCapabilities = []string{
	"name", "get_name", "add_seed_instance", "add_instance", "remove_instance", "members", "status", "describe",
}

// Capabilities lists the public operations of a replica set handle.
func (rs *ReplicaSet) Capabilities() []string {
	return slices.Clone(replicaSetCapabilities)
}

// Description is a serializable summary of a replica set.
type Description struct {
	Name         string   `json:"name"`
	UUID         string   `json:"uuid"`
	Description  string   `json:"description,omitempty"`
	Default      bool     `json:"default"`
	State        State    `json:"state"`
	User         string   `json:"user,omitempty"`
	AuthMethod   string   `json:"authMethod,omitempty"`
	Members      []Member `json:"members"`
	CreatedAt    string   `json:"createdAt"`
	Capabilities []string `json:"capabilities"`
}

// Describe returns the current description of the replica set.
func (rs *ReplicaSet) Describe(ctx context.Context) (*Description, error) {
	rs.mgr.mu.Lock()
	defer rs.mgr.mu.Unlock()

	rec, err := rs.load(ctx)
	if err != nil {
		return nil, err
	}

	desc := &Description{
		Name:         rec.Name,
		UUID:         rec.UUID,
		Description:  rec.Description,
		Default:      rec.Default,
		State:        stateOf(rec),
		Members:      slices.Clone(rec.Members),
		CreatedAt:    rec.CreatedAt,
		Capabilities: rs.Capabilities(),
	}

	if desc.Members == nil {
		desc.Members = []Member{}
	}

	if rec.Auth != nil {
		desc.User = rec.Auth.User
		desc.AuthMethod = rec.Auth.AuthMethod
	}

	return desc, nil
}
