package docstore

import "slices"

// Capable is implemented by handles that list their public operations for help and tooling.
type Capable interface {
	Capabilities() []string
}

//nolint:gochecknoglobals
var (
	sessionCapabilities = []string{
		"get_schema", "create_schema", "get_schemas", "drop_schema", "drop_collection", "ping", "close",
	}
	schemaCapabilities = []string{
		"name", "get_session", "create_collection", "get_collection", "get_collections", "drop_collection",
	}
	collectionCapabilities = []string{
		"name", "get_schema", "add", "find", "remove", "count", "get_one", "replace_one",
	}
)

func (s *Session) Capabilities() []string { return slices.Clone(sessionCapabilities) }
func (sc *Schema) Capabilities() []string { return slices.Clone(schemaCapabilities) }
func (c *Collection) Capabilities() []string { return slices.Clone(collectionCapabilities) }
