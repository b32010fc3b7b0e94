// Package sel decides which schemas and collections a session may see.
package sel

import (
	"slices"
	"strings"
)

// SystemSchemas are server-internal databases hidden from schema listings.
//
//nolint:gochecknoglobals
var SystemSchemas = []string{"admin", "config", "local"}

// IsSystemSchema reports whether name is a server-internal database.
func IsSystemSchema(name string) bool {
	return slices.Contains(SystemSchemas, name)
}

// IsSystemCollection reports whether name is a server-internal collection.
func IsSystemCollection(name string) bool {
	return strings.HasPrefix(name, "system.")
}

// Filter selects namespaces by "schema.collection" patterns. A pattern "schema" or
// "schema.*" covers every collection of the schema. Exclusion wins over inclusion, and a
// non-empty include list denies everything it does not name.
type Filter struct {
	include rules
	exclude rules
	hidden  []string
}

// New builds a filter. hidden lists schemas that are never visible regardless of patterns.
func New(include, exclude []string, hidden ...string) *Filter {
	return &Filter{
		include: parseRules(include),
		exclude: parseRules(exclude),
		hidden:  hidden,
	}
}

// AllowSchema reports whether at least some collections of db are visible.
func (f *Filter) AllowSchema(db string) bool {
	if f == nil {
		return !IsSystemSchema(db)
	}

	if IsSystemSchema(db) || slices.Contains(f.hidden, db) {
		return false
	}

	if colls, ok := f.exclude[db]; ok && len(colls) == 0 {
		return false
	}

	if len(f.include) == 0 {
		return true
	}

	_, ok := f.include[db]

	return ok
}

// Allow reports whether db.coll is visible.
func (f *Filter) Allow(db, coll string) bool {
	if IsSystemCollection(coll) {
		return false
	}

	if f == nil {
		return !IsSystemSchema(db)
	}

	if !f.AllowSchema(db) {
		return false
	}

	if f.exclude.match(db, coll) {
		return false
	}

	return len(f.include) == 0 || f.include.match(db, coll)
}

// rules maps a schema to its listed collections. An empty list covers the whole schema.
type rules map[string][]string

func (r rules) match(db, coll string) bool {
	colls, ok := r[db]
	if !ok {
		return false
	}

	return len(colls) == 0 || slices.Contains(colls, coll)
}

func parseRules(patterns []string) rules {
	r := make(rules)

	for _, pattern := range patterns {
		db, coll, _ := strings.Cut(pattern, ".")
		if db == "" {
			continue
		}

		if colls, ok := r[db]; ok && len(colls) == 0 {
			continue
		}

		if coll == "" || coll == "*" {
			r[db] = nil

			continue
		}

		r[db] = append(r[db], coll)
	}

	return r
}
