// Package catalog publishes the schema of a dispatch table: which service and
// method IDs exist, their names, and the argument and result types they carry.
//
// Peers agree on IDs out of band; the catalog is where that agreement can be
// inspected at runtime. It holds no addresses and plays no part in routing.
package catalog

import (
	"context"
	"sort"

	"idrpc/registry"
)

// MethodSchema describes one method of a published service.
type MethodSchema struct {
	ID     uint16 `json:"id"`
	Name   string `json:"name"`
	Arg    string `json:"arg"`    // Go type name of the argument
	Result string `json:"result"` // Go type name of the result
}

// ServiceSchema describes one published service.
type ServiceSchema struct {
	ID      uint16         `json:"id"`
	Name    string         `json:"name"`
	Methods []MethodSchema `json:"methods"`
}

// Method returns the method with the given ID.
func (s ServiceSchema) Method(id uint16) (MethodSchema, bool) {
	i := sort.Search(len(s.Methods), func(i int) bool { return s.Methods[i].ID >= id })
	if i < len(s.Methods) && s.Methods[i].ID == id {
		return s.Methods[i], true
	}
	return MethodSchema{}, false
}

// Describe builds the schema of every service in t, ordered by service ID
// with methods ordered by method ID.
func Describe(t *registry.Table) []ServiceSchema {
	services := t.Services()
	out := make([]ServiceSchema, 0, len(services))
	for _, svc := range services {
		schema := ServiceSchema{ID: svc.ID(), Name: svc.Name()}
		for _, m := range svc.Methods() {
			schema.Methods = append(schema.Methods, MethodSchema{
				ID:     m.ID(),
				Name:   m.Name(),
				Arg:    m.ArgType().String(),
				Result: m.ResultType().String(),
			})
		}
		out = append(out, schema)
	}
	return out
}

// Publication is a live set of published schema entries.
type Publication interface {
	// Withdraw removes the entries this publication owns.
	Withdraw(ctx context.Context) error
}

// Publisher makes a schema visible for as long as the publisher keeps it alive.
// Entries expire ttl seconds after the publisher stops renewing them.
type Publisher interface {
	Publish(ctx context.Context, services []ServiceSchema, ttl int64) (Publication, error)
}

// Catalog is a Publisher that can also be read back.
type Catalog interface {
	Publisher
	List(ctx context.Context) ([]ServiceSchema, error)
	Lookup(ctx context.Context, serviceID uint16) (ServiceSchema, bool, error)
	Watch(ctx context.Context) <-chan []ServiceSchema
}
