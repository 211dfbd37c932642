// Package registry turns service declarations into a validated dispatch table.
//
// A Builder is the open phase: services are registered one by one and every
// declaration is checked for ID conflicts and call-convention mismatches.
// Finalize ends that phase for good and returns a Table, the read-only view
// the server dispatches from. A Table is never mutated, so any number of
// connections may read it concurrently without locking.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"idrpc/service"
)

var (
	ErrDuplicateServiceID     = errors.New("registry: duplicate service id")
	ErrDuplicateMethodID      = errors.New("registry: duplicate method id")
	ErrEmptyService           = errors.New("registry: service declares no methods")
	ErrInvalidMethodSignature = errors.New("registry: invalid method signature")
	ErrRegistryFinalized      = errors.New("registry: already finalized")
)

// Builder collects service registrations until Finalize is called.
type Builder struct {
	mu        sync.Mutex
	services  map[uint16]*ServiceDescriptor
	finalized bool
}

// NewBuilder returns an empty, open registry.
func NewBuilder() *Builder {
	return &Builder{services: make(map[uint16]*ServiceDescriptor)}
}

// Register validates and adds one service. On failure the builder is left
// exactly as it was before the call.
func (b *Builder) Register(serviceID uint16, name string, methods ...service.Method) (*ServiceDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.finalized {
		return nil, fmt.Errorf("%w: cannot register %s(%d)", ErrRegistryFinalized, name, serviceID)
	}
	if conflicted, ok := b.services[serviceID]; ok {
		return nil, fmt.Errorf("%w: %s has conflicted id (%d) with %s", ErrDuplicateServiceID, name, serviceID, conflicted.name)
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: %s(%d)", ErrEmptyService, name, serviceID)
	}

	// Build into a fresh descriptor and only publish it once everything checks out.
	desc := &ServiceDescriptor{
		id:      serviceID,
		name:    name,
		methods: make(map[uint16]*MethodDescriptor, len(methods)),
	}
	for _, m := range methods {
		if conflicted, ok := desc.methods[m.ID]; ok {
			return nil, fmt.Errorf("%w: in %s method %s has conflicted id (%d) with %s",
				ErrDuplicateMethodID, name, m.Name, m.ID, conflicted.name)
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("%w: in %s method %s: %v", ErrInvalidMethodSignature, name, m.Name, err)
		}
		desc.methods[m.ID] = &MethodDescriptor{
			id:         m.ID,
			name:       m.Name,
			fullName:   name + "." + m.Name,
			argType:    m.Handler.ArgType(),
			resultType: m.Handler.ResultType(),
			handler:    m.Handler,
		}
	}

	b.services[serviceID] = desc
	return desc, nil
}

// Finalize closes the builder and returns the dispatch table. It is one-way:
// later Register calls fail with ErrRegistryFinalized. Calling Finalize again
// returns a table over the same services.
func (b *Builder) Finalize() *Table {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalized = true

	t := &Table{
		services: make(map[uint16]*ServiceDescriptor, len(b.services)),
		methods:  make(map[uint32]*MethodDescriptor),
	}
	for id, svc := range b.services {
		t.services[id] = svc
		for mid, m := range svc.methods {
			t.methods[handlerKey(id, mid)] = m
		}
	}
	return t
}

func handlerKey(serviceID, methodID uint16) uint32 {
	return uint32(serviceID)<<16 | uint32(methodID)
}

// Table is the finalized, read-only dispatch table.
type Table struct {
	services map[uint16]*ServiceDescriptor
	methods  map[uint32]*MethodDescriptor
}

// Lookup returns the handler registered for (serviceID, methodID).
func (t *Table) Lookup(serviceID, methodID uint16) (service.Handler, bool) {
	m, ok := t.methods[handlerKey(serviceID, methodID)]
	if !ok {
		return nil, false
	}
	return m.handler, true
}

// Method returns the descriptor registered for (serviceID, methodID).
func (t *Table) Method(serviceID, methodID uint16) (*MethodDescriptor, bool) {
	m, ok := t.methods[handlerKey(serviceID, methodID)]
	return m, ok
}

// Service returns the descriptor registered under id.
func (t *Table) Service(id uint16) (*ServiceDescriptor, bool) {
	svc, ok := t.services[id]
	return svc, ok
}

// Services returns every registered service ordered by ID.
func (t *Table) Services() []*ServiceDescriptor {
	out := make([]*ServiceDescriptor, 0, len(t.services))
	for _, svc := range t.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Types returns the distinct argument and result types of every method,
// suitable for codec.Known.
func (t *Table) Types() []reflect.Type {
	seen := make(map[reflect.Type]struct{})
	var out []reflect.Type
	for _, svc := range t.Services() {
		for _, m := range svc.Methods() {
			for _, typ := range []reflect.Type{m.argType, m.resultType} {
				if _, ok := seen[typ]; !ok {
					seen[typ] = struct{}{}
					out = append(out, typ)
				}
			}
		}
	}
	return out
}
