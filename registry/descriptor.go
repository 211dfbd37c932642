package registry

import (
	"reflect"
	"sort"

	"idrpc/service"
)

// ServiceDescriptor is one registered service. It is immutable.
type ServiceDescriptor struct {
	id      uint16
	name    string
	methods map[uint16]*MethodDescriptor
}

func (s *ServiceDescriptor) ID() uint16   { return s.id }
func (s *ServiceDescriptor) Name() string { return s.name }

// Method returns the method registered under id.
func (s *ServiceDescriptor) Method(id uint16) (*MethodDescriptor, bool) {
	m, ok := s.methods[id]
	return m, ok
}

// Methods returns the service's methods ordered by ID.
func (s *ServiceDescriptor) Methods() []*MethodDescriptor {
	out := make([]*MethodDescriptor, 0, len(s.methods))
	for _, m := range s.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// MethodDescriptor is one callable method. It is immutable.
type MethodDescriptor struct {
	id         uint16
	name       string
	fullName   string
	argType    reflect.Type
	resultType reflect.Type
	handler    service.Handler
}

func (m *MethodDescriptor) ID() uint16               { return m.id }
func (m *MethodDescriptor) Name() string             { return m.name }
func (m *MethodDescriptor) FullName() string         { return m.fullName }
func (m *MethodDescriptor) ArgType() reflect.Type    { return m.argType }
func (m *MethodDescriptor) ResultType() reflect.Type { return m.resultType }
func (m *MethodDescriptor) Handler() service.Handler { return m.handler }
