package fieldhistory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"field-history/internal/codec"
	"field-history/internal/domain"
)

// Tracker is the type-erased view of a Coordinator used by maintenance.
type Tracker interface {
	EntityType() string
	Fields() []string
	Codec() codec.Codec
	HistoryStore() HistoryStore
	// InitialRecords returns one unsaved record per stored entity and tracked
	// field, valued from the entity's current state.
	InitialRecords(ctx context.Context) ([]*domain.HistoryRecord, error)
}

// Registry holds every coordinator set up in a process.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Tracker
	byType map[reflect.Type]Tracker
}

// DefaultRegistry is used unless WithRegistry is given.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tracker),
		byType: make(map[reflect.Type]Tracker),
	}
}

func (r *Registry) add(t reflect.Type, tr Tracker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byType[t]; ok {
		return domain.NewConfigurationError("register", "%s is already tracked", t)
	}
	if _, ok := r.byName[tr.EntityType()]; ok {
		return domain.NewConfigurationError("register", "entity type %q is already used by another tracked type", tr.EntityType())
	}
	r.byType[t] = tr
	r.byName[tr.EntityType()] = tr
	return nil
}

// Lookup returns the tracker registered under entityType.
func (r *Registry) Lookup(entityType string) (Tracker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tr, ok := r.byName[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnregisteredType, entityType)
	}
	return tr, nil
}

// Trackers returns every registered tracker, sorted by entity type.
func (r *Registry) Trackers() []Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tracker, 0, len(r.byName))
	for _, tr := range r.byName {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityType() < out[j].EntityType() })
	return out
}

// For returns the coordinator registered for T.
func For[T any](r *Registry) (*Coordinator[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	r.mu.RLock()
	tr, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnregisteredType, t)
	}
	return tr.(*Coordinator[T]), nil
}
