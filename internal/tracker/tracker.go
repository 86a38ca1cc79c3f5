// Package tracker holds the per-instance baseline of tracked field values and
// answers which of them changed since the last successful write.
package tracker

import (
	"fmt"
	"reflect"

	"field-history/internal/schema"
)

// InstanceTracker belongs to exactly one entity instance.
type InstanceTracker struct {
	schema   *schema.Schema
	fields   []string
	tracked  map[string]*schema.Field
	entity   any
	baseline map[string]any
}

// New binds a tracker to entity. fields must already be validated against s;
// the baseline starts empty until CaptureBaseline is called.
func New(s *schema.Schema, fields []string, entity any) *InstanceTracker {
	if _, err := s.Struct(entity); err != nil {
		panic(fmt.Sprintf("tracker: %v", err))
	}
	t := &InstanceTracker{
		schema:   s,
		fields:   fields,
		tracked:  make(map[string]*schema.Field, len(fields)),
		entity:   entity,
		baseline: map[string]any{},
	}
	for _, name := range fields {
		f, ok := s.Field(name)
		if !ok {
			panic(fmt.Sprintf("tracker: %s has no field %q", s.Name, name))
		}
		t.tracked[name] = f
	}
	return t
}

// Entity returns the tracked instance.
func (t *InstanceTracker) Entity() any {
	return t.entity
}

// Fields returns the tracked field names.
func (t *InstanceTracker) Fields() []string {
	out := make([]string, len(t.fields))
	copy(out, t.fields)
	return out
}

// CaptureBaseline snapshots the named fields, or every tracked field when
// none are given. An entity without identity gets an empty baseline so that
// its first write records every field.
func (t *InstanceTracker) CaptureBaseline(fields ...string) {
	if _, ok := t.schema.Identity(t.entity); !ok {
		t.baseline = map[string]any{}
		return
	}

	if len(fields) == 0 {
		baseline := make(map[string]any, len(t.fields))
		for _, name := range t.fields {
			baseline[name] = snapshot(t.tracked[name], t.live(name))
		}
		t.baseline = baseline
		return
	}

	for _, name := range fields {
		t.baseline[name] = snapshot(t.field(name), t.live(name))
	}
}

// CurrentValue reads the live value from the entity.
func (t *InstanceTracker) CurrentValue(field string) any {
	t.field(field)
	return t.live(field).Interface()
}

// Previous returns the baseline value. Relations come back as a fresh
// instance carrying only the related identity.
func (t *InstanceTracker) Previous(field string) (any, bool) {
	f := t.field(field)
	prev, ok := t.baseline[field]
	if !ok {
		return nil, false
	}
	ref, isRef := prev.(relationRef)
	if !isRef {
		return prev, true
	}
	if !ref.valid {
		return reflect.Zero(f.Type).Interface(), true
	}
	related, err := schema.NewRelated(f.Type, ref.id)
	if err != nil {
		return nil, false
	}
	return related.Interface(), true
}

// HasChanged compares the baseline with the live value.
func (t *InstanceTracker) HasChanged(field string) bool {
	f := t.field(field)
	prev, ok := t.baseline[field]
	if !ok && f.Relation {
		prev = relationRef{}
	}
	return !Equal(prev, normalize(f, t.live(field)))
}

// Changed lists the tracked fields whose live value differs from the
// baseline, in registration order.
func (t *InstanceTracker) Changed() []string {
	var changed []string
	for _, name := range t.fields {
		if t.HasChanged(name) {
			changed = append(changed, name)
		}
	}
	return changed
}

func (t *InstanceTracker) field(name string) *schema.Field {
	f, ok := t.tracked[name]
	if !ok {
		panic(fmt.Sprintf("tracker: field %q is not tracked on %s", name, t.schema.Name))
	}
	return f
}

func (t *InstanceTracker) live(name string) reflect.Value {
	v, err := t.schema.Value(t.entity, name)
	if err != nil {
		panic(fmt.Sprintf("tracker: %v", err))
	}
	return v
}
