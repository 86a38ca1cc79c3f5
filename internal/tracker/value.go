package tracker

import (
	"reflect"

	"github.com/mohae/deepcopy"

	"field-history/internal/schema"
)

// HistorySnapshotter is implemented by values that must not be deep copied
// as-is, typically because they hold a back-reference to their owner.
type HistorySnapshotter interface {
	HistorySnapshot() any
}

// relationRef is what a baseline keeps for a relation field: the identity of
// the related entity, never the entity itself.
type relationRef struct {
	id    string
	valid bool
}

// snapshot returns a copy of v that shares no mutable state with the entity.
func snapshot(f *schema.Field, v reflect.Value) any {
	if f.Relation {
		id, ok := schema.RelationIdentity(v)
		return relationRef{id: id, valid: ok}
	}
	if !v.IsValid() {
		return nil
	}
	if v.Kind() == reflect.Pointer && v.IsNil() {
		return v.Interface()
	}

	value := v.Interface()
	if s, ok := value.(HistorySnapshotter); ok {
		return s.HistorySnapshot()
	}
	if isOpaque(v.Type()) {
		return value
	}
	if v.Kind() == reflect.Pointer && isOpaque(v.Type().Elem()) {
		cp := reflect.New(v.Type().Elem())
		cp.Elem().Set(v.Elem())
		return cp.Interface()
	}
	return deepcopy.Copy(value)
}

// isOpaque reports struct types with no exported fields such as time.Time
// or decimal.Decimal. They are immutable values and a reflective deep copy
// would zero them.
func isOpaque(t reflect.Type) bool {
	if t.Kind() != reflect.Struct || t.NumField() == 0 {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).IsExported() {
			return false
		}
	}
	return true
}

// normalize reduces a live value the same way snapshot does, without
// copying.
func normalize(f *schema.Field, v reflect.Value) any {
	if f.Relation {
		id, ok := schema.RelationIdentity(v)
		return relationRef{id: id, valid: ok}
	}
	if !v.IsValid() {
		return nil
	}
	value := v.Interface()
	if s, ok := value.(HistorySnapshotter); ok && !(v.Kind() == reflect.Pointer && v.IsNil()) {
		return s.HistorySnapshot()
	}
	return value
}

// Equal compares two field values by value: nil and typed nil pointers are
// equal, pointers compare their targets, types with an Equal method use it,
// everything else falls back to reflect.DeepEqual.
func Equal(a, b any) bool {
	return equalValues(reflect.ValueOf(a), reflect.ValueOf(b))
}

func equalValues(a, b reflect.Value) bool {
	aNil, bNil := isNil(a), isNil(b)
	if aNil || bNil {
		return aNil == bNil
	}

	if a.Kind() == reflect.Interface {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface {
		b = b.Elem()
	}
	if a.Type() != b.Type() {
		return false
	}

	if eq, ok := equalMethod(a, b); ok {
		return eq
	}
	if a.Kind() == reflect.Pointer {
		return equalValues(a.Elem(), b.Elem())
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// equalMethod calls a.Equal(b) when a's type has a method of the form
// func (T) Equal(T) bool.
func equalMethod(a, b reflect.Value) (bool, bool) {
	m := a.MethodByName("Equal")
	if !m.IsValid() {
		return false, false
	}
	mt := m.Type()
	if mt.NumIn() != 1 || mt.NumOut() != 1 || mt.In(0) != a.Type() || mt.Out(0).Kind() != reflect.Bool {
		return false, false
	}
	return m.Call([]reflect.Value{b})[0].Bool(), true
}
