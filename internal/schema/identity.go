package schema

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
)

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// FormatIdentity renders an identity value as a string. The zero value is
// reported as unset.
func FormatIdentity(v reflect.Value) (string, bool) {
	if !v.IsValid() || v.IsZero() {
		return "", false
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), true
	}
	if s, ok := v.Interface().(fmt.Stringer); ok {
		return s.String(), true
	}
	return fmt.Sprint(v.Interface()), true
}

// ParseIdentity stores id into the settable identity value v.
func ParseIdentity(v reflect.Value, id string) error {
	if !v.CanSet() {
		return fmt.Errorf("identity field of type %s is not settable", v.Type())
	}
	if v.CanAddr() && v.Addr().Type().Implements(textUnmarshalerType) {
		return v.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(id))
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(id)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(id, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse identity %q: %w", id, err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(id, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse identity %q: %w", id, err)
		}
		v.SetUint(n)
	default:
		return fmt.Errorf("unsupported identity type %s", v.Type())
	}
	return nil
}

// RelationIdentity returns the identity of the entity a relation field points
// to. A nil relation or an unsaved target reports ok=false.
func RelationIdentity(v reflect.Value) (string, bool) {
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return "", false
	}
	target, err := Of(v.Type().Elem())
	if err != nil {
		return "", false
	}
	return FormatIdentity(v.Elem().FieldByIndex(target.PK.Index))
}

// NewRelated builds a pointer of relation type t whose target only carries id.
func NewRelated(t reflect.Type, id string) (reflect.Value, error) {
	target, err := Of(t)
	if err != nil {
		return reflect.Value{}, err
	}
	ptr := target.New()
	if err := ParseIdentity(ptr.Elem().FieldByIndex(target.PK.Index), id); err != nil {
		return reflect.Value{}, err
	}
	return ptr, nil
}
