// Package schema derives the field layout of entity structs: field names,
// which fields are declared directly versus promoted from embedded base
// structs, which fields are relations, and where the identity lives.
package schema

import (
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"
	"sync"
)

const (
	tagHistory = "history"
	tagJSON    = "json"
	tagPK      = "pk"
)

var (
	ErrNotStruct    = errors.New("entity type must be a struct")
	ErrNoIdentity   = errors.New(`entity type has no field tagged history:"pk"`)
	ErrUnknownField = errors.New("unknown field")
	ErrWrongType    = errors.New("entity does not match schema type")
	ErrEmbeddedPtr  = errors.New("embedded base structs must be embedded by value")
)

// Field describes one exported field of an entity struct.
type Field struct {
	Name     string
	GoName   string
	Index    []int
	Type     reflect.Type
	Direct   bool
	Relation bool
}

// Schema is the reflected layout of a single concrete struct type.
type Schema struct {
	Type   reflect.Type
	Name   string
	PK     *Field
	fields map[string]*Field
	order  []*Field
}

var cache sync.Map

// Of returns the schema for t. Pointer types are dereferenced.
func Of(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, ErrNotStruct
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, t)
	}
	if cached, ok := cache.Load(t); ok {
		return cached.(*Schema), nil
	}

	s := &Schema{
		Type:   t,
		Name:   TypeName(t),
		fields: make(map[string]*Field),
	}
	if err := s.collect(); err != nil {
		return nil, err
	}
	if s.PK == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoIdentity, t)
	}

	actual, _ := cache.LoadOrStore(t, s)
	return actual.(*Schema), nil
}

// For returns the schema of the struct type pointed to by entity.
func For(entity any) (*Schema, error) {
	return Of(reflect.TypeOf(entity))
}

// TypeName is the default entity type discriminator for t:
// "<package>.<type>", lower-cased.
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pkg := path.Base(t.PkgPath())
	if pkg == "." || pkg == "" {
		return strings.ToLower(t.Name())
	}
	return strings.ToLower(pkg + "." + t.Name())
}

type level struct {
	t      reflect.Type
	prefix []int
	depth  int
}

// collect walks the struct breadth first so shallower fields shadow deeper
// ones, matching Go's promotion rules. An embedded pointer to a struct is
// rejected since its fields cannot be reached while the pointer is nil.
func (s *Schema) collect() error {
	queue := []level{{t: s.Type}}
	seen := map[reflect.Type]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur.t] {
			continue
		}
		seen[cur.t] = true

		for i := 0; i < cur.t.NumField(); i++ {
			sf := cur.t.Field(i)
			index := append(append([]int(nil), cur.prefix...), i)

			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				queue = append(queue, level{t: sf.Type, prefix: index, depth: cur.depth + 1})
				continue
			}
			if sf.Anonymous && sf.Type.Kind() == reflect.Pointer && sf.Type.Elem().Kind() == reflect.Struct {
				return fmt.Errorf("%w: %s embeds %s", ErrEmbeddedPtr, s.Type, sf.Type)
			}
			if !sf.IsExported() {
				continue
			}

			name, ok := fieldName(sf)
			if !ok {
				continue
			}
			if _, exists := s.fields[name]; exists {
				continue
			}

			f := &Field{
				Name:     name,
				GoName:   sf.Name,
				Index:    index,
				Type:     sf.Type,
				Direct:   cur.depth == 0,
				Relation: isRelation(sf.Type),
			}
			s.fields[name] = f
			s.order = append(s.order, f)

			if s.PK == nil && hasTagOption(sf.Tag.Get(tagHistory), tagPK) {
				s.PK = f
			}
		}
	}
	return nil
}

func fieldName(sf reflect.StructField) (string, bool) {
	tag := sf.Tag.Get(tagJSON)
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return sf.Name, true
}

func hasTagOption(tag, option string) bool {
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == option {
			return true
		}
	}
	return false
}

var identityCache sync.Map

// isRelation reports whether t is a pointer to an entity struct.
func isRelation(t reflect.Type) bool {
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return false
	}
	return hasIdentity(t.Elem())
}

func hasIdentity(t reflect.Type) bool {
	if cached, ok := identityCache.Load(t); ok {
		return cached.(bool)
	}
	found := false
	queue := []reflect.Type{t}
	for len(queue) > 0 && !found {
		cur := queue[0]
		queue = queue[1:]
		for i := 0; i < cur.NumField(); i++ {
			sf := cur.Field(i)
			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				queue = append(queue, sf.Type)
				continue
			}
			if sf.IsExported() && hasTagOption(sf.Tag.Get(tagHistory), tagPK) {
				found = true
				break
			}
		}
	}
	identityCache.Store(t, found)
	return found
}

// WithName returns a copy of s that reports name as its entity type. The
// field layout is shared with s.
func (s *Schema) WithName(name string) *Schema {
	out := *s
	out.Name = name
	return &out
}

// Field returns the named field.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns all fields in declaration order, direct fields first.
func (s *Schema) Fields() []*Field {
	out := make([]*Field, len(s.order))
	copy(out, s.order)
	return out
}

// Has reports whether the schema has a field called name.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Struct returns the addressable struct value behind entity, which must be a
// non-nil pointer to the schema type.
func (s *Schema) Struct(entity any) (reflect.Value, error) {
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Type() != s.Type {
		return reflect.Value{}, fmt.Errorf("%w: want *%s, got %T", ErrWrongType, s.Type, entity)
	}
	return v.Elem(), nil
}

// Value returns the live value of the named field.
func (s *Schema) Value(entity any, name string) (reflect.Value, error) {
	f, ok := s.fields[name]
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, s.Name, name)
	}
	sv, err := s.Struct(entity)
	if err != nil {
		return reflect.Value{}, err
	}
	return sv.FieldByIndex(f.Index), nil
}

// Identity returns the entity's identity as a string. ok is false when the
// identity field still holds its zero value.
func (s *Schema) Identity(entity any) (string, bool) {
	sv, err := s.Struct(entity)
	if err != nil {
		return "", false
	}
	return FormatIdentity(sv.FieldByIndex(s.PK.Index))
}

// SetIdentity parses id into the entity's identity field.
func (s *Schema) SetIdentity(entity any, id string) error {
	sv, err := s.Struct(entity)
	if err != nil {
		return err
	}
	return ParseIdentity(sv.FieldByIndex(s.PK.Index), id)
}

// New allocates a zero entity of the schema type.
func (s *Schema) New() reflect.Value {
	return reflect.New(s.Type)
}
