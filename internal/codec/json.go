package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"field-history/internal/schema"
)

var ErrFieldNotPresent = errors.New("field not present in payload")

var jsonNull = json.RawMessage("null")

// entry mirrors one element of the serialized collection:
// [{"model": "...", "pk": "...", "fields": {...}}]
type entry struct {
	Model  string                     `json:"model"`
	PK     string                     `json:"pk"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// jsonCodec writes a singleton JSON collection. The plain variant only sees
// fields declared directly on the entity struct; the nested variant also
// walks fields promoted from embedded base structs.
type jsonCodec struct {
	name   string
	nested bool
}

// NewJSON returns the default codec.
func NewJSON() Codec {
	return &jsonCodec{name: NameJSON}
}

// NewNestedJSON returns the codec that includes inherited fields.
func NewNestedJSON() Codec {
	return &jsonCodec{name: NameJSONNested, nested: true}
}

func (c *jsonCodec) Name() string { return c.name }

func (c *jsonCodec) Supports(f *schema.Field) bool {
	return f != nil && (c.nested || f.Direct)
}

func (c *jsonCodec) Encode(s *schema.Schema, entity any, field string) (string, error) {
	f, ok := s.Field(field)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", schema.ErrUnknownField, s.Name, field)
	}
	if !c.Supports(f) {
		return "", unsupported(c, s, field)
	}

	v, err := s.Value(entity, field)
	if err != nil {
		return "", err
	}
	raw, err := encodeValue(f, v)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s.%s: %w", s.Name, field, err)
	}

	pk, _ := s.Identity(entity)
	out, err := json.Marshal([]entry{{
		Model:  s.Name,
		PK:     pk,
		Fields: map[string]json.RawMessage{field: raw},
	}})
	if err != nil {
		return "", fmt.Errorf("failed to encode %s.%s: %w", s.Name, field, err)
	}
	return string(out), nil
}

// encodeValue writes relations as the related identity only, so the related
// entity's own fields never end up in the payload.
func encodeValue(f *schema.Field, v reflect.Value) (json.RawMessage, error) {
	if f.Relation {
		id, ok := schema.RelationIdentity(v)
		if !ok {
			return jsonNull, nil
		}
		return json.Marshal(id)
	}
	return json.Marshal(v.Interface())
}

func (c *jsonCodec) Decode(s *schema.Schema, data string) (*Projection, error) {
	e, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}

	ptr := s.New()
	if e.PK != "" {
		if err := schema.ParseIdentity(ptr.Elem().FieldByIndex(s.PK.Index), e.PK); err != nil {
			return nil, fmt.Errorf("failed to decode %s pk: %w", s.Name, err)
		}
	}

	p := &Projection{Model: e.Model, PK: e.PK, schema: s, value: ptr, present: make(map[string]bool, len(e.Fields))}
	for name, raw := range e.Fields {
		f, ok := s.Field(name)
		if !ok {
			continue
		}
		target := ptr.Elem().FieldByIndex(f.Index)
		if err := decodeValue(f, target, raw); err != nil {
			return nil, fmt.Errorf("failed to decode %s.%s: %w", s.Name, name, err)
		}
		p.present[name] = true
	}
	return p, nil
}

func decodeValue(f *schema.Field, target reflect.Value, raw json.RawMessage) error {
	if !f.Relation {
		return json.Unmarshal(raw, target.Addr().Interface())
	}
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		target.Set(reflect.Zero(f.Type))
		return nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return err
	}
	related, err := schema.NewRelated(f.Type, id)
	if err != nil {
		return err
	}
	target.Set(related)
	return nil
}

func decodeEntry(data string) (entry, error) {
	var entries []entry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return entry{}, fmt.Errorf("failed to decode field history payload: %w", err)
	}
	if len(entries) != 1 {
		return entry{}, fmt.Errorf("failed to decode field history payload: want 1 object, got %d", len(entries))
	}
	return entries[0], nil
}

// RenameField moves the payload key from to to. Payloads without the key are
// returned unchanged.
func (c *jsonCodec) RenameField(data, from, to string) (string, error) {
	e, err := decodeEntry(data)
	if err != nil {
		return "", err
	}
	raw, ok := e.Fields[from]
	if !ok {
		return data, nil
	}
	delete(e.Fields, from)
	e.Fields[to] = raw

	out, err := json.Marshal([]entry{e})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Projection is the partial entity reconstructed from a payload.
type Projection struct {
	Model string
	PK    string

	schema  *schema.Schema
	value   reflect.Value
	present map[string]bool
}

// NewProjection wraps an already decoded entity. present lists the fields the
// payload carried.
func NewProjection(s *schema.Schema, entity any, present ...string) (*Projection, error) {
	if _, err := s.Struct(entity); err != nil {
		return nil, err
	}
	pk, _ := s.Identity(entity)
	p := &Projection{Model: s.Name, PK: pk, schema: s, value: reflect.ValueOf(entity), present: make(map[string]bool)}
	for _, name := range present {
		p.present[name] = true
	}
	return p, nil
}

// ReadField returns the decoded value of name.
func (p *Projection) ReadField(name string) (any, error) {
	if !p.present[name] {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotPresent, name)
	}
	f, _ := p.schema.Field(name)
	return p.value.Elem().FieldByIndex(f.Index).Interface(), nil
}

// Entity returns the projected entity as a pointer to the schema type.
func (p *Projection) Entity() any {
	return p.value.Interface()
}
