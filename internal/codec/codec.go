// Package codec serializes a single tracked field of an entity into a durable
// string and reads it back.
package codec

import (
	"fmt"
	"sort"
	"sync"

	"field-history/internal/domain"
	"field-history/internal/schema"
)

const (
	NameJSON       = "json"
	NameJSONNested = "json_nested"
	DefaultName    = NameJSON
)

// Codec encodes exactly one field of an entity, as if the entity only had
// that field, and decodes the result into a projection.
type Codec interface {
	Name() string
	// Supports reports whether the codec can see f at all.
	Supports(f *schema.Field) bool
	Encode(s *schema.Schema, entity any, field string) (string, error)
	Decode(s *schema.Schema, data string) (*Projection, error)
}

// Renamer is implemented by codecs whose payload embeds the field name.
type Renamer interface {
	RenameField(data, from, to string) (string, error)
}

type (
	EncodeFunc func(s *schema.Schema, entity any, field string) (string, error)
	DecodeFunc func(s *schema.Schema, data string) (*Projection, error)
)

// funcCodec adapts a pair of functions to Codec. It supports every field.
type funcCodec struct {
	name   string
	encode EncodeFunc
	decode DecodeFunc
}

func (c funcCodec) Name() string                { return c.name }
func (c funcCodec) Supports(*schema.Field) bool { return true }

func (c funcCodec) Encode(s *schema.Schema, entity any, field string) (string, error) {
	return c.encode(s, entity, field)
}

func (c funcCodec) Decode(s *schema.Schema, data string) (*Projection, error) {
	return c.decode(s, data)
}

// Registry maps codec names to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// Default is the process wide registry consulted by name based configuration.
var Default = NewRegistry()

// NewRegistry returns a registry holding the built-in json codecs.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	r.codecs[NameJSON] = NewJSON()
	r.codecs[NameJSONNested] = NewNestedJSON()
	return r
}

// Register adds or replaces a codec under name.
func (r *Registry) Register(name string, c Codec) error {
	if name == "" {
		return domain.NewConfigurationError("register codec", "codec name is required")
	}
	if c == nil {
		return domain.NewConfigurationError("register codec", "codec %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[name] = c
	return nil
}

// RegisterFuncs registers a codec built from an encode and a decode function.
func (r *Registry) RegisterFuncs(name string, encode EncodeFunc, decode DecodeFunc) error {
	if encode == nil || decode == nil {
		return domain.NewConfigurationError("register codec", "codec %q needs both encode and decode", name)
	}
	return r.Register(name, funcCodec{name: name, encode: encode, decode: decode})
}

// Get returns the codec registered under name.
func (r *Registry) Get(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, domain.NewConfigurationError("get codec", "unknown codec %q (registered: %v)", name, r.namesLocked())
	}
	return c, nil
}

// Names lists the registered codec names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get looks a codec up in the Default registry.
func Get(name string) (Codec, error) {
	return Default.Get(name)
}

func unsupported(c Codec, s *schema.Schema, field string) error {
	return fmt.Errorf("codec %s cannot encode %s.%s: field is inherited from an embedded type, use %s",
		c.Name(), s.Name, field, NameJSONNested)
}
