package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"field-history/internal/domain"
	"field-history/internal/schema"
)

// EntityStore is a generic host store. Entities are kept as JSON so callers
// never share memory with stored state. Integer identities are assigned from
// a sequence, any other identity kind gets a random UUID.
type EntityStore[T any] struct {
	mu     sync.RWMutex
	schema *schema.Schema
	rows   map[string][]byte
	order  []string
	seq    int64
}

func NewEntityStore[T any]() (*EntityStore[T], error) {
	s, err := schema.Of(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return &EntityStore[T]{schema: s, rows: make(map[string][]byte)}, nil
}

func (s *EntityStore[T]) Create(_ context.Context, entity *T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.schema.Identity(entity)
	if !ok {
		var err error
		if id, err = s.assignIdentity(entity); err != nil {
			return err
		}
	}
	if _, exists := s.rows[id]; exists {
		return fmt.Errorf("%s %s already exists", s.schema.Name, id)
	}
	if err := s.put(id, entity); err != nil {
		return err
	}
	s.order = append(s.order, id)
	return nil
}

func (s *EntityStore[T]) assignIdentity(entity *T) (string, error) {
	var id string
	switch s.schema.PK.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		s.seq++
		id = strconv.FormatInt(s.seq, 10)
	default:
		id = uuid.NewString()
	}
	if err := s.schema.SetIdentity(entity, id); err != nil {
		return "", fmt.Errorf("failed to assign %s identity: %w", s.schema.Name, err)
	}
	return id, nil
}

func (s *EntityStore[T]) Update(_ context.Context, entity *T) error {
	id, ok := s.schema.Identity(entity)
	if !ok {
		return domain.ErrInvalidEntityID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[id]; !exists {
		return domain.ErrEntityNotFound
	}
	return s.put(id, entity)
}

func (s *EntityStore[T]) Get(_ context.Context, id string) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrEntityNotFound
	}
	return decodeEntity[T](raw)
}

// List returns every entity in creation order.
func (s *EntityStore[T]) List(_ context.Context) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*T, 0, len(s.order))
	for _, id := range s.order {
		entity, err := decodeEntity[T](s.rows[id])
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (s *EntityStore[T]) put(id string, entity *T) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to store %s %s: %w", s.schema.Name, id, err)
	}
	s.rows[id] = raw
	return nil
}

func decodeEntity[T any](raw []byte) (*T, error) {
	entity := new(T)
	if err := json.Unmarshal(raw, entity); err != nil {
		return nil, err
	}
	return entity, nil
}
