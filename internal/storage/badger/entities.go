package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"field-history/internal/domain"
	"field-history/internal/schema"
)

const (
	entityKeyPrefix = "ent/"
	entitySeqPrefix = "ent-seq/"
)

// EntityStore keeps host entities of type T as JSON under
//
//	ent/<entity type>/<entity id>
//
// Integer identities come from a per-type sequence that survives restarts,
// any other identity kind gets a random UUID.
type EntityStore[T any] struct {
	db     *badger.DB
	schema *schema.Schema
	seq    *badger.Sequence
	prefix []byte
}

type storedEntity struct {
	Seq    uint64          `json:"seq"`
	Entity json.RawMessage `json:"entity"`
}

// NewEntityStore does not take ownership of db; Close only releases the
// store's sequence.
func NewEntityStore[T any](db *badger.DB) (*EntityStore[T], error) {
	s, err := schema.Of(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	seq, err := db.GetSequence([]byte(entitySeqPrefix+escape(s.Name)), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s sequence: %w", s.Name, err)
	}
	return &EntityStore[T]{
		db:     db,
		schema: s,
		seq:    seq,
		prefix: []byte(entityKeyPrefix + escape(s.Name) + "/"),
	}, nil
}

func (s *EntityStore[T]) Close() error {
	if err := s.seq.Release(); err != nil {
		return fmt.Errorf("failed to release %s sequence: %w", s.schema.Name, err)
	}
	return nil
}

func (s *EntityStore[T]) key(id string) []byte {
	return append(append([]byte(nil), s.prefix...), escape(id)...)
}

func (s *EntityStore[T]) Create(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate %s id: %w", s.schema.Name, err)
	}

	id, ok := s.schema.Identity(entity)
	if !ok {
		if id, err = s.assignIdentity(entity, n+1); err != nil {
			return err
		}
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(s.key(id))
		switch {
		case err == nil:
			return fmt.Errorf("%s %s already exists", s.schema.Name, id)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return s.put(txn, id, n, entity)
	})
}

func (s *EntityStore[T]) assignIdentity(entity *T, n uint64) (string, error) {
	var id string
	switch s.schema.PK.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		id = strconv.FormatUint(n, 10)
	default:
		id = uuid.NewString()
	}
	if err := s.schema.SetIdentity(entity, id); err != nil {
		return "", fmt.Errorf("failed to assign %s identity: %w", s.schema.Name, err)
	}
	return id, nil
}

func (s *EntityStore[T]) Update(ctx context.Context, entity *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, ok := s.schema.Identity(entity)
	if !ok {
		return domain.ErrInvalidEntityID
	}

	return s.db.Update(func(txn *badger.Txn) error {
		current, err := s.read(txn, id)
		if err != nil {
			return err
		}
		return s.put(txn, id, current.Seq, entity)
	})
}

func (s *EntityStore[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var entity *T
	err := s.db.View(func(txn *badger.Txn) error {
		stored, err := s.read(txn, id)
		if err != nil {
			return err
		}
		entity, err = decodeEntity[T](stored.Entity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// List returns every entity in creation order.
func (s *EntityStore[T]) List(ctx context.Context) ([]*T, error) {
	var rows []storedEntity
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var stored storedEntity
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			rows = append(rows, stored)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.schema.Name, err)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	out := make([]*T, 0, len(rows))
	for _, row := range rows {
		entity, err := decodeEntity[T](row.Entity)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (s *EntityStore[T]) read(txn *badger.Txn, id string) (storedEntity, error) {
	var stored storedEntity
	item, err := txn.Get(s.key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return stored, domain.ErrEntityNotFound
	}
	if err != nil {
		return stored, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	})
	if err != nil {
		return stored, fmt.Errorf("failed to decode %s %s: %w", s.schema.Name, id, err)
	}
	return stored, nil
}

func (s *EntityStore[T]) put(txn *badger.Txn, id string, seq uint64, entity *T) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to store %s %s: %w", s.schema.Name, id, err)
	}
	value, err := json.Marshal(storedEntity{Seq: seq, Entity: raw})
	if err != nil {
		return fmt.Errorf("failed to store %s %s: %w", s.schema.Name, id, err)
	}
	return txn.Set(s.key(id), value)
}

func decodeEntity[T any](raw []byte) (*T, error) {
	entity := new(T)
	if err := json.Unmarshal(raw, entity); err != nil {
		return nil, err
	}
	return entity, nil
}
