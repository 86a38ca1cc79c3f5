package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"field-history/internal/domain"
)

const (
	keyPrefix    = "fh/"
	sequenceKey  = "fh-sequence"
	seqBandwidth = 100
)

// HistoryStore is a HistoryStore backed by BadgerDB.
type HistoryStore struct {
	db  *badger.DB
	seq *badger.Sequence

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewHistoryStore takes ownership of db; Close closes it.
func NewHistoryStore(db *badger.DB) (*HistoryStore, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		return nil, fmt.Errorf("failed to open history sequence: %w", err)
	}
	return &HistoryStore{db: db, seq: seq, now: time.Now}, nil
}

func (s *HistoryStore) Close() error {
	if err := s.seq.Release(); err != nil {
		return fmt.Errorf("failed to release history sequence: %w", err)
	}
	return s.db.Close()
}

// PingContext fails once the database has been closed.
func (s *HistoryStore) PingContext(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func escape(part string) string {
	return url.PathEscape(part)
}

func entityPrefix(entityType, entityID string) []byte {
	return []byte(keyPrefix + escape(entityType) + "/" + escape(entityID) + "/")
}

func fieldPrefix(entityType, entityID, field string) []byte {
	return append(entityPrefix(entityType, entityID), []byte(escape(field)+"/")...)
}

func recordKey(r domain.HistoryRecord) []byte {
	return append(fieldPrefix(r.EntityType, r.EntityID, r.FieldName), []byte(fmt.Sprintf("%020d", r.ID))...)
}

func (s *HistoryStore) Create(ctx context.Context, record *domain.HistoryRecord) error {
	return s.CreateBatch(ctx, []*domain.HistoryRecord{record})
}

// CreateBatch writes the batch in one badger transaction. Records are only
// updated with their ID and CreatedAt once the transaction commits.
func (s *HistoryStore) CreateBatch(ctx context.Context, records []*domain.HistoryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, r := range records {
		if r == nil {
			return domain.ErrInvalidRecord
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}

	pending, err := s.allocate(records)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, r := range pending {
			raw, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := txn.Set(recordKey(r), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write field history batch: %w", err)
	}

	for i, r := range records {
		r.ID = pending[i].ID
		r.CreatedAt = pending[i].CreatedAt
	}
	return nil
}

// allocate assigns IDs and timestamps under one lock so ID order and
// CreatedAt order agree across concurrent batches.
func (s *HistoryStore) allocate(records []*domain.HistoryRecord) ([]domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]domain.HistoryRecord, len(records))
	for i, r := range records {
		id, err := s.seq.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to allocate history id: %w", err)
		}
		pending[i] = *r
		pending[i].ID = int64(id) + 1
		pending[i].CreatedAt = s.tick()
	}
	return pending, nil
}

// tick must be called with s.mu held.
func (s *HistoryStore) tick() time.Time {
	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Microsecond)
	}
	s.last = ts
	return ts
}

func (s *HistoryStore) ListByEntity(ctx context.Context, entityID, entityType string) ([]domain.HistoryRecord, error) {
	return s.scan(ctx, entityPrefix(entityType, entityID))
}

func (s *HistoryStore) ListByEntityAndField(ctx context.Context, entityID, entityType, field string) ([]domain.HistoryRecord, error) {
	return s.scan(ctx, fieldPrefix(entityType, entityID, field))
}

func (s *HistoryStore) Latest(ctx context.Context, entityID, entityType, field string) (*domain.HistoryRecord, error) {
	prefix := fieldPrefix(entityType, entityID, field)
	var latest *domain.HistoryRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(append([]byte(nil), prefix...), 0xFF))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		r, err := decodeItem(it.Item())
		if err != nil {
			return err
		}
		latest = &r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read latest field history: %w", err)
	}
	if latest == nil {
		return nil, domain.ErrHistoryNotFound
	}
	return latest, nil
}

func (s *HistoryStore) Exists(_ context.Context, entityID, entityType, field string) (bool, error) {
	prefix := fieldPrefix(entityType, entityID, field)
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(prefix)
		found = it.ValidForPrefix(prefix)
		return nil
	})
	return found, err
}

// RenameField moves every matching record to a key under the new field name
// in one transaction.
func (s *HistoryStore) RenameField(ctx context.Context, entityType, from, to string, rewrite func(string) (string, error)) (int64, error) {
	prefix := []byte(keyPrefix + escape(entityType) + "/")
	var count int64

	err := s.db.Update(func(txn *badger.Txn) error {
		var matches []domain.HistoryRecord
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				it.Close()
				return err
			}
			r, err := decodeItem(it.Item())
			if err != nil {
				it.Close()
				return err
			}
			if r.FieldName == from {
				matches = append(matches, r)
			}
		}
		it.Close()

		for _, r := range matches {
			if err := txn.Delete(recordKey(r)); err != nil {
				return err
			}
			r.FieldName = to
			if rewrite != nil {
				payload, err := rewrite(r.SerializedValue)
				if err != nil {
					return err
				}
				r.SerializedValue = payload
			}
			raw, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := txn.Set(recordKey(r), raw); err != nil {
				return err
			}
		}
		count = int64(len(matches))
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrTxnTooBig) {
			return 0, fmt.Errorf("failed to rename %s.%s: too many records for one transaction: %w", entityType, from, err)
		}
		return 0, fmt.Errorf("failed to rename %s.%s: %w", entityType, from, err)
	}
	return count, nil
}

func (s *HistoryStore) scan(ctx context.Context, prefix []byte) ([]domain.HistoryRecord, error) {
	records := []domain.HistoryRecord{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan field history: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func decodeItem(item *badger.Item) (domain.HistoryRecord, error) {
	var r domain.HistoryRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &r)
	})
	if err != nil {
		return r, fmt.Errorf("failed to decode %s: %w", strings.TrimPrefix(string(item.Key()), keyPrefix), err)
	}
	return r, nil
}
