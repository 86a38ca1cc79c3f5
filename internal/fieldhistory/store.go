package fieldhistory

import (
	"context"

	"field-history/internal/domain"
)

// EntityStore is the host storage the coordinator wraps. Create must assign
// the entity's identity when the store generates it.
type EntityStore[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	Get(ctx context.Context, id string) (*T, error)
}

// Lister is an optional EntityStore capability used by backfill.
type Lister[T any] interface {
	List(ctx context.Context) ([]*T, error)
}

// HistoryStore is the append-only record table. CreateBatch assigns ID and
// CreatedAt to every record and persists all of them or none. Listings are
// ordered by CreatedAt, then ID.
type HistoryStore interface {
	Create(ctx context.Context, record *domain.HistoryRecord) error
	CreateBatch(ctx context.Context, records []*domain.HistoryRecord) error
	ListByEntity(ctx context.Context, entityID, entityType string) ([]domain.HistoryRecord, error)
	ListByEntityAndField(ctx context.Context, entityID, entityType, field string) ([]domain.HistoryRecord, error)
	Latest(ctx context.Context, entityID, entityType, field string) (*domain.HistoryRecord, error)
}

// Maintainer is the maintenance surface of a HistoryStore.
type Maintainer interface {
	Exists(ctx context.Context, entityID, entityType, field string) (bool, error)
	// RenameField relabels every record of entityType named from. rewrite,
	// when non-nil, is applied to each payload in the same unit of work.
	RenameField(ctx context.Context, entityType, from, to string, rewrite func(string) (string, error)) (int64, error)
}

// Transactor runs fn in one unit of work shared by the host store and the
// history store.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher receives committed history records.
type Publisher interface {
	Publish(ctx context.Context, record domain.HistoryRecord) error
}

// BatchPublisher is implemented by publishers that can deliver the records
// of one save together. PublishBatch returns the errors of undelivered
// records joined with errors.Join.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, records []domain.HistoryRecord) error
}

// UserResolver returns the acting user for the current unit of work.
type UserResolver func(ctx context.Context) (string, bool)

type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
