// Package fieldhistory wires tracked entity types to their history: it wraps
// the host store's writes, works out which tracked fields changed and
// persists one history record per changed field in a single batch.
package fieldhistory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	log "github.com/sirupsen/logrus"

	"field-history/internal/auth"
	"field-history/internal/codec"
	"field-history/internal/domain"
	"field-history/internal/observability"
	"field-history/internal/schema"
	"field-history/internal/tracker"
)

var ErrListUnsupported = errors.New("entity store cannot list entities")

// Coordinator tracks one entity type T.
type Coordinator[T any] struct {
	schema     *schema.Schema
	entityType string
	fields     []string
	tracked    map[string]bool
	codec      codec.Codec

	entities  EntityStore[T]
	history   HistoryStore
	tx        Transactor
	atomic    bool
	users     UserResolver
	publisher Publisher
}

// Register sets up tracking of fields on T and adds the coordinator to the
// registry. All failures are configuration errors.
func Register[T any](fields []string, entities EntityStore[T], history HistoryStore, opts ...Option) (*Coordinator[T], error) {
	o := options{registry: DefaultRegistry, users: auth.UserFromContext}
	for _, opt := range opts {
		opt(&o)
	}

	t := reflect.TypeOf((*T)(nil)).Elem()
	s, err := schema.Of(t)
	if err != nil {
		return nil, domain.NewConfigurationError("register", "%v", err)
	}
	if entities == nil || history == nil {
		return nil, domain.NewConfigurationError("register", "%s needs an entity store and a history store", s.Name)
	}
	if len(fields) == 0 {
		return nil, domain.NewConfigurationError("register", "%s: at least one field must be tracked", s.Name)
	}

	c := o.codec
	if c == nil {
		name := o.codecName
		if name == "" {
			name = codec.DefaultName
		}
		if c, err = codec.Get(name); err != nil {
			return nil, err
		}
	}

	tracked := make(map[string]bool, len(fields))
	for _, name := range fields {
		if tracked[name] {
			return nil, domain.NewConfigurationError("register", "%s: field %q listed twice", s.Name, name)
		}
		f, ok := s.Field(name)
		if !ok {
			return nil, domain.NewConfigurationError("register", "%s has no field %q", s.Name, name)
		}
		if !c.Supports(f) {
			return nil, domain.NewConfigurationError("register",
				"%s.%s is inherited and codec %q only encodes direct fields; use %q", s.Name, name, c.Name(), codec.NameJSONNested)
		}
		tracked[name] = true
	}

	entityType := o.entityType
	if entityType == "" {
		entityType = s.Name
	}
	tx := o.tx
	if tx == nil {
		tx = noTx{}
	}

	if entityType != s.Name {
		s = s.WithName(entityType)
	}

	coord := &Coordinator[T]{
		schema:     s,
		entityType: entityType,
		fields:     append([]string(nil), fields...),
		tracked:    tracked,
		codec:      c,
		entities:   entities,
		history:    history,
		tx:         tx,
		atomic:     o.tx != nil,
		users:      o.users,
		publisher:  o.publisher,
	}
	if err := o.registry.add(t, coord); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"entity_type": entityType,
		"fields":      coord.fields,
		"codec":       c.Name(),
	}).Debug("Field history registered")
	return coord, nil
}

func (c *Coordinator[T]) EntityType() string         { return c.entityType }
func (c *Coordinator[T]) Codec() codec.Codec         { return c.codec }
func (c *Coordinator[T]) HistoryStore() HistoryStore { return c.history }

func (c *Coordinator[T]) Fields() []string {
	return append([]string(nil), c.fields...)
}

// New starts tracking a freshly constructed entity.
func (c *Coordinator[T]) New(entity *T) *Tracked[T] {
	if entity == nil {
		entity = new(T)
	}
	_, hasID := c.schema.Identity(entity)
	t := &Tracked[T]{entity: entity, schema: c.schema, tracker: tracker.New(c.schema, c.fields, entity), firstWrite: !hasID}
	t.tracker.CaptureBaseline()
	return t
}

// Load reads an entity from the host store and starts tracking it.
func (c *Coordinator[T]) Load(ctx context.Context, id string) (*Tracked[T], error) {
	entity, err := c.entities.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", c.entityType, id, err)
	}
	return c.New(entity), nil
}

// Create is New followed by Save.
func (c *Coordinator[T]) Create(ctx context.Context, entity *T) (*Tracked[T], error) {
	t := c.New(entity)
	if err := c.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Save writes the entity through the host store and records every tracked
// field that changed. Until the first write succeeds every tracked field is
// recorded. On error the baseline is kept so a retry sees the same changes.
// An identity assigned by a create that did not commit is cleared again.
func (c *Coordinator[T]) Save(ctx context.Context, t *Tracked[T]) error {
	if t == nil || t.tracker == nil || t.schema != c.schema {
		return fmt.Errorf("%w: entity is not tracked by %s", domain.ErrUnregisteredType, c.entityType)
	}

	start := time.Now()
	_, hasID := c.schema.Identity(t.entity)
	create := !hasID
	recordAll := create || t.firstWrite

	var saved reflect.Value
	if create {
		saved = c.copyIdentity(t.entity)
	}

	var (
		records []*domain.HistoryRecord
		created bool
	)
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		if create {
			if err := c.entities.Create(ctx, t.entity); err != nil {
				return fmt.Errorf("failed to create %s: %w", c.entityType, err)
			}
			created = true
		} else if err := c.entities.Update(ctx, t.entity); err != nil {
			return fmt.Errorf("failed to update %s: %w", c.entityType, err)
		}

		batch, err := c.changedRecords(ctx, t, recordAll)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := c.history.CreateBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to record field history for %s: %w", c.entityType, err)
		}
		records = batch
		return nil
	})
	if err != nil {
		// Without a transactor a successful create has committed, so the
		// identity stays and the retry updates the row it created.
		if create && (!created || c.atomic) {
			c.identity(t.entity).Set(saved)
		}
		observability.RecordSave(c.entityType, observability.OutcomeFailed, 0, time.Since(start))
		log.WithError(err).WithField("entity_type", c.entityType).Error("Failed to save tracked entity")
		return err
	}

	t.firstWrite = false
	t.tracker.CaptureBaseline()
	c.publish(ctx, records)

	id, _ := t.ID()
	if len(records) == 0 {
		observability.RecordSave(c.entityType, observability.OutcomeNoop, 0, time.Since(start))
		log.WithFields(log.Fields{"entity_type": c.entityType, "entity_id": id}).Debug("No tracked field changed")
		return nil
	}
	observability.RecordSave(c.entityType, observability.OutcomeRecorded, len(records), time.Since(start))
	log.WithFields(log.Fields{
		"entity_type": c.entityType,
		"entity_id":   id,
		"records":     len(records),
	}).Info("Field history recorded")
	return nil
}

// identity returns the entity's settable identity field.
func (c *Coordinator[T]) identity(entity *T) reflect.Value {
	return reflect.ValueOf(entity).Elem().FieldByIndex(c.schema.PK.Index)
}

func (c *Coordinator[T]) copyIdentity(entity *T) reflect.Value {
	live := c.identity(entity)
	saved := reflect.New(live.Type()).Elem()
	saved.Set(live)
	return saved
}

func (c *Coordinator[T]) changedRecords(ctx context.Context, t *Tracked[T], recordAll bool) ([]*domain.HistoryRecord, error) {
	id, ok := c.schema.Identity(t.entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no identity after write", domain.ErrInvalidEntityID, c.entityType)
	}

	var changed []string
	for _, field := range c.fields {
		if recordAll || t.tracker.HasChanged(field) {
			changed = append(changed, field)
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	user := c.resolveUser(ctx, t.entity)
	records := make([]*domain.HistoryRecord, 0, len(changed))
	for _, field := range changed {
		payload, err := c.codec.Encode(c.schema, t.entity, field)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s.%s: %w", c.entityType, field, err)
		}
		records = append(records, &domain.HistoryRecord{
			EntityID:        id,
			EntityType:      c.entityType,
			FieldName:       field,
			SerializedValue: payload,
			User:            user,
		})
	}
	return records, nil
}

// resolveUser prefers the entity's own history user, then the ambient user.
// A resolver that panics yields no user.
func (c *Coordinator[T]) resolveUser(ctx context.Context, entity *T) (user *string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).WithField("entity_type", c.entityType).Warn("Failed to resolve history user")
			user = nil
		}
	}()

	if p, ok := any(entity).(domain.HistoryUserProvider); ok {
		if id, ok := p.HistoryUser(); ok {
			return domain.StringPtr(id)
		}
		return nil
	}
	if c.users == nil {
		return nil
	}
	if id, ok := c.users(ctx); ok {
		return domain.StringPtr(id)
	}
	return nil
}

func (c *Coordinator[T]) publish(ctx context.Context, records []*domain.HistoryRecord) {
	if c.publisher == nil || len(records) == 0 {
		return
	}
	if bp, ok := c.publisher.(BatchPublisher); ok {
		batch := make([]domain.HistoryRecord, len(records))
		for i, r := range records {
			batch[i] = *r
		}
		if err := bp.PublishBatch(ctx, batch); err != nil {
			failed := 1
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				failed = len(joined.Unwrap())
			}
			for range failed {
				observability.RecordPublishFailure()
			}
			log.WithError(err).WithFields(log.Fields{
				"entity_type": records[0].EntityType,
				"entity_id":   records[0].EntityID,
				"records":     len(records),
				"failed":      failed,
			}).Warn("Failed to publish field history records")
		}
		return
	}
	for _, r := range records {
		if err := c.publisher.Publish(ctx, *r); err != nil {
			observability.RecordPublishFailure()
			log.WithError(err).WithFields(log.Fields{
				"entity_type": r.EntityType,
				"entity_id":   r.EntityID,
				"field_name":  r.FieldName,
			}).Warn("Failed to publish field history record")
		}
	}
}

// History returns every record of the entity across all tracked fields.
func (c *Coordinator[T]) History(ctx context.Context, t *Tracked[T]) ([]domain.HistoryRecord, error) {
	id, ok := t.ID()
	if !ok {
		return []domain.HistoryRecord{}, nil
	}
	records, err := c.history.ListByEntity(ctx, id, c.entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list field history for %s %s: %w", c.entityType, id, err)
	}
	return records, nil
}

// FieldHistory returns the records of one tracked field.
func (c *Coordinator[T]) FieldHistory(ctx context.Context, t *Tracked[T], field string) ([]domain.HistoryRecord, error) {
	if !c.tracked[field] {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUntrackedField, c.entityType, field)
	}
	id, ok := t.ID()
	if !ok {
		return []domain.HistoryRecord{}, nil
	}
	records, err := c.history.ListByEntityAndField(ctx, id, c.entityType, field)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s history for %s %s: %w", field, c.entityType, id, err)
	}
	return records, nil
}

// FieldHistoryFunc binds FieldHistory to one field.
func (c *Coordinator[T]) FieldHistoryFunc(field string) (func(ctx context.Context, t *Tracked[T]) ([]domain.HistoryRecord, error), error) {
	if !c.tracked[field] {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUntrackedField, c.entityType, field)
	}
	return func(ctx context.Context, t *Tracked[T]) ([]domain.HistoryRecord, error) {
		return c.FieldHistory(ctx, t, field)
	}, nil
}

// Latest returns the newest record of field.
func (c *Coordinator[T]) Latest(ctx context.Context, t *Tracked[T], field string) (*domain.HistoryRecord, error) {
	if !c.tracked[field] {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUntrackedField, c.entityType, field)
	}
	id, ok := t.ID()
	if !ok {
		return nil, domain.ErrHistoryNotFound
	}
	return c.history.Latest(ctx, id, c.entityType, field)
}

// FieldValue decodes the value a record holds.
func (c *Coordinator[T]) FieldValue(r domain.HistoryRecord) (any, error) {
	if r.EntityType != c.entityType {
		return nil, fmt.Errorf("%w: record belongs to %s, not %s", domain.ErrUnregisteredType, r.EntityType, c.entityType)
	}
	p, err := c.codec.Decode(c.schema, r.SerializedValue)
	if err != nil {
		return nil, err
	}
	return p.ReadField(r.FieldName)
}

// InitialRecords implements Tracker.
func (c *Coordinator[T]) InitialRecords(ctx context.Context) ([]*domain.HistoryRecord, error) {
	lister, ok := any(c.entities).(Lister[T])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListUnsupported, c.entityType)
	}
	entities, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.entityType, err)
	}

	var records []*domain.HistoryRecord
	for _, entity := range entities {
		id, ok := c.schema.Identity(entity)
		if !ok {
			continue
		}
		for _, field := range c.fields {
			payload, err := c.codec.Encode(c.schema, entity, field)
			if err != nil {
				return nil, fmt.Errorf("failed to encode %s.%s: %w", c.entityType, field, err)
			}
			records = append(records, &domain.HistoryRecord{
				EntityID:        id,
				EntityType:      c.entityType,
				FieldName:       field,
				SerializedValue: payload,
			})
		}
	}
	return records, nil
}
