// Package maintenance backfills and relabels stored field history.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"field-history/internal/codec"
	"field-history/internal/fieldhistory"
	"field-history/internal/observability"
)

var ErrMissingArgument = errors.New("missing argument")

// Backfill records the current value of every tracked field that has no
// history yet. Records carry no user. It returns the number of records
// written per entity type.
func Backfill(ctx context.Context, reg *fieldhistory.Registry, store fieldhistory.Maintainer) (map[string]int, error) {
	counts := make(map[string]int)
	for _, tr := range reg.Trackers() {
		entityType := tr.EntityType()
		candidates, err := tr.InitialRecords(ctx)
		if errors.Is(err, fieldhistory.ErrListUnsupported) {
			log.WithField("entity_type", entityType).Warn("Skipping backfill: entity store cannot list entities")
			continue
		}
		if err != nil {
			return counts, err
		}

		pending := candidates[:0]
		for _, r := range candidates {
			exists, err := store.Exists(ctx, r.EntityID, r.EntityType, r.FieldName)
			if err != nil {
				return counts, fmt.Errorf("failed to check history of %s: %w", r, err)
			}
			if !exists {
				pending = append(pending, r)
			}
		}

		if len(pending) > 0 {
			if err := tr.HistoryStore().CreateBatch(ctx, pending); err != nil {
				return counts, fmt.Errorf("failed to backfill %s: %w", entityType, err)
			}
		}
		counts[entityType] = len(pending)
		observability.RecordBackfill(entityType, len(pending))
		log.WithFields(log.Fields{
			"entity_type": entityType,
			"records":     len(pending),
		}).Info("Field history backfilled")
	}
	return counts, nil
}

// Rename relabels the history of entityType's field from as to. Payloads are
// rewritten too when the tracker's codec embeds field names.
func Rename(ctx context.Context, reg *fieldhistory.Registry, store fieldhistory.Maintainer, entityType, from, to string) (int64, error) {
	entityType, from, to = strings.TrimSpace(entityType), strings.TrimSpace(from), strings.TrimSpace(to)
	switch {
	case entityType == "":
		return 0, fmt.Errorf("%w: entity type", ErrMissingArgument)
	case from == "":
		return 0, fmt.Errorf("%w: from field", ErrMissingArgument)
	case to == "":
		return 0, fmt.Errorf("%w: to field", ErrMissingArgument)
	}

	tr, err := reg.Lookup(entityType)
	if err != nil {
		return 0, err
	}

	var rewrite func(string) (string, error)
	if r, ok := tr.Codec().(codec.Renamer); ok {
		rewrite = func(data string) (string, error) {
			return r.RenameField(data, from, to)
		}
	}

	n, err := store.RenameField(ctx, entityType, from, to, rewrite)
	if err != nil {
		return 0, fmt.Errorf("failed to rename %s.%s: %w", entityType, from, err)
	}
	log.WithFields(log.Fields{
		"entity_type": entityType,
		"from":        from,
		"to":          to,
		"records":     n,
	}).Info("Field history renamed")
	return n, nil
}
