package repository

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"

	"field-history/internal/domain"
)

const historyColumns = `id, entity_id, entity_type, field_name, serialized_value, created_at, user_id`

type postgresHistoryRepository struct {
	db *sql.DB
	tx *TxManager
}

func NewPostgresHistoryRepository(db *sql.DB) *postgresHistoryRepository {
	return &postgresHistoryRepository{db: db, tx: NewTxManager(db)}
}

func (r *postgresHistoryRepository) Create(ctx context.Context, record *domain.HistoryRecord) error {
	return r.CreateBatch(ctx, []*domain.HistoryRecord{record})
}

// CreateBatch inserts the records in the caller's transaction, or in a
// transaction of its own.
func (r *postgresHistoryRepository) CreateBatch(ctx context.Context, records []*domain.HistoryRecord) error {
	for _, rec := range records {
		if rec == nil {
			return domain.ErrInvalidRecord
		}
		if err := rec.Validate(); err != nil {
			return err
		}
	}
	if len(records) == 0 {
		return nil
	}

	inserted := make([]domain.HistoryRecord, len(records))

	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		query := `
			INSERT INTO field_history (entity_id, entity_type, field_name, serialized_value, user_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`
		q := conn(ctx, r.db)
		for i, rec := range records {
			inserted[i] = *rec
			if err := q.QueryRowContext(ctx, query,
				rec.EntityID,
				rec.EntityType,
				rec.FieldName,
				rec.SerializedValue,
				rec.User,
			).Scan(&inserted[i].ID, &inserted[i].CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entity_type": records[0].EntityType,
			"entity_id":   records[0].EntityID,
			"records":     len(records),
		}).Error("Failed to insert field history")
		return fmt.Errorf("failed to insert field history: %w", err)
	}

	for i, rec := range records {
		rec.ID = inserted[i].ID
		rec.CreatedAt = inserted[i].CreatedAt
	}
	return nil
}

func (r *postgresHistoryRepository) ListByEntity(ctx context.Context, entityID, entityType string) ([]domain.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + `
		FROM field_history
		WHERE entity_id = $1 AND entity_type = $2
		ORDER BY created_at, id`
	return r.list(ctx, query, entityID, entityType)
}

func (r *postgresHistoryRepository) ListByEntityAndField(ctx context.Context, entityID, entityType, field string) ([]domain.HistoryRecord, error) {
	query := `SELECT ` + historyColumns + `
		FROM field_history
		WHERE entity_id = $1 AND entity_type = $2 AND field_name = $3
		ORDER BY created_at, id`
	return r.list(ctx, query, entityID, entityType, field)
}

func (r *postgresHistoryRepository) Latest(ctx context.Context, entityID, entityType, field string) (*domain.HistoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + historyColumns + `
		FROM field_history
		WHERE entity_id = $1 AND entity_type = $2 AND field_name = $3
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	rec, err := scanHistory(conn(ctx, r.db).QueryRowContext(ctx, query, entityID, entityType, field))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrHistoryNotFound
		}
		log.WithError(err).WithFields(log.Fields{
			"entity_type": entityType,
			"entity_id":   entityID,
			"field_name":  field,
		}).Error("Failed to get latest field history")
		return nil, fmt.Errorf("failed to get latest field history: %w", err)
	}
	return &rec, nil
}

func (r *postgresHistoryRepository) Exists(ctx context.Context, entityID, entityType, field string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT EXISTS (
		SELECT 1 FROM field_history WHERE entity_id = $1 AND entity_type = $2 AND field_name = $3
	)`
	var exists bool
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, entityID, entityType, field).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check field history: %w", err)
	}
	return exists, nil
}

// RenameField relabels records in one transaction. With a rewrite function
// every payload is read, rewritten and stored back.
func (r *postgresHistoryRepository) RenameField(ctx context.Context, entityType, from, to string, rewrite func(string) (string, error)) (int64, error) {
	var count int64
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, r.db)

		if rewrite == nil {
			res, err := q.ExecContext(ctx,
				`UPDATE field_history SET field_name = $3 WHERE entity_type = $1 AND field_name = $2`,
				entityType, from, to)
			if err != nil {
				return err
			}
			count, err = res.RowsAffected()
			return err
		}

		rows, err := q.QueryContext(ctx,
			`SELECT id, serialized_value FROM field_history WHERE entity_type = $1 AND field_name = $2 ORDER BY id FOR UPDATE`,
			entityType, from)
		if err != nil {
			return err
		}
		payloads := map[int64]string{}
		var ids []int64
		for rows.Next() {
			var id int64
			var payload string
			if err := rows.Scan(&id, &payload); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
			payloads[id] = payload
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, id := range ids {
			payload, err := rewrite(payloads[id])
			if err != nil {
				return fmt.Errorf("failed to rewrite field history %d: %w", id, err)
			}
			if _, err := q.ExecContext(ctx,
				`UPDATE field_history SET field_name = $2, serialized_value = $3 WHERE id = $1`,
				id, to, payload); err != nil {
				return err
			}
		}
		count = int64(len(ids))
		return nil
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entity_type": entityType,
			"from_field":  from,
			"to_field":    to,
		}).Error("Failed to rename field history")
		return 0, fmt.Errorf("failed to rename field history: %w", err)
	}

	log.WithFields(log.Fields{
		"entity_type": entityType,
		"from_field":  from,
		"to_field":    to,
		"updated":     count,
	}).Info("Field history renamed")
	return count, nil
}

func (r *postgresHistoryRepository) list(ctx context.Context, query string, args ...any) ([]domain.HistoryRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to list field history")
		return nil, fmt.Errorf("failed to list field history: %w", err)
	}
	defer rows.Close()

	records := []domain.HistoryRecord{}
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan field history row")
			return nil, fmt.Errorf("failed to scan field history: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list field history: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	var user sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.EntityID,
		&rec.EntityType,
		&rec.FieldName,
		&rec.SerializedValue,
		&rec.CreatedAt,
		&user,
	)
	if err != nil {
		return rec, err
	}
	if user.Valid {
		rec.User = &user.String
	}
	return rec, nil
}
