package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"field-history/internal/domain"
	"field-history/internal/models"
)

type postgresHumanRepository struct {
	db *sql.DB
}

func NewPostgresHumanRepository(db *sql.DB) *postgresHumanRepository {
	return &postgresHumanRepository{db: db}
}

func (r *postgresHumanRepository) Create(ctx context.Context, h *models.Human) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO humans (age, is_female, body_temp, birth_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, h.Age, h.IsFemale, h.BodyTemp, h.BirthDate).Scan(&h.ID); err != nil {
		log.WithError(err).Error("Failed to create human")
		return fmt.Errorf("failed to create human: %w", err)
	}
	return nil
}

func (r *postgresHumanRepository) Update(ctx context.Context, h *models.Human) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		UPDATE humans SET age = $2, is_female = $3, body_temp = $4, birth_date = $5
		WHERE id = $1
	`
	res, err := conn(ctx, r.db).ExecContext(ctx, query, h.ID, h.Age, h.IsFemale, h.BodyTemp, h.BirthDate)
	if err != nil {
		log.WithError(err).WithField("human_id", h.ID).Error("Failed to update human")
		return fmt.Errorf("failed to update human: %w", err)
	}
	return requireRow(res)
}

const humanColumns = `id, age, is_female, body_temp, birth_date`

func (r *postgresHumanRepository) Get(ctx context.Context, id string) (*models.Human, error) {
	humanID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	h, err := scanHuman(conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+humanColumns+` FROM humans WHERE id = $1`, humanID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrEntityNotFound
		}
		log.WithError(err).WithField("human_id", id).Error("Failed to get human")
		return nil, fmt.Errorf("failed to get human: %w", err)
	}
	return h, nil
}

func (r *postgresHumanRepository) List(ctx context.Context) ([]*models.Human, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+humanColumns+` FROM humans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list humans: %w", err)
	}
	defer rows.Close()

	var humans []*models.Human
	for rows.Next() {
		h, err := scanHuman(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan human row")
			return nil, err
		}
		humans = append(humans, h)
	}
	return humans, rows.Err()
}

func scanHuman(row rowScanner) (*models.Human, error) {
	var h models.Human
	var age sql.NullInt64
	var bodyTemp decimal.NullDecimal
	var birthDate sql.NullTime

	if err := row.Scan(&h.ID, &age, &h.IsFemale, &bodyTemp, &birthDate); err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		h.Age = &v
	}
	if bodyTemp.Valid {
		h.BodyTemp = &bodyTemp.Decimal
	}
	if birthDate.Valid {
		d := birthDate.Time.UTC()
		h.BirthDate = &d
	}
	return &h, nil
}
