package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"field-history/internal/domain"
	"field-history/internal/models"
)

type postgresPetRepository struct {
	db *sql.DB
}

func NewPostgresPetRepository(db *sql.DB) *postgresPetRepository {
	return &postgresPetRepository{db: db}
}

func (r *postgresPetRepository) Create(ctx context.Context, pet *models.Pet) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if pet.ID == uuid.Nil {
		pet.ID = uuid.New()
	}
	if _, err := conn(ctx, r.db).ExecContext(ctx, `INSERT INTO pets (id, name) VALUES ($1, $2)`, pet.ID, pet.Name); err != nil {
		log.WithError(err).WithField("pet_id", pet.ID).Error("Failed to create pet")
		return fmt.Errorf("failed to create pet: %w", err)
	}
	return nil
}

func (r *postgresPetRepository) Get(ctx context.Context, id string) (*models.Pet, error) {
	petID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrInvalidEntityID
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var pet models.Pet
	err = conn(ctx, r.db).QueryRowContext(ctx, `SELECT id, name FROM pets WHERE id = $1`, petID).Scan(&pet.ID, &pet.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get pet: %w", err)
	}
	return &pet, nil
}

type postgresPersonRepository struct {
	db *sql.DB
}

func NewPostgresPersonRepository(db *sql.DB) *postgresPersonRepository {
	return &postgresPersonRepository{db: db}
}

func insertPerson(ctx context.Context, q queryer, p *models.Person) error {
	query := `INSERT INTO persons (name, created_by) VALUES ($1, $2) RETURNING id`
	return q.QueryRowContext(ctx, query, p.Name, p.CreatedBy).Scan(&p.ID)
}

func updatePerson(ctx context.Context, q queryer, p *models.Person) error {
	res, err := q.ExecContext(ctx, `UPDATE persons SET name = $2, created_by = $3 WHERE id = $1`, p.ID, p.Name, p.CreatedBy)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *postgresPersonRepository) Create(ctx context.Context, p *models.Person) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := insertPerson(ctx, conn(ctx, r.db), p); err != nil {
		log.WithError(err).Error("Failed to create person")
		return fmt.Errorf("failed to create person: %w", err)
	}
	return nil
}

func (r *postgresPersonRepository) Update(ctx context.Context, p *models.Person) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := updatePerson(ctx, conn(ctx, r.db), p); err != nil {
		log.WithError(err).WithField("person_id", p.ID).Error("Failed to update person")
		return fmt.Errorf("failed to update person: %w", err)
	}
	return nil
}

func (r *postgresPersonRepository) Get(ctx context.Context, id string) (*models.Person, error) {
	personID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p, err := scanPerson(conn(ctx, r.db).QueryRowContext(ctx, `SELECT id, name, created_by FROM persons WHERE id = $1`, personID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return p, nil
}

func (r *postgresPersonRepository) List(ctx context.Context) ([]*models.Person, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT id, name, created_by FROM persons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}
	defer rows.Close()

	var people []*models.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

func scanPerson(row rowScanner) (*models.Person, error) {
	var p models.Person
	var createdBy sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &createdBy); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		p.CreatedBy = &createdBy.String
	}
	return &p, nil
}

// postgresOwnerRepository stores an owner as a persons row plus an owners
// row; both are written in one transaction.
type postgresOwnerRepository struct {
	db *sql.DB
	tx *TxManager
}

func NewPostgresOwnerRepository(db *sql.DB) *postgresOwnerRepository {
	return &postgresOwnerRepository{db: db, tx: NewTxManager(db)}
}

func petID(o *models.Owner) any {
	if o.Pet == nil {
		return nil
	}
	return o.Pet.ID
}

func (r *postgresOwnerRepository) Create(ctx context.Context, o *models.Owner) error {
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		q := conn(ctx, r.db)
		if err := insertPerson(ctx, q, &o.Person); err != nil {
			return err
		}
		_, err := q.ExecContext(ctx, `INSERT INTO owners (person_id, pet_id) VALUES ($1, $2)`, o.ID, petID(o))
		return err
	})
	if err != nil {
		log.WithError(err).Error("Failed to create owner")
		return fmt.Errorf("failed to create owner: %w", err)
	}
	return nil
}

func (r *postgresOwnerRepository) Update(ctx context.Context, o *models.Owner) error {
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, queryTimeout)
		defer cancel()

		q := conn(ctx, r.db)
		if err := updatePerson(ctx, q, &o.Person); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, `UPDATE owners SET pet_id = $2 WHERE person_id = $1`, o.ID, petID(o))
		if err != nil {
			return err
		}
		return requireRow(res)
	})
	if err != nil {
		log.WithError(err).WithField("owner_id", o.ID).Error("Failed to update owner")
		return fmt.Errorf("failed to update owner: %w", err)
	}
	return nil
}

const ownerSelect = `
	SELECT p.id, p.name, p.created_by, pet.id, pet.name
	FROM owners o
	JOIN persons p ON p.id = o.person_id
	LEFT JOIN pets pet ON pet.id = o.pet_id
`

func (r *postgresOwnerRepository) Get(ctx context.Context, id string) (*models.Owner, error) {
	ownerID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	o, err := scanOwner(conn(ctx, r.db).QueryRowContext(ctx, ownerSelect+` WHERE o.person_id = $1`, ownerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}
	return o, nil
}

func (r *postgresOwnerRepository) List(ctx context.Context) ([]*models.Owner, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := conn(ctx, r.db).QueryContext(ctx, ownerSelect+` ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []*models.Owner
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func scanOwner(row rowScanner) (*models.Owner, error) {
	var o models.Owner
	var createdBy, petName sql.NullString
	var pet uuid.NullUUID
	if err := row.Scan(&o.ID, &o.Name, &createdBy, &pet, &petName); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		o.CreatedBy = &createdBy.String
	}
	if pet.Valid {
		o.Pet = &models.Pet{ID: pet.UUID, Name: petName.String}
	}
	return &o, nil
}
