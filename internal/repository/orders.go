package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"field-history/internal/domain"
	"field-history/internal/models"
)

type postgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *postgresOrderRepository {
	return &postgresOrderRepository{db: db}
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, domain.ErrInvalidEntityID
	}
	return n, nil
}

func (r *postgresOrderRepository) Create(ctx context.Context, order *models.PizzaOrder) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `INSERT INTO pizza_orders (status) VALUES ($1) RETURNING id`
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, order.Status).Scan(&order.ID); err != nil {
		log.WithError(err).WithField("status", order.Status).Error("Failed to create pizza order")
		return fmt.Errorf("failed to create pizza order: %w", err)
	}
	return nil
}

func (r *postgresOrderRepository) Update(ctx context.Context, order *models.PizzaOrder) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE pizza_orders SET status = $2 WHERE id = $1`, order.ID, order.Status)
	if err != nil {
		log.WithError(err).WithField("order_id", order.ID).Error("Failed to update pizza order")
		return fmt.Errorf("failed to update pizza order: %w", err)
	}
	return requireRow(res)
}

func (r *postgresOrderRepository) Get(ctx context.Context, id string) (*models.PizzaOrder, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var order models.PizzaOrder
	err = conn(ctx, r.db).QueryRowContext(ctx, `SELECT id, status FROM pizza_orders WHERE id = $1`, orderID).
		Scan(&order.ID, &order.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrEntityNotFound
		}
		log.WithError(err).WithField("order_id", id).Error("Failed to get pizza order")
		return nil, fmt.Errorf("failed to get pizza order: %w", err)
	}
	return &order, nil
}

func (r *postgresOrderRepository) List(ctx context.Context) ([]*models.PizzaOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT id, status FROM pizza_orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pizza orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.PizzaOrder
	for rows.Next() {
		var order models.PizzaOrder
		if err := rows.Scan(&order.ID, &order.Status); err != nil {
			log.WithError(err).Error("Failed to scan pizza order row")
			return nil, err
		}
		orders = append(orders, &order)
	}
	return orders, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrEntityNotFound
	}
	return nil
}
