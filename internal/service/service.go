package service

import (
	"context"
	"fmt"
	"strings"

	"field-history/internal/domain"
	"field-history/internal/fieldhistory"
	"field-history/internal/models"

	log "github.com/sirupsen/logrus"
)

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*models.PizzaOrder, error)
	GetOrder(ctx context.Context, id string) (*models.PizzaOrder, error)
	UpdateStatus(ctx context.Context, id string, req domain.UpdateOrderStatusRequest) (*models.PizzaOrder, error)
	History(ctx context.Context, id string) ([]domain.HistoryEntry, error)
	FieldHistory(ctx context.Context, id, field string) ([]domain.HistoryEntry, error)
	LatestFieldHistory(ctx context.Context, id, field string) (*domain.HistoryEntry, error)
}

// OrderTracker is the part of a field history coordinator the order service
// needs.
type OrderTracker interface {
	Create(ctx context.Context, entity *models.PizzaOrder) (*fieldhistory.Tracked[models.PizzaOrder], error)
	Load(ctx context.Context, id string) (*fieldhistory.Tracked[models.PizzaOrder], error)
	Save(ctx context.Context, t *fieldhistory.Tracked[models.PizzaOrder]) error
	History(ctx context.Context, t *fieldhistory.Tracked[models.PizzaOrder]) ([]domain.HistoryRecord, error)
	FieldHistory(ctx context.Context, t *fieldhistory.Tracked[models.PizzaOrder], field string) ([]domain.HistoryRecord, error)
	Latest(ctx context.Context, t *fieldhistory.Tracked[models.PizzaOrder], field string) (*domain.HistoryRecord, error)
	FieldValue(r domain.HistoryRecord) (any, error)
}

type OrderService struct {
	orders OrderTracker
}

func NewOrderService(orders OrderTracker) *OrderService {
	return &OrderService{orders: orders}
}

func normalizeStatus(status string) (string, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if !models.ValidOrderStatus(status) {
		return "", fmt.Errorf("%w: %q, expected one of %s", domain.ErrInvalidStatus, status, strings.Join(models.OrderStatuses, ", "))
	}
	return status, nil
}

func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*models.PizzaOrder, error) {
	if req.Status == "" {
		req.Status = models.StatusOrdered
	}
	status, err := normalizeStatus(req.Status)
	if err != nil {
		return nil, err
	}

	t, err := s.orders.Create(ctx, &models.PizzaOrder{Status: status})
	if err != nil {
		log.WithError(err).Error("Failed to create order")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	order := t.Entity()
	log.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
	}).Info("Order successfully created")

	return order, nil
}

func (s *OrderService) load(ctx context.Context, id string) (*fieldhistory.Tracked[models.PizzaOrder], error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: order ID is required", domain.ErrInvalidEntityID)
	}
	return s.orders.Load(ctx, id)
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.PizzaOrder, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return t.Entity(), nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, id string, req domain.UpdateOrderStatusRequest) (*models.PizzaOrder, error) {
	status, err := normalizeStatus(req.Status)
	if err != nil {
		return nil, err
	}

	t, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	order := t.Entity()
	previous := order.Status
	order.Status = status
	if err := s.orders.Save(ctx, t); err != nil {
		log.WithError(err).WithField("order_id", id).Error("Failed to update order status")
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	log.WithFields(log.Fields{
		"order_id": id,
		"from":     previous,
		"to":       status,
	}).Info("Order status updated")

	return order, nil
}

func (s *OrderService) History(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	records, err := s.orders.History(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	return s.entries(records)
}

func (s *OrderService) FieldHistory(ctx context.Context, id, field string) ([]domain.HistoryEntry, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	records, err := s.orders.FieldHistory(ctx, t, field)
	if err != nil {
		return nil, fmt.Errorf("failed to get order history: %w", err)
	}
	return s.entries(records)
}

func (s *OrderService) LatestFieldHistory(ctx context.Context, id, field string) (*domain.HistoryEntry, error) {
	t, err := s.load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	record, err := s.orders.Latest(ctx, t, field)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest order history: %w", err)
	}
	entry, err := s.entry(*record)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *OrderService) entries(records []domain.HistoryRecord) ([]domain.HistoryEntry, error) {
	out := make([]domain.HistoryEntry, 0, len(records))
	for _, r := range records {
		entry, err := s.entry(r)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *OrderService) entry(r domain.HistoryRecord) (domain.HistoryEntry, error) {
	value, err := s.orders.FieldValue(r)
	if err != nil {
		return domain.HistoryEntry{}, fmt.Errorf("failed to decode history record %d: %w", r.ID, err)
	}
	return domain.NewHistoryEntry(r, value), nil
}
