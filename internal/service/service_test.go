package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-history/internal/auth"
	"field-history/internal/domain"
	"field-history/internal/fieldhistory"
	"field-history/internal/models"
	"field-history/internal/storage/memory"
)

func newOrderService(t *testing.T) (*OrderService, *memory.HistoryStore) {
	t.Helper()
	entities, err := memory.NewEntityStore[models.PizzaOrder]()
	require.NoError(t, err)
	history := memory.NewHistoryStore()
	orders, err := fieldhistory.Register[models.PizzaOrder](models.PizzaOrderFields, entities, history,
		fieldhistory.WithRegistry(fieldhistory.NewRegistry()))
	require.NoError(t, err)
	return NewOrderService(orders), history
}

func TestCreateOrderDefaultsToOrdered(t *testing.T) {
	svc, history := newOrderService(t)

	order, err := svc.CreateOrder(context.Background(), domain.CreateOrderRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusOrdered, order.Status)
	assert.NotZero(t, order.ID)
	assert.Equal(t, 1, history.Len())
}

func TestCreateOrderRejectsUnknownStatus(t *testing.T) {
	svc, history := newOrderService(t)

	_, err := svc.CreateOrder(context.Background(), domain.CreateOrderRequest{Status: "BURNT"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	assert.Zero(t, history.Len())
}

func TestUpdateStatusRecordsHistory(t *testing.T) {
	svc, _ := newOrderService(t)
	ctx := auth.WithUser(context.Background(), "chef")

	order, err := svc.CreateOrder(ctx, domain.CreateOrderRequest{Status: "ordered"})
	require.NoError(t, err)
	id := "1"
	require.EqualValues(t, 1, order.ID)

	updated, err := svc.UpdateStatus(ctx, id, domain.UpdateOrderStatusRequest{Status: models.StatusCooking})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCooking, updated.Status)

	_, err = svc.UpdateStatus(ctx, id, domain.UpdateOrderStatusRequest{Status: models.StatusCooking})
	require.NoError(t, err)

	entries, err := svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.StatusOrdered, entries[0].Value)
	assert.Equal(t, models.StatusCooking, entries[1].Value)
	require.NotNil(t, entries[1].User)
	assert.Equal(t, "chef", *entries[1].User)

	latest, err := svc.LatestFieldHistory(ctx, id, "status")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCooking, latest.Value)
	assert.Equal(t, entries[1].ID, latest.ID)

	byField, err := svc.FieldHistory(ctx, id, "status")
	require.NoError(t, err)
	assert.Equal(t, entries, byField)
}

func TestOrderLookupErrors(t *testing.T) {
	svc, _ := newOrderService(t)
	ctx := context.Background()

	_, err := svc.GetOrder(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidEntityID)

	_, err = svc.GetOrder(ctx, "42")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = svc.UpdateStatus(ctx, "42", domain.UpdateOrderStatusRequest{Status: models.StatusComplete})
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = svc.CreateOrder(ctx, domain.CreateOrderRequest{})
	require.NoError(t, err)
	_, err = svc.FieldHistory(ctx, "1", "price")
	assert.ErrorIs(t, err, domain.ErrUntrackedField)
}
