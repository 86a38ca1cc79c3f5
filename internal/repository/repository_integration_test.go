//go:build integration

package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"field-history/internal/auth"
	"field-history/internal/codec"
	"field-history/internal/domain"
	"field-history/internal/fieldhistory"
	"field-history/internal/models"
)

func openDatabase(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("field_history"),
		postgrescontainer.WithUsername("history"),
		postgrescontainer.WithPassword("history"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New("file://../../db/migrations", connStr)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))
	return db
}

func TestPostgresHistoryLifecycle(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()

	history := NewPostgresHistoryRepository(db)
	orders, err := fieldhistory.Register[models.PizzaOrder](models.PizzaOrderFields,
		NewPostgresOrderRepository(db), history,
		fieldhistory.WithRegistry(fieldhistory.NewRegistry()),
		fieldhistory.WithTransactor(NewTxManager(db)))
	require.NoError(t, err)

	order, err := orders.Create(auth.WithUser(ctx, "alice"), &models.PizzaOrder{Status: models.StatusOrdered})
	require.NoError(t, err)

	order.Entity().Status = models.StatusCooking
	require.NoError(t, orders.Save(ctx, order))
	require.NoError(t, orders.Save(ctx, order))

	records, err := orders.History(ctx, order)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "alice", *records[0].User)
	assert.Nil(t, records[1].User)
	assert.False(t, records[1].CreatedAt.Before(records[0].CreatedAt))

	latest, err := orders.Latest(ctx, order, "status")
	require.NoError(t, err)
	value, err := orders.FieldValue(*latest)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCooking, value)

	id, _ := order.ID()
	exists, err := history.Exists(ctx, id, orders.EntityType(), "status")
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := history.RenameField(ctx, orders.EntityType(), "status", "state", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = history.Latest(ctx, id, orders.EntityType(), "status")
	assert.ErrorIs(t, err, domain.ErrHistoryNotFound)
}

func TestPostgresHumanAndOwnerTracking(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()
	reg := fieldhistory.NewRegistry()
	history := NewPostgresHistoryRepository(db)
	tx := NewTxManager(db)

	humans, err := fieldhistory.Register[models.Human](models.HumanFields, NewPostgresHumanRepository(db), history,
		fieldhistory.WithRegistry(reg), fieldhistory.WithTransactor(tx))
	require.NoError(t, err)

	h, err := humans.Create(ctx, &models.Human{IsFemale: true})
	require.NoError(t, err)

	age := 33
	temp := decimal.RequireFromString("98.60")
	h.Entity().Age = &age
	h.Entity().BodyTemp = &temp
	require.NoError(t, humans.Save(ctx, h))

	records, err := humans.History(ctx, h)
	require.NoError(t, err)
	assert.Len(t, records, 6)

	id, _ := h.ID()
	loaded, err := humans.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, loaded.Changed())

	owners, err := fieldhistory.Register[models.Owner](models.OwnerFields, NewPostgresOwnerRepository(db), history,
		fieldhistory.WithRegistry(reg), fieldhistory.WithTransactor(tx), fieldhistory.WithCodecName(codec.NameJSONNested))
	require.NoError(t, err)

	pets := NewPostgresPetRepository(db)
	rex := &models.Pet{Name: "Rex"}
	require.NoError(t, pets.Create(ctx, rex))

	o, err := owners.Create(ctx, &models.Owner{Person: models.Person{Name: "Ann", CreatedBy: domain.StringPtr("bob")}, Pet: rex})
	require.NoError(t, err)

	latest, err := owners.Latest(ctx, o, "pet")
	require.NoError(t, err)
	assert.Equal(t, "bob", *latest.User)
	value, err := owners.FieldValue(*latest)
	require.NoError(t, err)
	assert.Equal(t, rex.ID, value.(*models.Pet).ID)
}

func TestTxManagerRollsBackHistoryWithEntity(t *testing.T) {
	db := openDatabase(t)
	ctx := context.Background()
	history := NewPostgresHistoryRepository(db)
	tx := NewTxManager(db)

	boom := errors.New("abort")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		order := &models.PizzaOrder{Status: models.StatusOrdered}
		require.NoError(t, NewPostgresOrderRepository(db).Create(ctx, order))
		require.NoError(t, history.Create(ctx, &domain.HistoryRecord{
			EntityID: "1", EntityType: "models.pizzaorder", FieldName: "status", SerializedValue: "[]",
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := history.Exists(ctx, "1", "models.pizzaorder", "status")
	require.NoError(t, err)
	assert.False(t, exists)
}
