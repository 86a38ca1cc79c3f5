package fieldhistory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"field-history/internal/domain"
	"field-history/internal/storage/memory"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	history := memory.NewHistoryStore()

	orders, err := Register[pizzaOrder]([]string{"status"}, newEntities[pizzaOrder](t), history, WithRegistry(reg))
	require.NoError(t, err)
	_, err = Register[human]([]string{"age"}, newEntities[human](t), history, WithRegistry(reg))
	require.NoError(t, err)

	tr, err := reg.Lookup("fieldhistory.pizzaorder")
	require.NoError(t, err)
	assert.Equal(t, []string{"status"}, tr.Fields())
	assert.Equal(t, "json", tr.Codec().Name())

	_, err = reg.Lookup("fieldhistory.unknown")
	assert.ErrorIs(t, err, domain.ErrUnregisteredType)

	trackers := reg.Trackers()
	require.Len(t, trackers, 2)
	assert.Equal(t, "fieldhistory.human", trackers[0].EntityType())
	assert.Equal(t, "fieldhistory.pizzaorder", trackers[1].EntityType())

	found, err := For[pizzaOrder](reg)
	require.NoError(t, err)
	assert.Same(t, orders, found)

	_, err = For[person](reg)
	assert.ErrorIs(t, err, domain.ErrUnregisteredType)
}

func TestRegisterUsesDefaultRegistry(t *testing.T) {
	type defaultOnly struct {
		ID   int64  `json:"id" history:"pk"`
		Note string `json:"note"`
	}

	c, err := Register[defaultOnly]([]string{"note"}, newEntities[defaultOnly](t), memory.NewHistoryStore())
	require.NoError(t, err)

	found, err := For[defaultOnly](DefaultRegistry)
	require.NoError(t, err)
	assert.Same(t, c, found)
}

func TestInitialRecords(t *testing.T) {
	orders := newEntities[pizzaOrder](t)
	ctx := context.Background()
	require.NoError(t, orders.Create(ctx, &pizzaOrder{Status: "ORDERED"}))
	require.NoError(t, orders.Create(ctx, &pizzaOrder{Status: "COOKING"}))

	c, err := Register[pizzaOrder]([]string{"status"}, orders, memory.NewHistoryStore(), WithRegistry(NewRegistry()))
	require.NoError(t, err)

	records, err := c.InitialRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2", records[1].EntityID)
	assert.Nil(t, records[1].User)

	value, err := c.FieldValue(*records[1])
	require.NoError(t, err)
	assert.Equal(t, "COOKING", value)
}

func TestInitialRecordsNeedsLister(t *testing.T) {
	c, err := Register[pizzaOrder]([]string{"status"}, nopEntities[pizzaOrder]{}, memory.NewHistoryStore(), WithRegistry(NewRegistry()))
	require.NoError(t, err)

	_, err = c.InitialRecords(context.Background())
	assert.ErrorIs(t, err, ErrListUnsupported)
}
