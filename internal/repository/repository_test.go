package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"field-history/internal/domain"
)

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "0", "-3"} {
		_, err := parseID(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidEntityID, bad)
	}
}

func TestConnPrefersContextTransaction(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, conn(context.Background(), db))

	tx := &sql.Tx{}
	ctx := withTx(context.Background(), tx)
	got, ok := txFromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, tx, got)
	assert.Same(t, tx, conn(ctx, db))
}
