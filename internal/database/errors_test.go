package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistenceError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, persistenceError("upsert", nil))
	})

	t.Run("carries sqlstate", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
		err := persistenceError("upsert", fmt.Errorf("failed to insert reviews: %w", pgErr))

		var pe *PersistenceError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "23505", pe.Code)
		assert.Equal(t, "upsert", pe.Op)
		assert.ErrorIs(t, err, pgErr)
		assert.Contains(t, err.Error(), "(23505)")
	})

	t.Run("plain error has no code", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := persistenceError("count products", cause)

		var pe *PersistenceError
		require.ErrorAs(t, err, &pe)
		assert.Empty(t, pe.Code)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "persistence count products failed: connection refused", err.Error())
	})

	t.Run("does not double wrap", func(t *testing.T) {
		inner := persistenceError("get product", errors.New("boom"))
		assert.Same(t, inner, persistenceError("upsert", inner))
	})
}
