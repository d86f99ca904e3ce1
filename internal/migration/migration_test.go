package migration

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSourceParses(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	// The initial migration has both directions
	up, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	t.Cleanup(func() { _ = up.Close() })
	assert.Contains(t, identifier, "create_records")

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	t.Cleanup(func() { _ = down.Close() })
}
