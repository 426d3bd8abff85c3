package sqlite_test

import (
	"context"
	"testing"

	"github.com/sagarc03/vaultbox/database"
	"github.com/sagarc03/vaultbox/database/sqlite"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens a private in-memory database.
func setupTestDB(t *testing.T) database.Database {
	t.Helper()

	db, err := sqlite.Connect(context.Background(), ":memory:")
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = db.Close() })

	return db
}
