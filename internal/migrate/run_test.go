package migrate_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/migrate"
	"github.com/target/dataio-go/internal/testutil"
)

func TestVersions(t *testing.T) {
	versions, err := migrate.Versions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)
	assert.Equal(t, "0001_init", versions[0])
	assert.True(t, sort.StringsAreSorted(versions))
}

func TestApply_Idempotent(t *testing.T) {
	testutil.SkipIfNoTestDB(t)
	db := testutil.SetupEphemeralSchemaDB(t)
	ctx := context.Background()

	// SetupEphemeralSchemaDB already migrated the schema.
	applied, err := migrate.Apply(ctx, db, nil)
	require.NoError(t, err)
	assert.Empty(t, applied)

	pending, err := migrate.Pending(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var tables int
	require.NoError(t, db.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_schema = current_schema()
		  AND table_name IN ('jobs', 'chunks', 'items', 'chunk_results', 'messages', 'dead_messages')`).Scan(&tables))
	assert.Equal(t, 6, tables)
}
