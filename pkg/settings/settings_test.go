package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreBoolRoundTripPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)

	got, err := store.Bool(ctx, "antileft:-1001")
	require.NoError(t, err)
	require.False(t, got, "unset flag must read as false")

	require.NoError(t, store.SetBool(ctx, "antileft:-1001", true))
	require.NoError(t, store.SetBool(ctx, "sheng:42", true))
	require.NoError(t, store.SetBool(ctx, "sheng:42", false))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err = reopened.Bool(ctx, "antileft:-1001")
	require.NoError(t, err)
	require.True(t, got)

	got, err = reopened.Bool(ctx, "sheng:42")
	require.NoError(t, err)
	require.False(t, got)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}
