package sharedkey

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	values map[string]string
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) Get(_ context.Context, name string) (string, bool, error) {
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memStore) Create(_ context.Context, name, value string, _ bool) error {
	if _, ok := m.values[name]; ok {
		return ErrParameterExists
	}
	m.values[name] = value
	return nil
}

func (m *memStore) Put(_ context.Context, name, value string, _ bool) error {
	m.values[name] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	delete(m.values, name)
	return nil
}

func TestEnsureKeyGeneratesAndUploadsWhenEmpty(t *testing.T) {
	store := newMemStore()
	keyPath := filepath.Join(t.TempDir(), "key.pem")
	mgr := NewManager(store, nil, keyPath)

	priv, err := mgr.EnsureKey(context.Background())
	require.NoError(t, err)
	require.NotNil(t, priv)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	require.Contains(t, store.values, "gsmc/ssh-private-key")
}

func TestEnsureKeyAdoptsSharedParameter(t *testing.T) {
	store := newMemStore()
	seed := NewManager(store, nil, filepath.Join(t.TempDir(), "seed.pem"))
	_, err := seed.EnsureKey(context.Background())
	require.NoError(t, err)

	follower := NewManager(store, nil, filepath.Join(t.TempDir(), "follower.pem"))
	priv, err := follower.EnsureKey(context.Background())
	require.NoError(t, err)
	require.NotNil(t, priv)

	fp1, err := Fingerprint(priv)
	require.NoError(t, err)
	require.NotEmpty(t, fp1)
}

func TestActiveRegionsAddRemoveIsIdempotent(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(store, nil, filepath.Join(t.TempDir(), "key.pem"))
	ctx := context.Background()

	require.NoError(t, mgr.AddActiveRegion(ctx, "us-east-1"))
	require.NoError(t, mgr.AddActiveRegion(ctx, "us-east-1"))
	regions, err := mgr.ActiveRegions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"us-east-1"}, regions)

	require.NoError(t, mgr.AddActiveRegion(ctx, "eu-west-1"))
	require.NoError(t, mgr.RemoveActiveRegion(ctx, "us-east-1"))
	regions, err = mgr.ActiveRegions(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"eu-west-1"}, regions)

	require.NoError(t, mgr.RemoveActiveRegion(ctx, "eu-west-1"))
	_, found, err := store.Get(ctx, "gsmc/active-regions")
	require.NoError(t, err)
	require.False(t, found)
}
