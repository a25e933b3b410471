package provisioner_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/cloud/cloudfake"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/provisioner"
	"github.com/gsmc-io/gsmc/internal/registry"
	"github.com/gsmc-io/gsmc/internal/store"
)

// The SSH-dependent operations (Launch, Pause, Resume, StopContainer,
// SendCommand, Logs) need a live container-daemon host to exercise end to
// end and are not exercised in this package; these tests
// cover every Provisioner operation that only touches the store and the
// cloud gateway.

func newTestProvisioner(t *testing.T) (*provisioner.Provisioner, *store.Store, *cloudfake.Gateway) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	gw := cloudfake.New()
	reg := registry.New()
	registry.RegisterNative(reg)
	p := provisioner.New(st, gw, nil, reg, nil, nil, nil, nil)
	return p, st, gw
}

func seedRunningServer(t *testing.T, st *store.Store, gw *cloudfake.Gateway) model.Server {
	t.Helper()
	inst, err := gw.RunInstance(context.Background(), cloud.RunInstanceParams{
		Region: "us-east-1",
		Tags:   map[string]string{cloud.TagID: "srv1"},
	})
	require.NoError(t, err)

	server := model.Server{
		ID:         "srv1",
		Name:       "box-one",
		Game:       "factorio",
		Region:     "us-east-1",
		Status:     model.StatusRunning,
		InstanceID: inst.InstanceID,
		PublicIP:   inst.PublicIP,
	}
	server.WithDefaults()
	require.NoError(t, st.SaveServer(server))
	return server
}

func TestDestroyTerminatesAndDeletesRecord(t *testing.T) {
	p, st, gw := newTestProvisioner(t)
	server := seedRunningServer(t, st, gw)

	require.NoError(t, p.Destroy(context.Background(), server.ID))

	_, found, err := st.GetServer(server.ID)
	require.NoError(t, err)
	assert.False(t, found)

	inst, ok := gw.Instances[server.InstanceID]
	require.True(t, ok)
	assert.Equal(t, cloud.InstanceTerminated, inst.State)
}

func TestDestroyUnknownServerIsConfigError(t *testing.T) {
	p, _, _ := newTestProvisioner(t)
	err := p.Destroy(context.Background(), "does-not-exist")
	require.Error(t, err)
	var cfgErr *cloud.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestPinIPThenUnpinIPRoundTrips(t *testing.T) {
	p, st, gw := newTestProvisioner(t)
	server := seedRunningServer(t, st, gw)

	pinned, err := p.PinIP(context.Background(), server.ID)
	require.NoError(t, err)
	assert.True(t, pinned.HasPinnedIP())
	assert.NotEmpty(t, pinned.EIPPublicIP)
	assert.Equal(t, pinned.EIPPublicIP, pinned.PublicIP)

	_, err = p.PinIP(context.Background(), server.ID)
	assert.Error(t, err, "pinning twice should fail")

	unpinned, err := p.UnpinIP(context.Background(), server.ID)
	require.NoError(t, err)
	assert.False(t, unpinned.HasPinnedIP())
	assert.Empty(t, unpinned.EIPPublicIP)
}

func TestSnapshotThenDeleteSnapshot(t *testing.T) {
	p, st, gw := newTestProvisioner(t)
	server := seedRunningServer(t, st, gw)
	server.Config = map[string]string{"difficulty": "hard"}
	server.RCONPassword = "secret"
	require.NoError(t, st.SaveServer(server))

	snap, err := p.Snapshot(context.Background(), server.ID)
	require.NoError(t, err)
	assert.Equal(t, "hard", snap.Config["difficulty"])
	assert.Equal(t, "secret", snap.RCONPassword)
	assert.NotEmpty(t, snap.SnapshotID)

	_, found, err := st.GetSnapshot(snap.ID)
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, p.DeleteSnapshot(context.Background(), snap.ID))
	_, found, err = st.GetSnapshot(snap.ID)
	require.NoError(t, err)
	assert.False(t, found)

	_, ok := gw.Snapshots[snap.SnapshotID]
	assert.False(t, ok)
}

func TestListServersIsSortedByName(t *testing.T) {
	p, st, gw := newTestProvisioner(t)
	for _, name := range []string{"zulu", "alpha", "mike"} {
		inst, err := gw.RunInstance(context.Background(), cloud.RunInstanceParams{Region: "us-east-1"})
		require.NoError(t, err)
		s := model.Server{ID: name + "-id", Name: name, Game: "factorio", Region: "us-east-1", InstanceID: inst.InstanceID}
		s.WithDefaults()
		require.NoError(t, st.SaveServer(s))
	}

	servers, err := p.ListServers()
	require.NoError(t, err)
	require.Len(t, servers, 3)
	assert.Equal(t, []string{"alpha", "mike", "zulu"}, []string{servers[0].Name, servers[1].Name, servers[2].Name})
}

func TestGetServerByPrefix(t *testing.T) {
	p, st, gw := newTestProvisioner(t)
	server := seedRunningServer(t, st, gw)

	got, err := p.GetServer(server.ID[:3])
	require.NoError(t, err)
	assert.Equal(t, server.ID, got.ID)

	_, err = p.GetServer("nope")
	assert.Error(t, err)
}

func TestDestroyAllToleratesAlreadyGoneInstances(t *testing.T) {
	p, st, gw := newTestProvisioner(t)
	ok := seedRunningServer(t, st, gw)

	broken := model.Server{ID: "broken-id", Name: "broken", Game: "factorio", Region: "us-east-1", InstanceID: "i-does-not-exist"}
	broken.WithDefaults()
	require.NoError(t, st.SaveServer(broken))

	errs := p.DestroyAll(context.Background())
	assert.Len(t, errs, 0, "terminate of an unknown instance id is tolerated as already-gone")

	_, found, _ := st.GetServer(ok.ID)
	assert.False(t, found)
	_, found, _ = st.GetServer(broken.ID)
	assert.False(t, found)
}
