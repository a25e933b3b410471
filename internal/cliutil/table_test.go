package cliutil_test

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsmc-io/gsmc/internal/cliutil"
	"github.com/gsmc-io/gsmc/internal/model"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// whatever it wrote; tabby and aurora in this pack always write straight
// to os.Stdout, so this is the only way to assert on it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}

func TestPrintServersEmpty(t *testing.T) {
	out := captureStdout(t, func() { cliutil.PrintServers(nil) })
	assert.Contains(t, out, "no servers")
}

func TestPrintServersListsRows(t *testing.T) {
	servers := []model.Server{
		{ID: "srv1", Name: "box-one", Game: "factorio", Region: "us-east-1", Status: model.StatusRunning, PublicIP: "1.2.3.4"},
		{ID: "srv2", Name: "box-two", Game: "minecraft", Region: "us-west-2", Status: model.StatusPaused},
	}
	out := captureStdout(t, func() { cliutil.PrintServers(servers) })
	assert.Contains(t, out, "box-one")
	assert.Contains(t, out, "factorio")
	assert.Contains(t, out, "1.2.3.4")
	assert.Contains(t, out, "box-two")
}

func TestPrintSnapshotsNewestFirst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snapshots := []model.Snapshot{
		{ID: "snap-old", ServerName: "box-one", Game: "factorio", Region: "us-east-1", CreatedAt: now.Add(-24 * time.Hour)},
		{ID: "snap-new", ServerName: "box-one", Game: "factorio", Region: "us-east-1", CreatedAt: now},
	}
	out := captureStdout(t, func() { cliutil.PrintSnapshots(snapshots) })
	oldIdx := bytesIndex(out, "snap-old")
	newIdx := bytesIndex(out, "snap-new")
	require.NotEqual(t, -1, oldIdx)
	require.NotEqual(t, -1, newIdx)
	assert.Less(t, newIdx, oldIdx, "newest snapshot should be printed first")
}

func bytesIndex(s, substr string) int {
	return bytes.Index([]byte(s), []byte(substr))
}
