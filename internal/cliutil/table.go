// Package cliutil renders Provisioner output and progress events for
// cmd/gsmc: tabby tables for list output, aurora colorization for status
// text, matching the teacher pack's plugin-CLI presentation layer.
package cliutil

import (
	"fmt"
	"sort"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"

	"github.com/gsmc-io/gsmc/internal/model"
)

// PrintServers renders a server list the way tabby's plugin table does:
// one header, one line per row, status colorized by lifecycle state.
// Tabby writes straight to stdout, same as the teacher pack's plugin CLIs.
func PrintServers(servers []model.Server) {
	if len(servers) == 0 {
		fmt.Println("no servers")
		return
	}
	t := tabby.New()
	t.AddHeader("NAME", "GAME", "STATUS", "REGION", "PUBLIC IP", "ID")
	for _, s := range servers {
		t.AddLine(s.Name, s.Game, colorStatus(s.Status), s.Region, publicIPOrDash(s), s.ID)
	}
	t.Print()
}

// PrintSnapshots renders the snapshot list, newest first.
func PrintSnapshots(snapshots []model.Snapshot) {
	if len(snapshots) == 0 {
		fmt.Println("no snapshots")
		return
	}
	sorted := make([]model.Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	t := tabby.New()
	t.AddHeader("ID", "SERVER", "GAME", "REGION", "CREATED", "SNAPSHOT ID")
	for _, s := range sorted {
		t.AddLine(s.ID, s.ServerName, s.Game, s.Region, s.CreatedAt.Format("2006-01-02 15:04:05"), s.SnapshotID)
	}
	t.Print()
}

func publicIPOrDash(s model.Server) string {
	if s.HasPinnedIP() {
		return s.EIPPublicIP + " (pinned)"
	}
	if s.PublicIP == "" {
		return "-"
	}
	return s.PublicIP
}

func colorStatus(status model.Status) fmt.Stringer {
	switch status {
	case model.StatusRunning:
		return aurora.Green(string(status))
	case model.StatusLaunching:
		return aurora.Yellow(string(status))
	case model.StatusPaused, model.StatusStopped:
		return aurora.Red(string(status))
	default:
		return aurora.Gray(12, string(status))
	}
}
