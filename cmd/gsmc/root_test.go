package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCmdRegistersEverySubcommand(t *testing.T) {
	root := newRootCmd()

	want := []string{
		"launch", "list", "get", "destroy", "destroy-all", "pause", "resume",
		"stop", "pin", "unpin", "snapshot", "snapshots", "delete-snapshot",
		"restore", "send-command", "logs", "serve", "reconcile",
	}
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.Truef(t, got[name], "expected subcommand %q to be registered", name)
	}
	assert.Len(t, root.Commands(), len(want))
}

func TestNewRootCmdBindsDebugFlag(t *testing.T) {
	root := newRootCmd()
	f := root.PersistentFlags().Lookup("debug")
	assert.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue)
}
