package cliutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gsmc-io/gsmc/internal/cliutil"
	"github.com/gsmc-io/gsmc/internal/provisioner"
)

func TestStatusPrinterPrintsStepAndMessage(t *testing.T) {
	printer := cliutil.StatusPrinter()
	out := captureStdout(t, func() {
		printer(provisioner.StatusEvent{Step: "launch", Message: "allocating instance"})
	})
	assert.Contains(t, out, "launch")
	assert.Contains(t, out, "allocating instance")
}

func TestDebugPrinterMarksNonZeroExit(t *testing.T) {
	printer := cliutil.DebugPrinter()
	out := captureStdout(t, func() { printer("docker ps", 0) })
	assert.Contains(t, out, "docker ps")

	out = captureStdout(t, func() { printer("docker ps", 1) })
	assert.Contains(t, out, "exit 1")
}
