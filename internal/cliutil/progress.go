package cliutil

import (
	"fmt"

	"github.com/logrusorgru/aurora/v3"

	"github.com/gsmc-io/gsmc/internal/provisioner"
	"github.com/gsmc-io/gsmc/internal/remotehost"
)

// StatusPrinter returns a provisioner.StatusFunc that prints one line per
// user-visible step, colorized the way the pack's plugin status output is
// (aurora.Green for the step name, plain text for the message) — spec.md
// §6's status callback contract, invoked once per distinct progress event.
func StatusPrinter() provisioner.StatusFunc {
	return func(ev provisioner.StatusEvent) {
		fmt.Printf("%v %s\n", aurora.Green("["+ev.Step+"]"), ev.Message)
	}
}

// DebugPrinter returns a remotehost.DebugFunc that echoes every command run
// over SSH and its exit code, gated by the CLI's --debug flag. Non-zero
// exit codes print in red, matching the pack's status-colorized failure
// lines.
func DebugPrinter() remotehost.DebugFunc {
	return func(cmd string, exitCode int) {
		if exitCode == 0 {
			fmt.Printf("%v %s\n", aurora.Gray(12, "$"), cmd)
			return
		}
		fmt.Printf("%v %s %v\n", aurora.Red("$"), cmd, aurora.Red(fmt.Sprintf("(exit %d)", exitCode)))
	}
}
