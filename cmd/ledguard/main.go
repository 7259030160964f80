// cmd/ledguard/main.go
package main

import (
	"errors"
	"fmt"
	"os"
)

// exitRestart asks the supervisor to restart the process (EX_TEMPFAIL).
const exitRestart = 75

// errRestartExit is returned by run when --exit-on-restart is set and
// a restart was requested.
var errRestartExit = errors.New("restart requested")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ledguard:", err)
		if errors.Is(err, errRestartExit) {
			os.Exit(exitRestart)
		}
		os.Exit(1)
	}
}
