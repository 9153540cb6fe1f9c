package main

import (
	"fmt"
	"os"

	"github.com/jacobsa/daemonize"
)

// daemonizeSelf re-execs the current binary with --foreground, waits for
// the child to report its own startup outcome over daemonize's status
// pipe, and exits - mirroring the teacher's node-process daemonization
// (jacobsa/daemonize is a direct teacher dependency earmarked for this;
// no pack repo calls it directly, since aistore's own invocation site
// wasn't part of this retrieval).
func daemonizeSelf() error {
	path, err := os.Executable()
	if err != nil {
		return err
	}
	args := append([]string{"--foreground"}, os.Args[1:]...)
	return daemonize.Run(path, args, os.Environ(), os.Stderr)
}

// signalStartupOutcome reports whether the foreground child finished its
// startup sequence successfully. Called once the SCP and chain ticker are
// both up. A no-op when the process wasn't launched via daemonizeSelf.
func signalStartupOutcome(err error) {
	if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
		fmt.Fprintf(os.Stderr, "drawnode: signal startup outcome: %v\n", sigErr)
	}
}
