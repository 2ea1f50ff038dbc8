package core

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// LookupSignal resolves a signal name to its numeric value. Names are
// case-insensitive and the SIG prefix is optional ("term", "SIGTERM").
func LookupSignal(name string) (syscall.Signal, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	if s == "" {
		return 0, fmt.Errorf("signal name is required")
	}
	if !strings.HasPrefix(s, "SIG") {
		s = "SIG" + s
	}
	sig := unix.SignalNum(s)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	return sig, nil
}

// signalName returns the canonical SIGxxx name for a signal number.
func signalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return fmt.Sprintf("signal %d", int(sig))
}
