package core

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestLookupSignal(t *testing.T) {
	cases := []struct {
		name string
		want unix.Signal
	}{
		{"SIGTERM", unix.SIGTERM},
		{"term", unix.SIGTERM},
		{"KILL", unix.SIGKILL},
		{"sigusr1", unix.SIGUSR1},
	}
	for _, tc := range cases {
		got, err := LookupSignal(tc.name)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestLookupSignalUnknown(t *testing.T) {
	if _, err := LookupSignal("SIGBOGUS"); err == nil {
		t.Fatal("expected error for unknown signal")
	}
	if _, err := LookupSignal(""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestSignalName(t *testing.T) {
	if got := signalName(unix.SIGKILL); got != "SIGKILL" {
		t.Fatalf("got %q", got)
	}
}
