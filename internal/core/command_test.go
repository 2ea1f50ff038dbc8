package core

import "testing"

func TestSplitCommandShellStyle(t *testing.T) {
	cmd, args, err := SplitCommand("sh -c 'echo hi there'", nil)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if cmd != "sh" {
		t.Fatalf("cmd=%q", cmd)
	}
	if len(args) != 2 || args[0] != "-c" || args[1] != "echo hi there" {
		t.Fatalf("args=%v", args)
	}
}

func TestSplitCommandExplicitArgsVerbatim(t *testing.T) {
	cmd, args, err := SplitCommand("/usr/bin/some tool", []string{"-v"})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if cmd != "/usr/bin/some tool" || len(args) != 1 {
		t.Fatalf("cmd=%q args=%v", cmd, args)
	}
}

func TestSplitCommandErrors(t *testing.T) {
	if _, _, err := SplitCommand("  ", nil); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, _, err := SplitCommand("sh -c 'unterminated", nil); err == nil {
		t.Fatal("expected error for bad quoting")
	}
}
