package core

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// SplitCommand resolves the executable and argument vector for a start
// request. When args are given the command is taken verbatim as the
// executable. When args are absent the command is split shell-style, so
// callers can pass a single string like `sh -c 'sleep 10'`.
func SplitCommand(command string, args []string) (string, []string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", nil, fmt.Errorf("command is required")
	}
	if args != nil {
		return command, args, nil
	}
	words, err := shellquote.Split(command)
	if err != nil {
		return "", nil, fmt.Errorf("split command: %w", err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("command is required")
	}
	return words[0], words[1:], nil
}
