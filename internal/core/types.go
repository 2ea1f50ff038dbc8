package core

import (
	"errors"
	"time"
)

// TaskState describes the lifecycle state of a managed process.
// The transition is monotonic: once exited, a task never reverts.
type TaskState string

const (
	TaskStateRunning TaskState = "running"
	TaskStateExited  TaskState = "exited"
)

// Stream identifies which output stream a log item was captured from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Sentinel errors surfaced to the protocol layers.
var (
	ErrTaskNotFound = errors.New("task not found")
	ErrNotRunning   = errors.New("task is not running")
	ErrLaunch       = errors.New("failed to launch process")
)

// LogItem is one captured chunk of child output.
type LogItem struct {
	Time   time.Time
	Stream Stream
	Text   string
}

// StartSpec carries the launch parameters for a new task.
// Args may be nil, in which case Command is split shell-style.
type StartSpec struct {
	Command     string
	Args        []string
	WorkingDir  *string
	Env         map[string]string
	Name        *string
	MaxLogBytes int
}

// Summary is the externally visible view of a task. It never carries
// raw log contents; those are only available through the logs operation.
type Summary struct {
	ID          string    `json:"id"`
	Name        *string   `json:"name,omitempty"`
	Command     string    `json:"command"`
	Args        []string  `json:"args"`
	WorkingDir  *string   `json:"working_dir,omitempty"`
	PID         int       `json:"pid"`
	State       TaskState `json:"state"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	Signal      *string   `json:"signal,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LogBytes    int       `json:"log_bytes"`
	MaxLogBytes int       `json:"max_log_bytes"`
}

// LogView is the result of a logs operation.
type LogView struct {
	Text          string `json:"text"`
	TotalItems    int    `json:"total_items"`
	ReturnedItems int    `json:"returned_items"`
}

// SignalResult reports whether a signal delivery call succeeded.
// Delivery success does not imply the process actually terminated.
type SignalResult struct {
	Delivered bool   `json:"delivered"`
	PID       int    `json:"pid"`
	Signal    string `json:"signal"`
}

// WaitResult is either the final summary or a timeout marker carrying
// the task's state as known at the moment the deadline fired.
type WaitResult struct {
	TimedOut bool    `json:"timeout"`
	Summary  Summary `json:"summary"`
}

// PruneResult reports how many tasks a prune removed and how many remain.
type PruneResult struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}
