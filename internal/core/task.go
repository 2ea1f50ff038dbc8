package core

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Task is one managed external process: immutable launch parameters, a
// runtime handle, the bounded log buffer and the exit broadcast.
//
// mu guards every mutable field. done is closed exactly once, inside the
// running→exited transition while mu is held, so waiters observe the
// final state atomically with the flip. Late waiters see an already
// closed channel and resolve immediately.
type Task struct {
	ID         string
	Name       *string
	Command    string
	Args       []string
	WorkingDir *string
	Env        map[string]string
	CreatedAt  time.Time

	mu       sync.Mutex
	state    TaskState
	pid      int
	exitCode *int
	signal   *string
	logs     *logBuffer
	done     chan struct{}

	proc    *os.Process
	stdin   io.WriteCloser
	stdinMu sync.Mutex
}

func newTask(spec StartSpec, command string, args []string) *Task {
	return &Task{
		ID:         NewID(),
		Name:       spec.Name,
		Command:    command,
		Args:       args,
		WorkingDir: spec.WorkingDir,
		Env:        spec.Env,
		CreatedAt:  time.Now().UTC(),
		state:      TaskStateRunning,
		logs:       newLogBuffer(spec.MaxLogBytes),
		done:       make(chan struct{}),
	}
}

// Done returns the channel closed when the task exits.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Summary snapshots the externally visible view of the task.
func (t *Task) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		ID:          t.ID,
		Name:        t.Name,
		Command:     t.Command,
		Args:        t.Args,
		WorkingDir:  t.WorkingDir,
		PID:         t.pid,
		State:       t.state,
		ExitCode:    t.exitCode,
		Signal:      t.signal,
		CreatedAt:   t.CreatedAt,
		LogBytes:    t.logs.size(),
		MaxLogBytes: t.logs.max,
	}
}

// appendLog records one output chunk. Appends are legal after exit:
// buffered pipe data can still arrive once the process is gone.
func (t *Task) appendLog(stream Stream, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logs.push(LogItem{Time: time.Now().UTC(), Stream: stream, Text: text})
}

// markExited performs the single running→exited transition, records the
// exit outcome and wakes every waiter. Fires at most once.
func (t *Task) markExited(exitCode *int, signal *string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskStateExited {
		return
	}
	t.state = TaskStateExited
	t.exitCode = exitCode
	t.signal = signal
	close(t.done)
}

// LogView renders the selected log items. tail takes precedence over
// offset; with neither set, everything retained is returned. Items are
// concatenated as-is, with no separators beyond the chunk text itself.
func (t *Task) LogView(offset, tail *int, includeTimestamps bool) LogView {
	t.mu.Lock()
	defer t.mu.Unlock()
	selected, total := t.logs.view(offset, tail)
	var b strings.Builder
	for _, item := range selected {
		if includeTimestamps {
			b.WriteString(item.Time.Format(time.RFC3339Nano))
			b.WriteByte(' ')
		}
		b.WriteByte('[')
		b.WriteString(string(item.Stream))
		b.WriteString("] ")
		b.WriteString(item.Text)
	}
	return LogView{Text: b.String(), TotalItems: total, ReturnedItems: len(selected)}
}

// WriteStdin delivers data to the child's standard input, optionally
// appending a newline. Write failures are surfaced, never swallowed.
func (t *Task) WriteStdin(data string, addNewline bool) error {
	t.mu.Lock()
	if t.state != TaskStateRunning {
		t.mu.Unlock()
		return ErrNotRunning
	}
	w := t.stdin
	t.mu.Unlock()

	if addNewline {
		data += "\n"
	}
	// Serialized outside the task lock: a blocking pipe write must not
	// stall log appends or the exit transition.
	t.stdinMu.Lock()
	defer t.stdinMu.Unlock()
	_, err := io.WriteString(w, data)
	return err
}
