package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// killGrace is the fixed window stop waits after escalating to SIGKILL.
	killGrace = time.Second
	// drainGrace bounds how long the exit transition waits for the output
	// readers once the process has been reaped. Descendants that inherited
	// the pipes can hold them open indefinitely; their output lands through
	// post-exit appends instead of delaying the state flip.
	drainGrace = 100 * time.Millisecond
)

// Notifier receives a best-effort notification when a task exits.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// Registry owns every managed task: creation, lookup, enumeration and
// removal. All map and per-task mutation is serialized; operations hold
// the registry lock only for lookups, never across blocking calls.
type Registry struct {
	logger   *slog.Logger
	notifier Notifier

	defaultMaxLogBytes int

	mu    sync.Mutex
	tasks map[string]*Task
	order []string
}

// NewRegistry constructs an empty registry. notifier may be nil.
func NewRegistry(logger *slog.Logger, defaultMaxLogBytes int, notifier Notifier) *Registry {
	if defaultMaxLogBytes <= 0 {
		defaultMaxLogBytes = DefaultMaxLogBytes
	}
	return &Registry{
		logger:             logger,
		notifier:           notifier,
		defaultMaxLogBytes: defaultMaxLogBytes,
		tasks:              make(map[string]*Task),
	}
}

// Start launches a process and registers a task for it. It returns as
// soon as the process is spawned, without waiting for output or exit.
// On launch failure no task is registered.
func (r *Registry) Start(spec StartSpec) (Summary, error) {
	command, args, err := SplitCommand(spec.Command, spec.Args)
	if err != nil {
		return Summary{}, err
	}
	if spec.MaxLogBytes <= 0 {
		spec.MaxLogBytes = r.defaultMaxLogBytes
	}
	task := newTask(spec, command, args)

	cmd := exec.Command(command, args...) // #nosec G204
	if spec.WorkingDir != nil {
		cmd.Dir = *spec.WorkingDir
	}
	cmd.Env = mergeEnv(spec.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Summary{}, fmt.Errorf("%w: stdin pipe: %v", ErrLaunch, err)
	}
	// The output pipes are created by hand rather than with StdoutPipe so
	// that Wait reaps the process without waiting on (or closing) them:
	// descendants may inherit the write ends and outlive the child.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return Summary{}, fmt.Errorf("%w: stdout pipe: %v", ErrLaunch, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return Summary{}, fmt.Errorf("%w: stderr pipe: %v", ErrLaunch, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return Summary{}, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	// Only the child and its descendants hold the write ends now.
	stdoutW.Close()
	stderrW.Close()
	if cmd.Process == nil || cmd.Process.Pid <= 0 {
		stdoutR.Close()
		stderrR.Close()
		return Summary{}, fmt.Errorf("%w: no process id obtained", ErrLaunch)
	}

	task.proc = cmd.Process
	task.pid = cmd.Process.Pid
	task.stdin = stdin

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.order = append(r.order, task.ID)
	r.mu.Unlock()

	var readers sync.WaitGroup
	readers.Add(2)
	go r.pumpStream(task, stdoutR, StreamStdout, &readers)
	go r.pumpStream(task, stderrR, StreamStderr, &readers)
	go r.watchExit(task, cmd, &readers)

	r.logger.Info("task started", "task_id", task.ID, "pid", task.pid, "command", command)
	return task.Summary(), nil
}

// pumpStream copies pipe chunks into the task's log buffer in arrival
// order until every write end closes. That may be long after the child
// itself exited when descendants inherited the pipe.
func (r *Registry) pumpStream(task *Task, pipe io.ReadCloser, stream Stream, readers *sync.WaitGroup) {
	defer readers.Done()
	defer pipe.Close()
	buf := make([]byte, 8192)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			task.appendLog(stream, string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// watchExit reaps the process, gives the readers a bounded window to
// drain whatever the OS had flushed by exit time, then fires the exit
// transition exactly once. The flip is never gated on pipe EOF: output
// still in flight afterwards lands as post-exit appends.
func (r *Registry) watchExit(task *Task, cmd *exec.Cmd, readers *sync.WaitGroup) {
	waitErr := cmd.Wait()

	drained := make(chan struct{})
	go func() {
		readers.Wait()
		close(drained)
	}()
	waitDeadline(drained, drainGrace)

	var exitCode *int
	var signal *string
	switch {
	case waitErr == nil:
		code := 0
		exitCode = &code
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				name := signalName(ws.Signal())
				signal = &name
			} else {
				code := exitErr.ExitCode()
				exitCode = &code
			}
		} else {
			// Anomalous failure out of Wait: no code, no signal. Leave a
			// diagnostic in the log for status/logs to reveal.
			task.appendLog(StreamStderr, fmt.Sprintf("taskmux: process error: %v\n", waitErr))
		}
	}

	task.markExited(exitCode, signal)
	r.logger.Info("task exited", "task_id", task.ID, "pid", task.pid,
		"exit_code", exitCode, "signal", signal)

	if r.notifier != nil {
		summary := task.Summary()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.notifier.Send(ctx, "task exited", describeExit(summary)); err != nil {
				r.logger.Warn("notify task exit", "task_id", summary.ID, "err", err)
			}
		}()
	}
}

func describeExit(s Summary) string {
	name := s.ID
	if s.Name != nil {
		name = *s.Name
	}
	switch {
	case s.Signal != nil:
		return fmt.Sprintf("%s terminated by %s", name, *s.Signal)
	case s.ExitCode != nil:
		return fmt.Sprintf("%s exited with code %d", name, *s.ExitCode)
	default:
		return fmt.Sprintf("%s exited", name)
	}
}

// mergeEnv overlays caller-supplied overrides on the inherited
// environment. Overrides win on key collision.
func mergeEnv(overrides map[string]string) []string {
	inherited := os.Environ()
	if len(overrides) == 0 {
		return inherited
	}
	merged := make([]string, 0, len(inherited)+len(overrides))
	for _, kv := range inherited {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		merged = append(merged, kv)
	}
	for key, value := range overrides {
		merged = append(merged, key+"="+value)
	}
	return merged
}

func (r *Registry) lookup(id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

// Status returns the summary for one task.
func (r *Registry) Status(id string) (Summary, error) {
	task, err := r.lookup(id)
	if err != nil {
		return Summary{}, err
	}
	return task.Summary(), nil
}

// List returns summaries for every registered task in insertion order.
func (r *Registry) List() []Summary {
	r.mu.Lock()
	tasks := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		tasks = append(tasks, r.tasks[id])
	}
	r.mu.Unlock()

	summaries := make([]Summary, 0, len(tasks))
	for _, task := range tasks {
		summaries = append(summaries, task.Summary())
	}
	return summaries
}

// Logs renders the selected portion of a task's log buffer.
func (r *Registry) Logs(id string, offset, tail *int, includeTimestamps bool) (LogView, error) {
	task, err := r.lookup(id)
	if err != nil {
		return LogView{}, err
	}
	return task.LogView(offset, tail, includeTimestamps), nil
}

// Write delivers data to a running task's standard input.
func (r *Registry) Write(id, data string, addNewline bool) error {
	task, err := r.lookup(id)
	if err != nil {
		return err
	}
	return task.WriteStdin(data, addNewline)
}

// Signal forwards a named signal to the task's process. Signaling an
// already-exited task is not an error; the result simply reports that
// nothing was delivered.
func (r *Registry) Signal(id, name string) (SignalResult, error) {
	task, err := r.lookup(id)
	if err != nil {
		return SignalResult{}, err
	}
	sig, err := LookupSignal(name)
	if err != nil {
		return SignalResult{}, err
	}
	result := SignalResult{PID: task.pid, Signal: signalName(sig)}
	if task.State() != TaskStateRunning {
		return result, nil
	}
	if err := task.proc.Signal(sig); err != nil {
		r.logger.Warn("signal delivery failed", "task_id", id, "signal", result.Signal, "err", err)
		return result, nil
	}
	result.Delivered = true
	return result, nil
}

// Stop terminates a task with bounded escalation: SIGTERM, then SIGKILL
// once timeout elapses, then a fixed one-second grace. It always
// resolves with the current summary, never blocks indefinitely and
// never raises an error when the process refuses to die. The task stays
// registered.
func (r *Registry) Stop(id string, timeout time.Duration) (Summary, error) {
	task, err := r.lookup(id)
	if err != nil {
		return Summary{}, err
	}
	if task.State() != TaskStateRunning {
		return task.Summary(), nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	_ = task.proc.Signal(unix.SIGTERM)
	if waitDeadline(task.Done(), timeout) {
		return task.Summary(), nil
	}

	r.logger.Warn("task ignored SIGTERM, escalating", "task_id", id, "pid", task.pid)
	_ = task.proc.Signal(unix.SIGKILL)
	waitDeadline(task.Done(), killGrace)
	return task.Summary(), nil
}

// Wait blocks until the task exits or the timeout elapses. A nil
// timeout waits forever. A timed-out wait leaves the exit broadcast
// untouched, so later waits resolve normally once exit occurs.
func (r *Registry) Wait(id string, timeout *time.Duration) (WaitResult, error) {
	task, err := r.lookup(id)
	if err != nil {
		return WaitResult{}, err
	}
	if timeout == nil {
		<-task.Done()
		return WaitResult{Summary: task.Summary()}, nil
	}
	if waitDeadline(task.Done(), *timeout) {
		return WaitResult{Summary: task.Summary()}, nil
	}
	return WaitResult{TimedOut: true, Summary: task.Summary()}, nil
}

// waitDeadline races an exit broadcast against a deadline. Returns true
// if the broadcast won.
func waitDeadline(done <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Prune removes every exited task from the registry; with includeRunning
// it also detaches running tasks. No signal is ever sent: a pruned
// running task keeps running unmanaged, its output no longer retrievable
// through this interface.
func (r *Registry) Prune(includeRunning bool) PruneResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.order[:0]
	removed := 0
	for _, id := range r.order {
		task := r.tasks[id]
		if includeRunning || task.State() == TaskStateExited {
			delete(r.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return PruneResult{Removed: removed, Remaining: len(r.order)}
}

// TerminateAll sends SIGTERM to every still-running task, best-effort,
// without waiting. Called when the controller itself is shutting down.
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	tasks := make([]*Task, 0, len(r.order))
	for _, id := range r.order {
		tasks = append(tasks, r.tasks[id])
	}
	r.mu.Unlock()

	for _, task := range tasks {
		if task.State() != TaskStateRunning {
			continue
		}
		if err := task.proc.Signal(unix.SIGTERM); err != nil {
			r.logger.Warn("terminate on shutdown", "task_id", task.ID, "err", err)
		}
	}
}
