// Package cmdexec spawns local commands (spec.md's "local command" leaf
// under TaskCommand/TaskScript/RemoteExec-with-no-SSHDest), streaming
// stdout/stderr into a shared outputlog.OutputLog exactly as
// internal/sshsession does for remote commands — both produce the same
// Handle shape so the engine's Impl layer (internal/engine) doesn't need to
// know which transport a command ran over.
package cmdexec

import (
	"context"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/outputlog"
)

// Options configures a spawned command.
type Options struct {
	Dir   string
	Env   []string // nil inherits the current process environment
	Stdin io.Reader
	Log   *outputlog.OutputLog // nil allocates a fresh one
}

// Handle is the shared shape returned by both cmdexec.Spawn and
// sshsession.SpawnCommand: a running (or finished) process plus its
// captured output log and a single-fire completion channel.
type Handle struct {
	cmd *exec.Cmd
	log *outputlog.OutputLog

	doneCh   chan struct{}
	doneOnce sync.Once

	mu       sync.Mutex
	err      error
	exitCode int
}

// Spawn starts argv[0] with argv[1:] as arguments under ctx: cancelling ctx
// kills the process (exec.CommandContext's default behavior).
func Spawn(ctx context.Context, argv []string, opts Options) (*Handle, error) {
	if len(argv) == 0 {
		return nil, errs.New(errs.KindIO, "E_EMPTY_ARGV", "cmdexec: empty argv")
	}

	log := opts.Log
	if log == nil {
		log = outputlog.New()
	}
	log.AppendCommand(argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "E_STDOUT_PIPE", "cmdexec: stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "E_STDERR_PIPE", "cmdexec: stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(errs.KindSSHSpawn, "E_SPAWN", "cmdexec: start", err)
	}

	h := &Handle{cmd: cmd, log: log, doneCh: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = log.ConsumeStdout(stdout) }()
	go func() { defer wg.Done(); _ = log.ConsumeStderr(stderr) }()

	go func() {
		wg.Wait()
		waitErr := cmd.Wait()
		h.mu.Lock()
		h.err = waitErr
		if cmd.ProcessState != nil {
			h.exitCode = cmd.ProcessState.ExitCode()
		}
		h.mu.Unlock()
		log.AppendStatus(exitStatusLine(h.exitCode, waitErr))
		h.doneOnce.Do(func() { close(h.doneCh) })
	}()

	return h, nil
}

func exitStatusLine(code int, err error) string {
	if err != nil {
		return "exit " + err.Error()
	}
	return "exit " + strconv.Itoa(code)
}

// Done returns the channel that closes once the process has exited and its
// output streams have been fully drained.
func (h *Handle) Done() <-chan struct{} { return h.doneCh }

// Err returns the process's wait error (nil on a clean exit), valid only
// after Done has closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// ExitCode returns the process's exit code, valid only after Done has
// closed. -1 if the process was killed by a signal.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// OutputLog returns the log accumulating this command's captured streams.
func (h *Handle) OutputLog() *outputlog.OutputLog { return h.log }
