package sshsession

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/opereon/opereon-sub000/internal/cmdexec"
	"github.com/opereon/opereon-sub000/internal/errs"
	"github.com/opereon/opereon-sub000/internal/logging"
	"github.com/opereon/opereon-sub000/internal/outputlog"

	"github.com/joeycumines/logiface"
)

// Config configures every Session opened by a Pool.
type Config struct {
	SSHBin         string // defaults to "ssh"
	SocketDir      string // defaults to os.TempDir()/opereon-ssh
	ConnectTimeout time.Duration // defaults to 2s, matching the source's ControlMaster open
	Log            *logiface.Logger[logiface.Event]
}

func (c Config) sshBin() string {
	if c.SSHBin == "" {
		return "ssh"
	}
	return c.SSHBin
}

func (c Config) socketDir() string {
	if c.SocketDir == "" {
		return filepath.Join(os.TempDir(), "opereon-ssh")
	}
	return c.SocketDir
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return 2 * time.Second
	}
	return c.ConnectTimeout
}

// Session wraps one OpenSSH ControlMaster connection: Open spawns
// `ssh -M -N -S <socket>`, which backgrounds the multiplexed master;
// every subsequent spawn_command/spawn_script runs `ssh -S <socket> ...`,
// reusing the existing TCP connection rather than renegotiating it.
type Session struct {
	dest   Dest
	cfg    Config
	log    *logiface.Logger[logiface.Event]
	socket string

	mu     sync.Mutex
	opened bool
}

func newSession(dest Dest, cfg Config) *Session {
	return &Session{
		dest:   dest,
		cfg:    cfg,
		log:    logging.For(cfg.Log, "sshsession"),
		socket: filepath.Join(cfg.socketDir(), dest.CacheKey()+".sock"),
	}
}

// baseArgs returns the -S/-T/StrictHostKeyChecking flags shared by every
// ssh invocation against this session, plus (optionally) the
// user@host/-p target and auth flags.
func (s *Session) baseArgs(includeTarget bool) []string {
	args := []string{}
	if includeTarget {
		args = append(args, fmt.Sprintf("%s@%s", s.dest.Username, s.dest.Hostname))
		if s.dest.Port != 22 {
			args = append(args, "-p", fmt.Sprintf("%d", s.dest.Port))
		}
		args = append(args, s.authArgs()...)
	}
	args = append(args, "-S", s.socket, "-T", "-o", "StrictHostKeyChecking=yes")
	return args
}

func (s *Session) authArgs() []string {
	switch s.dest.Auth.Method {
	case AuthPublicKey:
		return []string{"-i", s.dest.Auth.IdentityFile}
	default:
		return nil
	}
}

// authEnv returns the extra environment variables AuthPassword needs:
// SSH_ASKPASS pointed at the op-ask helper binary, plus
// SSH_ASKPASS_REQUIRE=force so ssh uses the helper even when a terminal is
// attached. ssh is not started under setsid.
func (s *Session) authEnv() []string {
	if s.dest.Auth.Method != AuthPassword {
		return nil
	}
	askPass := filepath.Join(filepath.Dir(os.Args[0]), "op-ask")
	return []string{
		"DISPLAY=:0",
		"SSH_ASKPASS=" + askPass,
		"SSH_ASKPASS_REQUIRE=force",
		"OPEREON_PASSWD=" + s.dest.Auth.Password,
	}
}

// Open establishes the ControlMaster socket. Idempotent: a second call on
// an already-open session is a no-op, matching the source's guard against
// ssh hanging when a socket of the same name already exists.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}

	if err := os.MkdirAll(s.cfg.socketDir(), 0o700); err != nil {
		return errs.Wrap(errs.KindSSHOpen, "E_SSH_SOCKET_DIR", "cannot create ssh control socket directory", err)
	}

	args := append([]string{"-n", "-M", "-N"}, s.baseArgs(true)...)
	args = append(args, "-o", "ControlMaster=auto", "-o", "ControlPersist=yes",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(s.cfg.connectTimeout().Seconds())))

	openCtx, cancel := context.WithTimeout(ctx, s.cfg.connectTimeout()+5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(openCtx, s.cfg.sshBin(), args...)
	cmd.Env = append(os.Environ(), s.authEnv()...)
	stderr, err := cmd.CombinedOutput()
	if err != nil {
		return errs.Wrap(errs.KindSSHProcess, "E_SSH_OPEN", "ssh control master failed to start", err).WithStderr(string(stderr))
	}

	s.opened = true
	s.log.Debug().Str("dest", s.dest.String()).Log("ssh control master opened")
	return nil
}

// Check reports whether the ControlMaster socket is still alive, via
// `ssh -O check`.
func (s *Session) Check(ctx context.Context) bool {
	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return false
	}
	args := append([]string{"-O", "check"}, s.baseArgs(true)...)
	cmd := exec.CommandContext(ctx, s.cfg.sshBin(), args...)
	return cmd.Run() == nil
}

// Close tears down the ControlMaster socket via `ssh -O exit`. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	args := append([]string{"-O", "exit"}, s.baseArgs(true)...)
	cmd := exec.CommandContext(ctx, s.cfg.sshBin(), args...)
	out, err := cmd.CombinedOutput()
	s.opened = false
	if err != nil {
		return errs.Wrap(errs.KindSSHClosed, "E_SSH_CLOSE", "ssh control master exit failed", err).WithStderr(string(out))
	}
	return nil
}

// SpawnCommand runs cmd/args over the shared ControlMaster socket,
// returning the same cmdexec.Handle shape a local spawn returns.
func (s *Session) SpawnCommand(ctx context.Context, cmdName string, args []string, env map[string]string, log *outputlog.OutputLog) (*cmdexec.Handle, error) {
	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return nil, errs.New(errs.KindSSHClosed, "E_SSH_NOT_OPEN", "ssh session not open: "+s.dest.String())
	}

	remote := quoteCommand(cmdName, args, env)

	sshArgs := append([]string{}, s.baseArgs(true)...)
	sshArgs = append(sshArgs, "-o", "BatchMode=yes", remote)

	return cmdexec.Spawn(ctx, append([]string{s.cfg.sshBin()}, sshArgs...), cmdexec.Options{
		Env: append(os.Environ(), s.authEnv()...),
		Log: log,
	})
}

// SpawnScript uploads nothing; scriptBody is the already-prepared wrapper
// (see internal/scriptprep) piped to the remote shell's stdin.
func (s *Session) SpawnScript(ctx context.Context, scriptBody string, log *outputlog.OutputLog) (*cmdexec.Handle, error) {
	s.mu.Lock()
	opened := s.opened
	s.mu.Unlock()
	if !opened {
		return nil, errs.New(errs.KindSSHClosed, "E_SSH_NOT_OPEN", "ssh session not open: "+s.dest.String())
	}

	sshArgs := append([]string{}, s.baseArgs(true)...)
	sshArgs = append(sshArgs, "-o", "BatchMode=yes", "bash", "-s")

	return cmdexec.Spawn(ctx, append([]string{s.cfg.sshBin()}, sshArgs...), cmdexec.Options{
		Env:   append(os.Environ(), s.authEnv()...),
		Stdin: strings.NewReader(scriptBody),
		Log:   log,
	})
}
