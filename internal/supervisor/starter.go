package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// StartSpec describes one agent process to launch.
type StartSpec struct {
	// Argv is the full command line, binary first.
	Argv []string
	// Env entries are merged over the current environment.
	Env map[string]string
	// Dir is the working directory for the child.
	Dir string
	// CaptureDir receives stdout.log and stderr.log, created fresh.
	CaptureDir string
}

// Handle is a live child process. Exited never blocks.
type Handle interface {
	PID() int
	// Exited reports the exit code once the process has terminated.
	Exited() (code int, done bool)
	// Terminate sends the graceful termination signal.
	Terminate() error
	// Kill force-kills the process.
	Kill() error
}

// Starter launches agent processes. The exec-backed implementation is
// the only one used outside tests.
type Starter interface {
	Start(spec StartSpec) (Handle, error)
}

// ExecStarter launches real OS processes via os/exec.
type ExecStarter struct{}

// NewExecStarter returns the production starter.
func NewExecStarter() *ExecStarter {
	return &ExecStarter{}
}

// Start launches the process with output captured to files. Capture is
// best-effort: if the log files cannot be created the child runs with
// its output discarded, since the exit code is the authoritative
// record.
func (s *ExecStarter) Start(spec StartSpec) (Handle, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = mergeEnv(os.Environ(), spec.Env)

	var stdout, stderr *os.File
	if spec.CaptureDir != "" {
		if err := os.MkdirAll(spec.CaptureDir, 0o755); err == nil {
			stdout, _ = os.Create(filepath.Join(spec.CaptureDir, "stdout.log"))
			stderr, _ = os.Create(filepath.Join(spec.CaptureDir, "stderr.log"))
		}
	}
	if stdout != nil {
		cmd.Stdout = stdout
	}
	if stderr != nil {
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		if stdout != nil {
			stdout.Close()
		}
		if stderr != nil {
			stderr.Close()
		}
		return nil, fmt.Errorf("start %s: %w", spec.Argv[0], err)
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		if stdout != nil {
			defer stdout.Close()
		}
		if stderr != nil {
			defer stderr.Close()
		}
		err := cmd.Wait()
		if err == nil {
			h.code = 0
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.code = exitErr.ExitCode()
			return
		}
		h.code = -1
	}()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	code int
}

func (h *execHandle) PID() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Exited() (int, bool) {
	select {
	case <-h.done:
		return h.code, true
	default:
		return 0, false
	}
}

func (h *execHandle) Terminate() error {
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Kill() error {
	return h.cmd.Process.Kill()
}

// mergeEnv overlays extra on top of base, replacing duplicates.
func mergeEnv(base []string, extra map[string]string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, shadowed := extra[key]; !shadowed {
			out = append(out, kv)
		}
	}
	for k, v := range extra {
		out = append(out, k+"="+v)
	}
	return out
}
