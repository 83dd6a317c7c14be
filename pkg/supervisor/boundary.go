package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/ben-moore/lokad-cloud/pkg/config"
	"github.com/ben-moore/lokad-cloud/pkg/host"
	"github.com/ben-moore/lokad-cloud/pkg/logging"
)

// ExitRestartRequested is the exit code a boundary process uses to
// carry the restart decision across the process boundary.
const ExitRestartRequested = 3

// killGrace is how long teardown waits after SIGTERM before
// escalating to SIGKILL. It exceeds the host's 25-second stop bound so
// a cleanly-stopping child is never killed mid-shutdown.
const killGrace = 30 * time.Second

// Boundary is one isolation boundary: a separate fault domain hosting
// one run of the processing loop.
type Boundary interface {
	// Run hosts one processing-loop run and reports whether a restart
	// was requested.
	Run(ctx context.Context) (bool, error)

	// Stop asks the hosted run to stop. Best effort; the bounded wait
	// lives inside the host.
	Stop() error

	// Teardown destroys the boundary. After Teardown returns nil,
	// nothing of the boundary is left running.
	Teardown() error
}

// ProcessBoundary is a child process running this binary's boundary
// command. Fault isolation is real: a crash in the child leaves the
// supervisor standing.
type ProcessBoundary struct {
	binary string
	args   []string
	log    *logging.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewProcessBoundary creates a boundary that will execute binary with
// the given arguments.
func NewProcessBoundary(binary string, args []string, log *logging.Logger) *ProcessBoundary {
	return &ProcessBoundary{binary: binary, args: args, log: log}
}

// Run starts the child process and blocks until it exits. The restart
// decision travels back as the child's exit code.
func (b *ProcessBoundary) Run(ctx context.Context) (bool, error) {
	cmd := exec.Command(b.binary, b.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// Own process group so teardown can signal the child and anything
	// it spawned in one shot.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("start boundary process: %w", err)
	}

	b.mu.Lock()
	b.cmd = cmd
	b.mu.Unlock()

	b.log.Debug("boundary process started", map[string]interface{}{
		"pid": cmd.Process.Pid,
	})

	// Context cancellation translates to a termination signal; the
	// child's own shutdown handling takes it from there.
	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		case <-waitDone:
		}
	}()

	err := cmd.Wait()
	close(waitDone)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if err == nil {
		return false, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == ExitRestartRequested {
			return true, nil
		}
		return false, fmt.Errorf("boundary process exited with code %d", exitErr.ExitCode())
	}
	return false, fmt.Errorf("wait for boundary process: %w", err)
}

// Stop forwards a termination signal to the child. A signal that fails
// because the child already exited is reported as an error and left to
// the caller to swallow.
func (b *ProcessBoundary) Stop() error {
	b.mu.Lock()
	cmd := b.cmd
	b.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return fmt.Errorf("no boundary process")
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal boundary process: %w", err)
	}
	return nil
}

// Teardown ensures the child process group is gone, escalating from
// SIGTERM to SIGKILL. A child that survives SIGKILL is unkillable from
// here; that failure is returned for the supervisor to treat as fatal.
func (b *ProcessBoundary) Teardown() error {
	b.mu.Lock()
	cmd := b.cmd
	b.cmd = nil
	b.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pgid := -cmd.Process.Pid
	if cmd.ProcessState != nil {
		// The child was reaped by Run, but anything it spawned into
		// the process group may linger. Sweep the group before
		// declaring the boundary gone.
		return killGroup(pgid)
	}

	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("terminate boundary process group: %w", err)
	}

	deadline := time.Now().Add(killGrace)
	for time.Now().Before(deadline) {
		if cmd.ProcessState != nil || syscall.Kill(pgid, syscall.Signal(0)) == syscall.ESRCH {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}

	return killGroup(pgid)
}

// killGroup sends SIGKILL to the process group and waits for it to
// empty. An absent group is success.
func killGroup(pgid int) error {
	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil {
		if err == syscall.ESRCH {
			return nil
		}
		return fmt.Errorf("kill boundary process group: %w", err)
	}

	// SIGKILL cannot be caught; the wait here is only for init to reap.
	deadline := time.Now().Add(killGrace)
	for time.Now().Before(deadline) {
		if syscall.Kill(pgid, syscall.Signal(0)) == syscall.ESRCH {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("boundary process group survived SIGKILL")
}

// InProcBoundary hosts the run in the supervisor's own process. No
// fault isolation; intended for development, standalone mode and
// tests.
type InProcBoundary struct {
	host     *host.Host
	settings config.Settings
}

// NewInProcBoundary creates an in-process boundary around the given
// host.
func NewInProcBoundary(h *host.Host, settings config.Settings) *InProcBoundary {
	return &InProcBoundary{host: h, settings: settings}
}

// Run hosts one run directly
func (b *InProcBoundary) Run(ctx context.Context) (bool, error) {
	return b.host.Run(ctx, b.settings), nil
}

// Stop forwards to the host's bounded stop
func (b *InProcBoundary) Stop() error {
	b.host.Stop()
	return nil
}

// Teardown is a no-op: the in-process boundary owns no resources of
// its own.
func (b *InProcBoundary) Teardown() error { return nil }
