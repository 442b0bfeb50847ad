package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Process is one maven invocation.
type Process struct {
	Name   string   // trial id, for logging
	Binary string   // maven executable
	Args   []string // maven arguments
	Dir    string   // working directory
	Env    []string // extra environment, appended to os.Environ

	logger *zap.Logger
}

// ErrInterrupted reports that the process outlived its timeout and was asked
// to stop.
var ErrInterrupted = errors.New("process interrupted after timeout")

// Run starts the process and blocks until it exits, the timeout is reached,
// or ctx is cancelled:
//
//  1. If the process exits before timeout, its exit error is returned.
//  2. When timeout elapses a SIGINT asks maven to stop gracefully, and Run
//     waits for the exit or for ctx to be done. A timeout <= 0 never elapses.
//  3. Cancelling ctx kills the process.
//
// The process is never left running once Run returns.
func (p Process) Run(ctx context.Context, timeout time.Duration) error {
	cmd := exec.CommandContext(ctx, p.Binary, p.Args...)
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	p.logger.Info("running maven", zap.String("trial", p.Name), zap.String("command", cmd.String()))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.Binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case err := <-done:
		return err
	case <-deadline:
		p.logger.Warn("trial exceeded its deadline, interrupting", zap.String("trial", p.Name))
		_ = cmd.Process.Signal(syscall.SIGINT)
		select {
		case <-done:
			return ErrInterrupted
		case <-ctx.Done():
			<-done
			return ctx.Err()
		}
	case <-ctx.Done():
		// CommandContext kills the process
		<-done
		return ctx.Err()
	}
}
