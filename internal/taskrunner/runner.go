// Package taskrunner invokes the LMS's own scheduled tasks as external
// processes under a restricted service account.
package taskrunner

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/parentsync/parentsync/internal/config"
)

const defaultTimeout = 5 * time.Minute

// TaskRunner runs one named LMS task and returns its output lines and
// exit code. A non-zero exit code is not an error at this level; callers
// decide whether it is fatal.
type TaskRunner interface {
	Run(ctx context.Context, task string) ([]string, int, error)
}

// Runner shells out to the LMS task CLI.
type Runner struct {
	cfg config.TaskRunner
}

// New creates a runner from configuration. A zero timeout falls back to
// five minutes; an external process must never be an unbounded wait.
func New(cfg config.TaskRunner) *Runner {
	return &Runner{cfg: cfg}
}

// Run executes the named task. The process is killed when the context is
// cancelled or the configured timeout elapses.
func (r *Runner) Run(ctx context.Context, task string) ([]string, int, error) {
	timeout := defaultTimeout
	if r.cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(r.cfg.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		name string
		args []string
	)

	fields := strings.Fields(r.cfg.BinPath)
	if len(fields) == 0 {
		return nil, -1, errors.New("taskrunner binPath is not configured")
	}

	if r.cfg.RunAsUser != "" {
		name = "sudo"
		args = append(args, "-u", r.cfg.RunAsUser)
		args = append(args, fields...)
	} else {
		name = fields[0]
		args = fields[1:]
	}

	args = append(args, "--execute="+task)

	log.Info().Str("task", task).Str("cmd", name).Msg("running LMS task")

	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()

	lines := splitLines(string(out))

	var exitErr *exec.ExitError

	switch {
	case err == nil:
		return lines, 0, nil
	case errors.As(err, &exitErr):
		return lines, exitErr.ExitCode(), nil
	default:
		return lines, -1, errors.Wrapf(err, "failed to run LMS task %s", task)
	}
}

func splitLines(out string) []string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return nil
	}

	return strings.Split(out, "\n")
}
