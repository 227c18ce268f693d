package actions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Runner starts external programs. Output waits for the program and
// returns its combined output; Start launches it detached.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	Start(name string, args ...string) error
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (ExecRunner) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap in the background so launched apps do not linger as zombies.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Process is one row of the process table.
type Process struct {
	PID      int     `json:"pid"`
	Name     string  `json:"name"`
	CPU      float64 `json:"cpu_percent"`
	MemoryKB int64   `json:"memory_kb"`
}

// ProcessTable lists and terminates processes.
type ProcessTable interface {
	List(ctx context.Context) ([]Process, error)
	Terminate(ctx context.Context, pid int) error
}

// SystemProcesses reads the table with ps and terminates with signals:
// SIGTERM first, SIGKILL once Grace has passed.
type SystemProcesses struct {
	Runner Runner
	Grace  time.Duration
}

func (p SystemProcesses) List(ctx context.Context) ([]Process, error) {
	out, err := p.Runner.Output(ctx, "ps", "-axo", "pid=,comm=,%cpu=,rss=")
	if err != nil {
		return nil, fmt.Errorf("actions: ps: %w", err)
	}
	return parsePS(string(out)), nil
}

// parsePS reads "pid comm cpu rss" rows. The command name may contain
// spaces, so pid is taken from the front and cpu/rss from the back.
func parsePS(out string) []Process {
	var procs []Process
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		n := len(fields)
		cpu, _ := strconv.ParseFloat(fields[n-2], 64)
		rss, _ := strconv.ParseInt(fields[n-1], 10, 64)
		name := strings.Join(fields[1:n-2], " ")
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		procs = append(procs, Process{PID: pid, Name: name, CPU: cpu, MemoryKB: rss})
	}
	return procs
}

func (p SystemProcesses) Terminate(ctx context.Context, pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return proc.Kill()
	}

	grace := p.Grace
	if grace <= 0 {
		grace = 3 * time.Second
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return err
			}
			return nil
		case <-tick.C:
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				return nil
			}
		}
	}
}
