package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Result holds the structured output of a step run.
type Result struct {
	StepName   string `json:"step_name"`
	Passed     bool   `json:"passed"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int    `json:"duration_ms"`
	Summary    string `json:"summary"`
	Findings   string `json:"findings"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
}

// StepConfig mirrors config.Step with the fields the runner needs.
type StepConfig struct {
	Name    string
	Command string
	Parser  string
	Timeout time.Duration
}

// CommandRunner abstracts command execution for testability.
type CommandRunner interface {
	Run(ctx context.Context, dir string, command string) (stdout string, stderr string, exitCode int, err error)
}

// ExecRunner implements CommandRunner by shelling out.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, dir string, command string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	// Steps spawn whole process trees (conda solvers, pytest workers) that
	// inherit the output pipes. Killing only the shell leaves orphans holding
	// the pipes open and Run blocked past the deadline, so cancellation kills
	// the process group, and WaitDelay bounds the wait even if something
	// escapes the group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 10 * time.Second

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return stdoutBuf.String(), stderrBuf.String(), -1, fmt.Errorf("exec: %w", err)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// Runner executes steps and parses their output.
type Runner struct {
	cmd     CommandRunner
	parsers map[string]Parser
}

// NewRunner creates a Runner with the given command runner.
func NewRunner(cmd CommandRunner) *Runner {
	r := &Runner{
		cmd:     cmd,
		parsers: make(map[string]Parser),
	}
	r.parsers["pytest"] = &PytestParser{}
	r.parsers["conda"] = &CondaParser{}
	r.parsers["pip"] = &PipParser{}
	r.parsers["generic"] = &GenericParser{}
	return r
}

// Run executes a single step in the given directory. A timeout produces a
// failed Result, not an error; errors are reserved for exec-level failures.
func (r *Runner) Run(ctx context.Context, dir string, cfg StepConfig) (*Result, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, exitCode, err := r.cmd.Run(runCtx, dir, cfg.Command)
	durationMs := int(time.Since(start).Milliseconds())

	// A deadline kill can surface as an ExitError (exit -1, nil error from the
	// runner), a wait-delay error, or a plain error; decide timeout from the
	// context itself, never from the error shape.
	if runCtx.Err() == context.DeadlineExceeded {
		return &Result{
			StepName:   cfg.Name,
			Passed:     false,
			ExitCode:   -1,
			DurationMs: durationMs,
			Summary:    fmt.Sprintf("timeout after %s", timeout),
			Stdout:     stdout,
			Stderr:     stderr,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run step %q: %w", cfg.Name, err)
	}

	parser, ok := r.parsers[cfg.Parser]
	if !ok {
		parser = r.parsers["generic"]
	}

	parsed := parser.Parse(stdout, stderr, exitCode)

	findingsJSON, _ := json.Marshal(parsed.Findings)

	return &Result{
		StepName:   cfg.Name,
		Passed:     exitCode == 0 && parsed.Passed,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Summary:    parsed.Summary,
		Findings:   string(findingsJSON),
		Stdout:     stdout,
		Stderr:     stderr,
	}, nil
}

// ExpandCommand substitutes {name} placeholders in a step command with the
// given variables. Unknown placeholders are left untouched.
func ExpandCommand(command string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(command)
}
