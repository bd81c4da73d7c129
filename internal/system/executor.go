package system

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Runner abstracts external command execution so managers can be exercised
// against a recording stub in tests.
type Runner interface {
	Run(name string, args ...string) error
	RunOutput(name string, args ...string) (string, error)
	RunCmd(cmd *exec.Cmd) (string, error)
	RunStream(name string, args ...string) error
}

// Executor handles execution of external commands. Every invocation is
// echoed to the audit writer before it runs; commands always execute.
type Executor struct {
	debug bool
	audit io.Writer
}

// NewExecutor creates a new executor
func NewExecutor(debug bool) *Executor {
	return &Executor{
		debug: debug,
		audit: os.Stderr,
	}
}

// Run executes a command and discards output
func (e *Executor) Run(name string, args ...string) error {
	_, err := e.RunOutput(name, args...)
	return err
}

// RunOutput executes a command and returns stdout
func (e *Executor) RunOutput(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	return e.RunCmd(cmd)
}

// RunCmd executes a prepared command, capturing stdout and stderr.
func (e *Executor) RunCmd(cmd *exec.Cmd) (string, error) {
	e.echo(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if e.debug {
		fmt.Fprintf(e.audit, "+ %s finished in %s\n", cmd.Args[0], time.Since(start).Round(time.Millisecond))
	}
	if err != nil {
		return "", fmt.Errorf("%s %w: %v: %s",
			cmd.Args[0], ErrTool, err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// RunStream executes a command with stdout/stderr attached to the process
// streams. Used for long-running tools whose progress the operator should
// see live (debootstrap, apt).
func (e *Executor) RunStream(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	e.echo(cmd)

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %w: %v", cmd.Args[0], ErrTool, err)
	}
	return nil
}

func (e *Executor) echo(cmd *exec.Cmd) {
	fmt.Fprintf(e.audit, "+ %s\n", strings.Join(cmd.Args, " "))
}

// CommandExists checks if a command is available in PATH
func (e *Executor) CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// CheckDependencies verifies required commands are available
func (e *Executor) CheckDependencies(deps []string) error {
	var missing []string
	for _, dep := range deps {
		if !e.CommandExists(dep) {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required commands: %s",
			strings.Join(missing, ", "))
	}
	return nil
}
