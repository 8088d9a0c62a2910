package webui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// RunOptions control a single shell command.
type RunOptions struct {
	// Environment activates the conda environment first.
	Environment bool
	// CaptureOutput collects stdout instead of passing it through.
	CaptureOutput bool
	// Dir overrides the working directory.
	Dir string
}

// Result is the outcome of a command that ran, successfully or not.
type Result struct {
	Command  string
	ExitCode int
	Stdout   []byte
}

// Runner executes shell commands. A non-zero exit is reported in Result,
// not as an error; errors mean the command could not be run.
type Runner interface {
	Run(ctx context.Context, cmd string, opts RunOptions) (Result, error)
}

// CommandError reports a command that had to succeed and did not.
type CommandError struct {
	Command  string
	ExitCode int
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command '%s' failed with exit status code '%d'", e.Command, e.ExitCode)
}

// AssertSuccess turns a non-zero exit into a *CommandError.
func AssertSuccess(res Result) error {
	if res.ExitCode != 0 {
		return &CommandError{Command: res.Command, ExitCode: res.ExitCode}
	}
	return nil
}

// ShellRunner runs commands through the platform shell, optionally inside
// the installer's conda environment.
type ShellRunner struct {
	ScriptDir string
	EnvPath   string
	Platform  Platform
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *slog.Logger
}

func NewShellRunner(scriptDir, envPath string, platform Platform, logger *slog.Logger) *ShellRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellRunner{
		ScriptDir: scriptDir,
		EnvPath:   envPath,
		Platform:  platform,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Logger:    logger,
	}
}

// Wrap prefixes cmd with the conda activation for the platform.
func (r *ShellRunner) Wrap(cmd string) string {
	if r.Platform.IsWindows() {
		condaBat := filepath.Join(r.ScriptDir, "installer_files", "conda", "condabin", "conda.bat")
		return `"` + condaBat + `" activate "` + r.EnvPath + `" >nul && ` + cmd
	}
	condaSh := filepath.Join(r.ScriptDir, "installer_files", "conda", "etc", "profile.d", "conda.sh")
	return `. "` + condaSh + `" && conda activate "` + r.EnvPath + `" && ` + cmd
}

func (r *ShellRunner) Run(ctx context.Context, cmd string, opts RunOptions) (Result, error) {
	if opts.Environment {
		cmd = r.Wrap(cmd)
	}

	c := shellCommand(ctx, cmd)
	c.Dir = r.ScriptDir
	if opts.Dir != "" {
		c.Dir = opts.Dir
	}

	var stdout bytes.Buffer
	if opts.CaptureOutput {
		c.Stdout = &stdout
	} else {
		c.Stdout = r.Stdout
		c.Stderr = r.Stderr
	}

	r.Logger.Debug("running command", "cmd", cmd, "dir", c.Dir)
	res := Result{Command: cmd}
	err := c.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("run %q: %w", cmd, err)
	}
	res.Stdout = stdout.Bytes()
	return res, nil
}
