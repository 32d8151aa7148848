/*
	A wrapper around the os/exec package that supports testing.

	Example usage:

	err := exec.Run(ctx, &exec.Command{
		Name: "firefox",
		Args: []string{"--profile", dir},
		// Set environment:
		Env: []string{"MOZ_LOG=1"},
		InheritEnv: true,
		// Capture output:
		CombinedOutput: &output,
	})

	Inject a Run function for testing:
	mock := exec.CommandCollector{}
	ctx := exec.NewContext(context.Background(), mock.Run)
	TestCodeCallingRun(ctx)
	require.Equal(t, "firefox --profile /tmp/dir", exec.DebugString(mock.Commands()[0]))
*/
package exec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"strings"

	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

type contextKeyType string

const contextKey contextKeyType = "ExecContext"

// WriteLog implements the io.Writer interface and writes to the given log function.
type WriteLog struct {
	LogFunc func(format string, args ...interface{})
}

func (wl WriteLog) Write(p []byte) (n int, err error) {
	wl.LogFunc("%s", string(p))
	return len(p), nil
}

var (
	WriteInfoLog  = WriteLog{LogFunc: sklog.Infof}
	WriteErrorLog = WriteLog{LogFunc: sklog.Errorf}
)

type Command struct {
	// Name of the command, as passed to osexec.Command. Can be the path to a binary or the
	// name of a command that osexec.Lookpath can find.
	Name string
	// Arguments of the command, not including Name.
	Args []string
	// Extra environment of the process.
	Env []string
	// If true, Env is appended to the current process's environment.
	InheritEnv bool
	// The working directory of the command. If empty, runs in the current process's current
	// directory.
	Dir string
	// See docs for osexec.Cmd.Stdin.
	Stdin io.Reader
	// If true, duplicates stdout of the command to WriteInfoLog.
	LogStdout bool
	// Sends the stdout of the command to this Writer, e.g. os.File or bytes.Buffer.
	Stdout io.Writer
	// If true, duplicates stderr of the command to WriteErrorLog.
	LogStderr bool
	// Sends the stderr of the command to this Writer, e.g. os.File or bytes.Buffer.
	Stderr io.Writer
	// Sends the combined stdout and stderr of the command to this Writer, in addition to
	// Stdout and Stderr.
	CombinedOutput io.Writer
}

// StartError is returned by Run when the command could not be started at all,
// e.g. because the binary does not exist.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("unable to start command: %s", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// IsStartError returns true if err, or an error it wraps, is a StartError.
func IsStartError(err error) bool {
	var se *StartError
	return errors.As(err, &se)
}

// ExitCode returns the exit code of a command that ran to completion and
// failed. The boolean is false if err does not come from such a command.
func ExitCode(err error) (int, bool) {
	var ee *osexec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), true
	}
	return 0, false
}

// DebugString returns the command line of the command.
func DebugString(cmd *Command) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", cmd.Name, strings.Join(cmd.Args, " ")))
}

// Given io.Writers or nils, return a single writer that writes to all, or nil if no non-nil
// writers.
func squashWriters(writers ...io.Writer) io.Writer {
	nonNil := []io.Writer{}
	for _, writer := range writers {
		if writer != nil {
			nonNil = append(nonNil, writer)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return io.MultiWriter(nonNil...)
	}
}

func createCmd(ctx context.Context, command *Command) *osexec.Cmd {
	cmd := osexec.CommandContext(ctx, command.Name, command.Args...)
	if len(command.Env) != 0 {
		if command.InheritEnv {
			cmd.Env = append(os.Environ(), command.Env...)
		} else {
			cmd.Env = command.Env
		}
	}
	cmd.Dir = command.Dir
	cmd.Stdin = command.Stdin
	var stdoutLog io.Writer
	if command.LogStdout {
		stdoutLog = WriteInfoLog
	}
	cmd.Stdout = squashWriters(stdoutLog, command.Stdout, command.CombinedOutput)
	var stderrLog io.Writer
	if command.LogStderr {
		stderrLog = WriteErrorLog
	}
	cmd.Stderr = squashWriters(stderrLog, command.Stderr, command.CombinedOutput)
	return cmd
}

// DefaultRun starts the command and waits for it to finish.
func DefaultRun(ctx context.Context, command *Command) error {
	cmd := createCmd(ctx, command)
	sklog.Infof("Executing %s", DebugString(command))
	if err := cmd.Start(); err != nil {
		sklog.Errorf("Unable to start command %s: %s", DebugString(command), err)
		return &StartError{Err: err}
	}
	if err := cmd.Wait(); err != nil {
		sklog.Debugf("Command exited with %s: %s", err, DebugString(command))
		return err
	}
	return nil
}

type execContext struct {
	runFn func(context.Context, *Command) error
}

// NewContext returns a context.Context instance which uses the given function
// to run Commands.
func NewContext(ctx context.Context, runFn func(context.Context, *Command) error) context.Context {
	return context.WithValue(ctx, contextKey, &execContext{runFn: runFn})
}

func getCtx(ctx context.Context) *execContext {
	if v := ctx.Value(contextKey); v != nil {
		return v.(*execContext)
	}
	return &execContext{runFn: DefaultRun}
}

// Run runs command and waits for it to finish. If any failure, returns non-nil.
func Run(ctx context.Context, command *Command) error {
	return skerr.Wrap(getCtx(ctx).runFn(ctx, command))
}
