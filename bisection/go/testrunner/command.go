package testrunner

import (
	"context"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"

	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/go/exec"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

// ENV_PREFIX prefixes the environment variables describing the tested
// build.
const ENV_PREFIX = "BISECT_"

// Variables returns the values describing a build, by name. They can be
// used as {name} in a command.
func Variables(info *buildinfo.BuildInfo) map[string]string {
	return map[string]string{
		"build_file": info.BuildFile,
		"build_url":  info.BuildURL,
		"build_type": info.BuildType,
		"changeset":  info.Changeset,
		"repo_url":   info.RepoURL,
		"repo_name":  info.RepoName,
		"app_name":   info.AppName(),
		"build_date": info.BuildDate.Format(dates.DATE_FORMAT),
	}
}

// CommandRunner evaluates a build by running a command: the build is good
// if the command exits with 0 and bad otherwise.
type CommandRunner struct {
	args []string
}

// NewCommandRunner returns a CommandRunner for a shell-like command line.
func NewCommandRunner(command string) (*CommandRunner, error) {
	args, err := shellquote.Split(command)
	if err != nil {
		return nil, skerr.Wrapf(err, "parsing command %q", command)
	}
	if len(args) == 0 {
		return nil, skerr.Fmt("empty command")
	}
	return &CommandRunner{args: args}, nil
}

// Command returns the command run for info.
func (r *CommandRunner) Command(info *buildinfo.BuildInfo) *exec.Command {
	vars := Variables(info)
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	oldnew := make([]string, 0, 2*len(vars))
	env := make([]string, 0, len(vars))
	for _, name := range names {
		value := vars[name]
		oldnew = append(oldnew, "{"+name+"}", value)
		env = append(env, ENV_PREFIX+strings.ToUpper(name)+"="+value)
	}
	replacer := strings.NewReplacer(oldnew...)
	args := make([]string, 0, len(r.args))
	for _, a := range r.args {
		args = append(args, replacer.Replace(a))
	}
	return &exec.Command{
		Name:       args[0],
		Args:       args[1:],
		Env:        env,
		InheritEnv: true,
		LogStdout:  true,
		LogStderr:  true,
	}
}

// Evaluate implements bisector.TestRunner.
func (r *CommandRunner) Evaluate(ctx context.Context, info *buildinfo.BuildInfo, _ bool) (bisector.Verdict, error) {
	updateAppInfo(info)
	cmd := r.Command(info)
	err := exec.Run(ctx, cmd)
	if err == nil {
		sklog.Infof("Test command result: 0 (build is good)")
		return bisector.Good, nil
	}
	if exec.IsStartError(err) {
		return bisector.Skip, &bisector.LaunchError{Err: err}
	}
	if code, ok := exec.ExitCode(err); ok {
		sklog.Infof("Test command result: %d (build is bad)", code)
		return bisector.Bad, nil
	}
	return bisector.Skip, skerr.Wrapf(err, "running %s", exec.DebugString(cmd))
}

var _ bisector.TestRunner = (*CommandRunner)(nil)
