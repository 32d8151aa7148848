package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/config"
	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/bisection/go/regression"
)

func TestBisectCommand(t *testing.T) {
	got := BisectCommand()
	require.NotNil(t, got)
	assert.Equal(t, "bisect", got.Name)
}

func TestLaunchCommand(t *testing.T) {
	got := LaunchCommand()
	require.NotNil(t, got)
	assert.Equal(t, "launch", got.Name)
}

// run runs a command whose action is replaced by fn, and returns the error
// of the run.
func run(t *testing.T, flags []cli.Flag, fn cli.ActionFunc, args ...string) error {
	app := &cli.App{
		Name: "testapp",
		Commands: []*cli.Command{
			{
				Name:   "cmd",
				Flags:  flags,
				Action: fn,
			},
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
	oldHelpPrinter := cli.HelpPrinter
	cli.HelpPrinter = func(_ io.Writer, _ string, _ interface{}) {}
	t.Cleanup(func() { cli.HelpPrinter = oldHelpPrinter })
	return app.Run(append([]string{"testapp", "cmd"}, args...))
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json5")
	require.NoError(t, os.WriteFile(p, []byte(`{app: "thunderbird", approx_policy: "none", persist: "/tmp/builds"}`), 0644))

	cmd := &bisectCmd{}
	var cfg *config.Config
	err := run(t, cmd.flags(), func(c *cli.Context) error {
		var err error
		cfg, err = cmd.loadConfig(c)
		return err
	}, "--config", p, "--good", "2015-01-01", "--app", "firefox", "--persist-size-limit", "1GB", "--background-dl=false")
	require.NoError(t, err)
	assert.Equal(t, "firefox", cfg.App)
	assert.Equal(t, config.ApproxNone, cfg.ApproxPolicy)
	assert.Equal(t, "/tmp/builds", cfg.PersistDir)
	assert.Equal(t, config.Size(1000000000), cfg.PersistSizeLimit)
	assert.False(t, cfg.BackgroundDownloads)
}

func TestLoadConfig_InvalidFlag_Error(t *testing.T) {
	cmd := &bisectCmd{}
	err := run(t, cmd.flags(), func(c *cli.Context) error {
		_, err := cmd.loadConfig(c)
		return err
	}, "--config", "", "--good", "2015-01-01", "--http-timeout", "soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--http-timeout")
}

func TestLoadConfig_MissingExplicitConfig_Error(t *testing.T) {
	cmd := &bisectCmd{}
	err := run(t, cmd.flags(), func(c *cli.Context) error {
		_, err := cmd.loadConfig(c)
		return err
	}, "--config", filepath.Join(t.TempDir(), "nope.json5"), "--good", "2015-01-01")
	require.Error(t, err)
}

func TestBounds_DefaultBadIsToday(t *testing.T) {
	today := time.Date(2015, time.March, 4, 15, 0, 0, 0, time.UTC)
	cmd := &bisectCmd{good: "2015-01-01"}
	good, bad, err := cmd.bounds(today)
	require.NoError(t, err)
	assert.Equal(t, "2015-01-01", good.String())
	assert.Equal(t, dates.DateBound(today), bad)
}

func TestBounds_Changesets(t *testing.T) {
	cmd := &bisectCmd{good: "abc123", bad: "def456"}
	good, bad, err := cmd.bounds(time.Now())
	require.NoError(t, err)
	assert.Equal(t, dates.ChangesetBound("abc123"), good)
	assert.Equal(t, dates.ChangesetBound("def456"), bad)
}

func TestBounds_InvalidDate_Error(t *testing.T) {
	cmd := &bisectCmd{good: "2015-02-30"}
	_, _, err := cmd.bounds(time.Now())
	require.ErrorIs(t, err, dates.ErrValue)
}

func TestLaunchAction_NoArgument_Error(t *testing.T) {
	cmd := &launchCmd{}
	err := run(t, cmd.flags(), cmd.action)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
}

func TestCleanup_RemovesTemporaryDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tmp")
	require.NoError(t, os.Mkdir(dir, 0755))
	cmd := &commonCmd{tmpDir: dir}
	require.NoError(t, cmd.cleanup(nil))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestReport_Finished_PrintsBoundaryAndPushlog(t *testing.T) {
	var out bytes.Buffer
	cmd := &bisectCmd{commonCmd: commonCmd{stdout: &out}}
	err := cmd.report(&regression.Outcome{
		Result:     bisector.Finished,
		Handler:    "integration",
		Boundary:   bisector.Boundary{Good: "aaa", Bad: "bbb"},
		PushlogURL: "https://hg.mozilla.org/mozilla-central/pushloghtml?fromchange=aaa&tochange=bbb",
	})
	require.NoError(t, err)
	assert.Equal(t, "Last good integration build: aaa\nFirst bad integration build: bbb\nPushlog:\nhttps://hg.mozilla.org/mozilla-central/pushloghtml?fromchange=aaa&tochange=bbb\n", out.String())
}

func TestReport_Failures_ExitCode(t *testing.T) {
	cmd := &bisectCmd{commonCmd: commonCmd{stdout: io.Discard}}
	require.NoError(t, cmd.report(&regression.Outcome{Result: bisector.UserExit}))
	for _, result := range []bisector.Result{bisector.NoData, bisector.Exception} {
		err := cmd.report(&regression.Outcome{Result: result})
		var exit cli.ExitCoder
		require.ErrorAs(t, err, &exit)
		assert.Equal(t, 1, exit.ExitCode())
	}
}
