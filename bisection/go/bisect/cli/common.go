// Package cli implements the subcommands of the bisect program.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"go.buildbisect.org/infra/bisection/go/approx"
	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/branches"
	"go.buildbisect.org/infra/bisection/go/config"
	"go.buildbisect.org/infra/bisection/go/download"
	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/bisection/go/persistlimit"
	"go.buildbisect.org/infra/bisection/go/regression"
	"go.buildbisect.org/infra/bisection/go/testrunner"
	"go.buildbisect.org/infra/go/httputils"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
	"go.buildbisect.org/infra/go/urfavecli"
	"go.buildbisect.org/infra/go/util"
)

// flag names
const (
	configFlagName           = "config"
	debugFlagName            = "debug"
	appFlagName              = "app"
	osFlagName               = "os"
	bitsFlagName             = "bits"
	langFlagName             = "lang"
	repoFlagName             = "repo"
	commandFlagName          = "command"
	persistFlagName          = "persist"
	persistSizeLimitFlagName = "persist-size-limit"
	backgroundDLFlagName     = "background-dl"
	backgroundPolicyFlagName = "background-dl-policy"
	approxPolicyFlagName     = "approx-policy"
	httpTimeoutFlagName      = "http-timeout"
)

// commonCmd holds the flags shared by all subcommands, and what they set
// up.
type commonCmd struct {
	configPath       string
	debug            bool
	app              string
	os               string
	bits             int
	lang             string
	repo             string
	command          string
	persist          string
	persistSizeLimit string
	backgroundDL     bool
	backgroundPolicy string
	approxPolicy     string
	httpTimeout      string

	// Set by setup.
	cfg     *config.Config
	fc      fetchconfig.FetchConfig
	client  *http.Client
	manager *download.Manager
	dl      *download.BuildManager
	runner  bisector.TestRunner
	approx  *approx.Chooser
	tmpDir  string
	stop    context.CancelFunc

	stdin  io.Reader
	stdout io.Writer
}

func (cmd *commonCmd) flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        configFlagName,
			Value:       config.DefaultPath(),
			Usage:       "path of the JSON5 configuration file",
			Destination: &cmd.configPath,
		}, &cli.BoolFlag{
			Name:        debugFlagName,
			Usage:       "log debug messages",
			Destination: &cmd.debug,
		}, &cli.StringFlag{
			Name:        appFlagName,
			Usage:       fmt.Sprintf("application to bisect, one of %v", fetchconfig.Apps()),
			Destination: &cmd.app,
		}, &cli.StringFlag{
			Name:        osFlagName,
			Usage:       "operating system of the builds, defaults to the current one",
			Destination: &cmd.os,
		}, &cli.IntFlag{
			Name:        bitsFlagName,
			Usage:       "32 or 64, defaults to the current one",
			Destination: &cmd.bits,
		}, &cli.StringFlag{
			Name:        langFlagName,
			Usage:       "language of localized builds",
			Destination: &cmd.lang,
		}, &cli.StringFlag{
			Name:        repoFlagName,
			Usage:       "branch of the integration builds",
			Destination: &cmd.repo,
		}, &cli.StringFlag{
			Name:        commandFlagName,
			Usage:       "command testing a build, its exit code tells if the build is good; {build_file} and the other placeholders are replaced",
			Destination: &cmd.command,
		}, &cli.StringFlag{
			Name:        persistFlagName,
			Usage:       "directory where builds are kept between runs",
			Destination: &cmd.persist,
		}, &cli.StringFlag{
			Name:        persistSizeLimitFlagName,
			Usage:       "size of the persist directory above which old builds are removed, e.g. 10GB",
			Destination: &cmd.persistSizeLimit,
		}, &cli.BoolFlag{
			Name:        backgroundDLFlagName,
			Value:       true,
			Usage:       "download the builds which may be tested next",
			Destination: &cmd.backgroundDL,
		}, &cli.StringFlag{
			Name:        backgroundPolicyFlagName,
			Usage:       "cancel or keep background downloads when another build is needed",
			Destination: &cmd.backgroundPolicy,
		}, &cli.StringFlag{
			Name:        approxPolicyFlagName,
			Usage:       "auto to test an already downloaded build near the middle, none otherwise",
			Destination: &cmd.approxPolicy,
		}, &cli.StringFlag{
			Name:        httpTimeoutFlagName,
			Usage:       "timeout of the http requests, e.g. 30s",
			Destination: &cmd.httpTimeout,
		},
	}
}

// loadConfig reads the configuration file and applies the flags set on
// the command line over it.
func (cmd *commonCmd) loadConfig(cliCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(cmd.configPath, cliCtx.IsSet(configFlagName))
	if err != nil {
		return nil, err
	}
	set := func(name string, fn func() error) error {
		if !cliCtx.IsSet(name) {
			return nil
		}
		if err := fn(); err != nil {
			return skerr.Wrapf(err, "invalid --%s", name)
		}
		return nil
	}
	str := func(dst *string, v string) func() error {
		return func() error {
			*dst = v
			return nil
		}
	}
	for _, err := range []error{
		set(appFlagName, str(&cfg.App, cmd.app)),
		set(osFlagName, str(&cfg.OS, cmd.os)),
		set(bitsFlagName, func() error { cfg.Bits = cmd.bits; return nil }),
		set(langFlagName, str(&cfg.Lang, cmd.lang)),
		set(repoFlagName, str(&cfg.Branch, cmd.repo)),
		set(commandFlagName, str(&cfg.Command, cmd.command)),
		set(persistFlagName, str(&cfg.PersistDir, cmd.persist)),
		set(persistSizeLimitFlagName, func() error { return cfg.PersistSizeLimit.UnmarshalText([]byte(cmd.persistSizeLimit)) }),
		set(backgroundDLFlagName, func() error { cfg.BackgroundDownloads = cmd.backgroundDL; return nil }),
		set(backgroundPolicyFlagName, str(&cfg.BackgroundPolicy, cmd.backgroundPolicy)),
		set(approxPolicyFlagName, str(&cfg.ApproxPolicy, cmd.approxPolicy)),
		set(httpTimeoutFlagName, func() error { return cfg.HTTPTimeout.UnmarshalText([]byte(cmd.httpTimeout)) }),
	} {
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultBits() int {
	switch runtime.GOARCH {
	case "386", "arm":
		return 32
	}
	return 64
}

// setup creates everything the subcommands need from the configuration.
// The returned context is cancelled by an interrupt signal.
func (cmd *commonCmd) setup(cliCtx *cli.Context) (context.Context, error) {
	if cmd.debug {
		sklog.UseStderr(true)
	}
	urfavecli.LogFlags(cliCtx)
	if cmd.stdin == nil {
		cmd.stdin = os.Stdin
	}
	if cmd.stdout == nil {
		cmd.stdout = os.Stdout
	}

	cfg, err := cmd.loadConfig(cliCtx)
	if err != nil {
		return nil, err
	}
	cmd.cfg = cfg

	osName, bits := cfg.OS, cfg.Bits
	if osName == "" {
		osName = runtime.GOOS
	}
	if bits == 0 {
		bits = defaultBits()
	}
	fc, err := fetchconfig.Create(cfg.App, osName, bits)
	if err != nil {
		return nil, err
	}
	if cfg.Lang != "" {
		if err := fc.SetLang(cfg.Lang); err != nil {
			return nil, err
		}
	}
	if cfg.Branch != "" {
		fc.SetRepo(cfg.Branch)
	}
	cmd.fc = fc

	cmd.client = httputils.DefaultClientConfig().WithDialTimeout(cfg.HTTPTimeout.Duration).WithRequestTimeout(cfg.HTTPTimeout.Duration).Client()

	dir, tmp := cfg.PersistDir, false
	if dir == "" {
		if dir, err = os.MkdirTemp("", "bisect-"); err != nil {
			return nil, skerr.Wrap(err)
		}
		cmd.tmpDir, tmp = dir, true
	}
	limiter := persistlimit.New(uint64(cfg.PersistSizeLimit))
	if err := limiter.RegisterDir(dir); err != nil {
		return nil, err
	}
	cmd.manager, err = download.NewManager(dir, cmd.client, limiter)
	if err != nil {
		return nil, err
	}
	policy, err := download.ParsePolicy(cfg.BackgroundPolicy)
	if err != nil {
		return nil, err
	}
	cmd.dl = download.NewBuildManager(cmd.manager, policy, tmp, os.Stderr)

	if cfg.Command != "" {
		if cmd.runner, err = testrunner.NewCommandRunner(cfg.Command); err != nil {
			return nil, err
		}
	} else {
		cmd.runner = testrunner.NewInteractiveRunner(cmd.stdin, cmd.stdout)
	}

	if cfg.ApproxPolicy == config.ApproxAuto && !tmp {
		if cmd.approx, err = approx.New(cfg.ApproxStride); err != nil {
			return nil, err
		}
	}

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt)
	cmd.stop = stop
	return ctx, nil
}

// regression returns a Regression using what setup created. FindFix,
// Integration and Bisector.EnsureGoodAndBad are taken from opts, the rest
// comes from the configuration.
func (cmd *commonCmd) regression(ctx context.Context, opts regression.Options) *regression.Regression {
	highlight := color.New(color.Bold)
	opts.Expand = cmd.cfg.IntegrationExpand
	opts.TimeLimit = cmd.cfg.IntegrationTimeLimit.Duration
	opts.Bisector = bisector.Options{
		DownloadInBackground: cmd.cfg.BackgroundDownloads,
		EnsureGoodAndBad:     opts.Bisector.EnsureGoodAndBad,
		SkipChoiceThreshold:  cmd.cfg.SkipChoiceThreshold,
		Approx:               cmd.approx,
		Interrupt:            func() bool { return ctx.Err() != nil },
		OnStep: func(s bisector.Step) {
			_, _ = highlight.Fprintf(cmd.stdout, "%s is %s (%d builds in range, about %d steps left)\n", s.Build, s.Verdict, s.Len, s.StepsLeft)
		},
	}
	return regression.New(cmd.fc, branches.Default(), cmd.client, cmd.dl, cmd.runner, opts)
}

// cleanup stops the downloads in progress and removes the temporary
// download directory.
func (cmd *commonCmd) cleanup(_ *cli.Context) error {
	if cmd.stop != nil {
		cmd.stop()
	}
	if cmd.manager != nil {
		cmd.manager.Cancel(nil)
		util.LogErr(cmd.manager.Wait(false))
	}
	if cmd.tmpDir != "" {
		util.RemoveAll(cmd.tmpDir)
	}
	return nil
}
