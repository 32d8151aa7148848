package cli

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/bisection/go/regression"
	"go.buildbisect.org/infra/go/now"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

// flag names
const (
	goodFlagName             = "good"
	badFlagName              = "bad"
	findFixFlagName          = "find-fix"
	integrationFlagName      = "integration"
	ensureGoodAndBadFlagName = "ensure-good-and-bad"
)

// bisectCmd holds the flag values of the `bisect` subcommand. It searches
// the first bad build between a good and a bad one.
type bisectCmd struct {
	commonCmd
	good             string
	bad              string
	findFix          bool
	integration      bool
	ensureGoodAndBad bool
}

// BisectCommand returns a [*cli.Command] searching the build which
// introduced a regression.
func BisectCommand() *cli.Command {
	cmd := &bisectCmd{}
	return &cli.Command{
		Name:        "bisect",
		Description: "bisect searches the first bad build between a good and a bad one.",
		Usage:       "bisect bisect --good 2015-01-01 --bad 2015-02-01 --command 'run.sh {build_file}'",
		Flags:       cmd.flags(),
		Action:      cmd.action,
		After:       cmd.cleanup,
	}
}

func (cmd *bisectCmd) flags() []cli.Flag {
	fl := []cli.Flag{
		&cli.StringFlag{
			Name:        goodFlagName,
			Usage:       "last known good date (YYYY-MM-DD), build id or changeset",
			Required:    true,
			Destination: &cmd.good,
		}, &cli.StringFlag{
			Name:        badFlagName,
			Usage:       "first known bad date (YYYY-MM-DD), build id or changeset; defaults to today",
			Destination: &cmd.bad,
		}, &cli.BoolFlag{
			Name:        findFixFlagName,
			Usage:       "search the build fixing a bug, the good build being after the bad one",
			Destination: &cmd.findFix,
		}, &cli.BoolFlag{
			Name:        integrationFlagName,
			Usage:       "search integration builds between dates instead of nightly builds",
			Destination: &cmd.integration,
		}, &cli.BoolFlag{
			Name:        ensureGoodAndBadFlagName,
			Usage:       "test the good and bad builds before the search",
			Destination: &cmd.ensureGoodAndBad,
		},
	}
	return append(fl, cmd.commonCmd.flags()...)
}

// bounds parses the good and bad flags. A missing bad bound is today.
func (cmd *bisectCmd) bounds(today time.Time) (dates.Bound, dates.Bound, error) {
	good, err := dates.ParseBound(cmd.good)
	if err != nil {
		return dates.Bound{}, dates.Bound{}, skerr.Wrapf(err, "invalid --%s", goodFlagName)
	}
	if cmd.bad == "" {
		return good, dates.DateBound(today), nil
	}
	bad, err := dates.ParseBound(cmd.bad)
	if err != nil {
		return dates.Bound{}, dates.Bound{}, skerr.Wrapf(err, "invalid --%s", badFlagName)
	}
	return good, bad, nil
}

func (cmd *bisectCmd) action(cliCtx *cli.Context) error {
	ctx, err := cmd.setup(cliCtx)
	if err != nil {
		return err
	}
	good, bad, err := cmd.bounds(now.Now(ctx))
	if err != nil {
		return err
	}
	r := cmd.regression(ctx, regression.Options{
		FindFix:     cmd.findFix || cmd.cfg.FindFix,
		Integration: cmd.integration,
		Bisector: bisector.Options{
			EnsureGoodAndBad: cmd.ensureGoodAndBad || cmd.cfg.EnsureGoodAndBad,
		},
	})
	o, err := r.Bisect(ctx, good, bad)
	if err != nil {
		return err
	}
	return cmd.report(o)
}

// report prints the outcome of a search and turns failures into an exit
// code.
func (cmd *bisectCmd) report(o *regression.Outcome) error {
	switch o.Result {
	case bisector.Finished:
		_, _ = fmt.Fprintf(cmd.stdout, "Last good %s build: %s\nFirst bad %s build: %s\n", o.Handler, o.Boundary.Good, o.Handler, o.Boundary.Bad)
		if o.PushlogURL != "" {
			_, _ = fmt.Fprintf(cmd.stdout, "Pushlog:\n%s\n", o.PushlogURL)
		}
		return nil
	case bisector.UserExit:
		sklog.Infof("Stopped by the user")
		return nil
	case bisector.NoData:
		return cli.Exit("no build found in the range", 1)
	}
	return cli.Exit(fmt.Sprintf("bisection ended with %s", o.Result), 1)
}
