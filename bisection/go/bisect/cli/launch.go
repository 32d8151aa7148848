package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/bisection/go/regression"
	"go.buildbisect.org/infra/go/skerr"
)

// launchCmd holds the flag values of the `launch` subcommand. It downloads
// and tests a single build.
type launchCmd struct {
	commonCmd
	integration bool
}

// LaunchCommand returns a [*cli.Command] testing the build of one date or
// changeset.
func LaunchCommand() *cli.Command {
	cmd := &launchCmd{}
	return &cli.Command{
		Name:        "launch",
		Description: "launch downloads and tests the build of a date, build id or changeset.",
		Usage:       "bisect launch 2015-01-11",
		ArgsUsage:   "<date|buildid|changeset>",
		Flags:       cmd.flags(),
		Action:      cmd.action,
		After:       cmd.cleanup,
	}
}

func (cmd *launchCmd) flags() []cli.Flag {
	fl := []cli.Flag{
		&cli.BoolFlag{
			Name:        integrationFlagName,
			Usage:       "launch the integration build of a date instead of the nightly build",
			Destination: &cmd.integration,
		},
	}
	return append(fl, cmd.commonCmd.flags()...)
}

func (cmd *launchCmd) action(cliCtx *cli.Context) error {
	if cliCtx.NArg() != 1 {
		return cli.Exit("launch needs exactly one date, build id or changeset", 1)
	}
	at, err := dates.ParseBound(cliCtx.Args().First())
	if err != nil {
		return skerr.Wrap(err)
	}
	ctx, err := cmd.setup(cliCtx)
	if err != nil {
		return err
	}
	r := cmd.regression(ctx, regression.Options{Integration: cmd.integration})
	verdict, info, err := r.Launch(ctx, at)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.stdout, "%s is %s\n", info, verdict)
	return nil
}
