// Package urfavecli holds helpers for programs built on urfave/cli.
package urfavecli

import (
	cli "github.com/urfave/cli/v2"

	"go.buildbisect.org/infra/go/sklog"
)

// LogFlags logs the value of every flag of the running command, one line
// per flag.
func LogFlags(cliCtx *cli.Context) {
	flags := cliCtx.App.Flags
	if cliCtx.Command != nil && len(cliCtx.Command.Flags) > 0 {
		flags = cliCtx.Command.Flags
	}
	for _, fl := range flags {
		name := fl.Names()[0]
		sklog.Debugf("Flags: --%s=%v", name, cliCtx.Value(name))
	}
}
