// Package main is the bisect executable. It finds the build of an
// application which introduced, or fixed, a bug.
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	bisectcli "go.buildbisect.org/infra/bisection/go/bisect/cli"
	"go.buildbisect.org/infra/go/sklog"
)

func main() {
	app := &cli.App{
		Name:        "bisect",
		Description: "bisect downloads and tests builds of an application to find the one which introduced a regression.",
		Commands: []*cli.Command{
			bisectcli.BisectCommand(),
			bisectcli.LaunchCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		sklog.Fatal(err)
	}
}
