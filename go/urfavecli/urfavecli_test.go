package urfavecli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v2"

	"go.buildbisect.org/infra/go/sklog"
	"go.buildbisect.org/infra/go/sklog/sklogimpl"
	"go.buildbisect.org/infra/go/sklog/stdlogging"
)

type fauxSyncWriter struct {
	b *bytes.Buffer
}

func newWriter() *fauxSyncWriter {
	return &fauxSyncWriter{
		b: &bytes.Buffer{},
	}
}

func (f *fauxSyncWriter) Write(p []byte) (n int, err error) {
	return f.b.Write(p)
}

func (f *fauxSyncWriter) Sync() error {
	return nil
}

func (f *fauxSyncWriter) String() string {
	return f.b.String()
}

func TestLogFlags(t *testing.T) {
	logsBuffer := newWriter()
	sklogimpl.SetLogger(stdlogging.New(logsBuffer, true))
	t.Cleanup(func() { sklog.UseStderr(false) })

	commandFlags := []cli.Flag{
		&cli.BoolFlag{
			Name: "boolNotPassedIn",
		},
		&cli.BoolFlag{
			Name: "bool",
		},
		&cli.DurationFlag{
			Name: "duration",
		},
		&cli.IntFlag{
			Name: "int",
		},
		&cli.StringFlag{
			Name: "string",
		},
		&cli.Uint64Flag{
			Name: "uint64",
		},
	}
	app := &cli.App{
		Name: "testapp",
		Commands: []*cli.Command{
			{
				Name:  "my-command",
				Flags: commandFlags,
				Action: func(c *cli.Context) error {
					LogFlags(c)
					return nil
				},
			},
		},
	}

	// Don't print anything on stderr/stdout.
	oldHelpPrinter := cli.HelpPrinter
	cli.HelpPrinter = func(_ io.Writer, _ string, _ interface{}) {}
	defer func() {
		cli.HelpPrinter = oldHelpPrinter
	}()

	err := app.Run([]string{
		"testapp",
		"my-command",
		"--bool",
		"--duration=24s",
		"--int=65",
		"--string=string",
		"--uint64=54",
	})
	require.NoError(t, err)

	flagLines := []string{}
	for _, line := range strings.Split(logsBuffer.String(), "\n") {
		if strings.Contains(line, "Flags:") {
			// Strip off everything before Flags: which contains timestamps and
			// other stuff that changes.
			flagLines = append(flagLines, strings.Split(line, "Flags:")[1])
		}
	}
	for _, expected := range []string{
		" --boolNotPassedIn=false",
		" --bool=true",
		" --duration=24s",
		" --int=65",
		" --string=string",
		" --uint64=54",
	} {
		require.Contains(t, flagLines, expected)
	}
}
