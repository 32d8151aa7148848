package testrunner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	"go.buildbisect.org/infra/go/sklog"
)

// InteractiveRunner asks the user for verdicts.
type InteractiveRunner struct {
	in     *bufio.Reader
	out    io.Writer
	prompt *color.Color
	info   *color.Color
}

// NewInteractiveRunner returns an InteractiveRunner reading answers from in.
func NewInteractiveRunner(in io.Reader, out io.Writer) *InteractiveRunner {
	return &InteractiveRunner{
		in:     bufio.NewReader(in),
		out:    out,
		prompt: color.New(color.FgCyan, color.Bold),
		info:   color.New(color.FgYellow),
	}
}

// readLine returns the next line without its end, and io.EOF once the
// input is closed.
func (r *InteractiveRunner) readLine() (string, error) {
	line, err := r.in.ReadString('\n')
	if err == io.EOF && line != "" {
		return strings.TrimSpace(line), nil
	}
	return strings.TrimSpace(line), err
}

// Evaluate implements bisector.TestRunner.
func (r *InteractiveRunner) Evaluate(ctx context.Context, info *buildinfo.BuildInfo, allowBack bool) (bisector.Verdict, error) {
	updateAppInfo(info)
	_, _ = r.info.Fprintf(r.out, "Testing %s build %s: %s\n", info.AppName(), info, info.BuildFile)
	choices := []string{"'good'", "'bad'", "'skip'", "'retry'"}
	if allowBack {
		choices = append(choices, "'back'")
	}
	question := fmt.Sprintf("Was this %s build good, bad, or broken? (type %s or 'exit' and press Enter): ", info.AppName(), strings.Join(choices, ", "))
	for {
		if err := ctx.Err(); err != nil {
			return bisector.Exit, err
		}
		_, _ = r.prompt.Fprint(r.out, question)
		line, err := r.readLine()
		if err == io.EOF {
			sklog.Infof("No more input, exiting")
			return bisector.Exit, nil
		} else if err != nil {
			return bisector.Exit, err
		}
		v, err := ParseVerdict(line)
		if err != nil || (v == bisector.Back && !allowBack) {
			continue
		}
		return v, nil
	}
}

// IndexToTryAfterSkip implements bisector.SkipChooser. The user picks an
// offset from mid which is not an endpoint of the range.
func (r *InteractiveRunner) IndexToTryAfterSkip(ctx context.Context, br *buildrange.BuildRange, mid int) (int, error) {
	lo := -mid + 1
	hi := br.Len() - mid - 2
	_, _ = fmt.Fprintln(r.out, "Build was skipped. You can manually choose a new build to test, to be able to get out of a broken build range.")
	_, _ = fmt.Fprintln(r.out, "Please type the index of the build you would like to try - the index is 0-based on the middle of the remaining build range.")
	for {
		if err := ctx.Err(); err != nil {
			return mid, err
		}
		_, _ = r.prompt.Fprintf(r.out, "You can choose a build index between [%d, %d]: ", lo, hi)
		line, err := r.readLine()
		if err == io.EOF {
			return mid, nil
		} else if err != nil {
			return mid, err
		}
		offset, err := strconv.Atoi(line)
		if err != nil || offset < lo || offset > hi {
			continue
		}
		return mid + offset, nil
	}
}

var (
	_ bisector.TestRunner  = (*InteractiveRunner)(nil)
	_ bisector.SkipChooser = (*InteractiveRunner)(nil)
)
