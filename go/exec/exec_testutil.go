package exec

import (
	"context"
	"sync"
)

// CommandCollector records the commands given to its Run method instead of
// running them. Inject it with NewContext:
//
//	mock := exec.CommandCollector{}
//	ctx := exec.NewContext(context.Background(), mock.Run)
//	runner.Evaluate(ctx, build, false)
//	assert.Equal(t, "run.sh /builds/firefox.tar.bz2", exec.DebugString(mock.Commands()[0]))
//
// It is safe for concurrent use.
type CommandCollector struct {
	mtx      sync.Mutex
	commands []*Command
	delegate func(context.Context, *Command) error
}

// Commands returns the commands run so far.
func (c *CommandCollector) Commands() []*Command {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]*Command(nil), c.commands...)
}

// ClearCommands forgets the commands run so far.
func (c *CommandCollector) ClearCommands() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.commands = nil
}

// SetDelegateRun sets a function called by Run after recording the command,
// whose error Run returns.
func (c *CommandCollector) SetDelegateRun(fn func(context.Context, *Command) error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.delegate = fn
}

// Run records command and calls the delegate, if any.
func (c *CommandCollector) Run(ctx context.Context, command *Command) error {
	c.mtx.Lock()
	c.commands = append(c.commands, command)
	fn := c.delegate
	c.mtx.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, command)
}
