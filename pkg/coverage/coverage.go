package coverage

import (
	"context"

	"github.com/perimetric/pagecov/pkg/cdp"
	"github.com/perimetric/pagecov/pkg/logging"
)

// Coverage composes one script tracker and one style tracker over a shared
// instrumentation channel. The two lifecycles are independent; each session
// constructs a fresh Coverage bound to its own channel.
type Coverage struct {
	scripts *ScriptTracker
	styles  *StyleTracker
}

// New creates a Coverage facade bound to the given channel.
func New(ch cdp.Channel, logger *logging.Logger) *Coverage {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coverage{
		scripts: NewScriptTracker(ch, logger),
		styles:  NewStyleTracker(ch, logger),
	}
}

// StartScriptCoverage begins JavaScript coverage collection.
func (c *Coverage) StartScriptCoverage(ctx context.Context, opts ScriptOptions) error {
	return c.scripts.Start(ctx, opts)
}

// StopScriptCoverage halts JavaScript coverage collection and returns the
// collected entries.
func (c *Coverage) StopScriptCoverage(ctx context.Context) ([]Entry, error) {
	return c.scripts.Stop(ctx)
}

// StartStyleCoverage begins CSS rule-usage collection.
func (c *Coverage) StartStyleCoverage(ctx context.Context, opts StyleOptions) error {
	return c.styles.Start(ctx, opts)
}

// StopStyleCoverage halts CSS rule-usage collection and returns the collected
// entries.
func (c *Coverage) StopStyleCoverage(ctx context.Context) ([]Entry, error) {
	return c.styles.Stop(ctx)
}

// ScriptActive reports whether script collection is in progress.
func (c *Coverage) ScriptActive() bool {
	return c.scripts.Active()
}

// StyleActive reports whether style collection is in progress.
func (c *Coverage) StyleActive() bool {
	return c.styles.Active()
}
