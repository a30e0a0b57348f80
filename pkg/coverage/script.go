package coverage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/perimetric/pagecov/pkg/cdp"
	"github.com/perimetric/pagecov/pkg/logging"
)

type scriptParsedEvent struct {
	ScriptID string `json:"scriptId"`
	URL      string `json:"url"`
}

type getScriptSourceParams struct {
	ScriptID string `json:"scriptId"`
}

type getScriptSourceResult struct {
	ScriptSource string `json:"scriptSource"`
}

type startPreciseCoverageParams struct {
	CallCount bool `json:"callCount"`
	Detailed  bool `json:"detailed"`
}

type setSkipAllPausesParams struct {
	Skip bool `json:"skip"`
}

type takePreciseCoverageResult struct {
	Result []scriptCoverage `json:"result"`
}

type scriptCoverage struct {
	ScriptID  string             `json:"scriptId"`
	URL       string             `json:"url"`
	Functions []functionCoverage `json:"functions"`
}

type functionCoverage struct {
	FunctionName string          `json:"functionName"`
	Ranges       []coverageRange `json:"ranges"`
}

type coverageRange struct {
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
	Count       int `json:"count"`
}

// ScriptTracker collects per-script execution coverage for one page session.
// It is Idle until Start and returns to Idle on Stop. Event handlers and the
// fire-and-forget source fetches they spawn synchronize on one mutex; Stop
// never waits for outstanding fetches, so a script whose fetch is still in
// flight at stop time is simply absent from the result.
type ScriptTracker struct {
	ch     cdp.Channel
	logger *logging.Logger

	mu     sync.Mutex
	active bool
	opts   ScriptOptions
	urls   map[string]string
	texts  map[string]string
	subs   []cdp.Subscription

	fetches sync.WaitGroup
}

// NewScriptTracker creates an idle tracker bound to the given channel.
func NewScriptTracker(ch cdp.Channel, logger *logging.Logger) *ScriptTracker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ScriptTracker{ch: ch, logger: logger}
}

// Active reports whether collection is in progress.
func (t *ScriptTracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Start begins accumulating script coverage. It subscribes to script-parse
// and context-clear events, then issues the profiling configuration commands
// concurrently; none of them orders against another. The pause-skipping
// toggle keeps the debugger domain from altering page behavior.
func (t *ScriptTracker) Start(ctx context.Context, opts ScriptOptions) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.active = true
	t.opts = opts
	t.urls = make(map[string]string)
	t.texts = make(map[string]string)
	t.mu.Unlock()

	parsedSub, err := t.ch.Subscribe("Debugger.scriptParsed", t.onScriptParsed)
	if err != nil {
		return t.abortStart(err, nil)
	}
	clearedSub, err := t.ch.Subscribe("Runtime.executionContextsCleared", t.onExecutionContextsCleared)
	if err != nil {
		return t.abortStart(err, []cdp.Subscription{parsedSub})
	}

	t.mu.Lock()
	t.subs = []cdp.Subscription{parsedSub, clearedSub}
	t.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.ch.Call(gctx, "Profiler.enable", nil, nil)
	})
	g.Go(func() error {
		return t.ch.Call(gctx, "Profiler.startPreciseCoverage", startPreciseCoverageParams{CallCount: false, Detailed: true}, nil)
	})
	g.Go(func() error {
		return t.ch.Call(gctx, "Debugger.enable", nil, nil)
	})
	g.Go(func() error {
		return t.ch.Call(gctx, "Debugger.setSkipAllPauses", setSkipAllPausesParams{Skip: true}, nil)
	})
	if err := g.Wait(); err != nil {
		return t.abortStart(err, []cdp.Subscription{parsedSub, clearedSub})
	}

	metricActiveCollections.WithLabelValues("script").Set(1)
	t.logger.Info("script coverage started",
		slog.Bool("reset_on_navigation", opts.ResetOnNavigation),
		slog.Bool("report_anonymous", opts.ReportAnonymous),
	)
	return nil
}

func (t *ScriptTracker) abortStart(err error, subs []cdp.Subscription) error {
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	t.mu.Lock()
	t.active = false
	t.subs = nil
	t.mu.Unlock()
	return err
}

// Stop halts accumulation and returns one entry per script that has both a
// resolvable URL and a fetched source, in snapshot iteration order. The
// snapshot is taken before the teardown toggles; the toggles themselves run
// concurrently. Stop never fails because some scripts lack data.
func (t *ScriptTracker) Stop(ctx context.Context) ([]Entry, error) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil, ErrNotStarted
	}
	t.active = false
	opts := t.opts
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()
	metricActiveCollections.WithLabelValues("script").Set(0)

	var snapshot takePreciseCoverageResult
	if err := t.ch.Call(ctx, "Profiler.takePreciseCoverage", nil, &snapshot); err != nil {
		t.logger.Warn("script coverage snapshot unavailable", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.ch.Call(gctx, "Profiler.stopPreciseCoverage", nil, nil)
	})
	g.Go(func() error {
		return t.ch.Call(gctx, "Profiler.disable", nil, nil)
	})
	g.Go(func() error {
		return t.ch.Call(gctx, "Debugger.disable", nil, nil)
	})
	if err := g.Wait(); err != nil {
		t.logger.Warn("script coverage teardown incomplete", slog.String("error", err.Error()))
	}

	entries := make([]Entry, 0, len(snapshot.Result))
	t.mu.Lock()
	for _, script := range snapshot.Result {
		url := t.urls[script.ScriptID]
		if url == "" {
			if !opts.ReportAnonymous {
				continue
			}
			url = fmt.Sprintf("pagecov://script/%s", script.ScriptID)
		}
		text, ok := t.texts[script.ScriptID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			URL:    url,
			Text:   text,
			Ranges: convertToDisjointRanges(flattenFunctionRanges(script.Functions)),
		})
	}
	t.mu.Unlock()

	metricEntriesEmitted.WithLabelValues("script").Add(float64(len(entries)))
	t.logger.Info("script coverage stopped", slog.Int("entries", len(entries)))
	return entries, nil
}

func (t *ScriptTracker) onScriptParsed(params json.RawMessage) {
	var ev scriptParsedEvent
	if err := json.Unmarshal(params, &ev); err != nil {
		t.logger.Debug("malformed scriptParsed event", slog.String("error", err.Error()))
		return
	}
	if ev.URL == EvaluationScriptURL {
		return
	}
	t.mu.Lock()
	reportAnonymous := t.opts.ReportAnonymous
	t.mu.Unlock()
	if ev.URL == "" && !reportAnonymous {
		return
	}

	t.fetches.Add(1)
	go t.fetchScriptSource(ev.ScriptID, ev.URL)
}

// fetchScriptSource runs detached from the event handler. A failure usually
// means the page navigated away before the fetch completed; the script is
// left unrecorded and the failure goes to the diagnostic channel only.
func (t *ScriptTracker) fetchScriptSource(id, url string) {
	defer t.fetches.Done()
	var res getScriptSourceResult
	if err := t.ch.Call(context.Background(), "Debugger.getScriptSource", getScriptSourceParams{ScriptID: id}, &res); err != nil {
		metricFetchFailures.WithLabelValues("script").Inc()
		t.logger.FetchFailed("script", id, err)
		return
	}
	t.mu.Lock()
	t.urls[id] = url
	t.texts[id] = res.ScriptSource
	t.mu.Unlock()
	metricResourcesTracked.WithLabelValues("script").Inc()
}

func (t *ScriptTracker) onExecutionContextsCleared(json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opts.ResetOnNavigation {
		return
	}
	// A fetch already in flight may repopulate these afterward; accepted as
	// an inherent race of best-effort collection during navigation.
	clear(t.urls)
	clear(t.texts)
}

func flattenFunctionRanges(functions []functionCoverage) []rawRange {
	var raw []rawRange
	for _, fn := range functions {
		for _, r := range fn.Ranges {
			raw = append(raw, rawRange{Start: r.StartOffset, End: r.EndOffset, Count: r.Count})
		}
	}
	return raw
}
