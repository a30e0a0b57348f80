package coverage

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/perimetric/pagecov/pkg/cdp"
	"github.com/perimetric/pagecov/pkg/logging"
)

type styleSheetAddedEvent struct {
	Header styleSheetHeader `json:"header"`
}

type styleSheetHeader struct {
	StyleSheetID string `json:"styleSheetId"`
	SourceURL    string `json:"sourceURL"`
}

type getStyleSheetTextParams struct {
	StyleSheetID string `json:"styleSheetId"`
}

type getStyleSheetTextResult struct {
	Text string `json:"text"`
}

type stopRuleUsageTrackingResult struct {
	RuleUsage []ruleUsage `json:"ruleUsage"`
}

// ruleUsage offsets arrive as JSON numbers that may carry a fractional part.
type ruleUsage struct {
	StyleSheetID string  `json:"styleSheetId"`
	StartOffset  float64 `json:"startOffset"`
	EndOffset    float64 `json:"endOffset"`
	Used         bool    `json:"used"`
}

// StyleTracker collects per-stylesheet rule usage for one page session. It
// mirrors ScriptTracker's lifecycle; stylesheets without a source URL are
// always ignored, with no synthetic-URL fallback. Registered sheets keep
// their registration order so stop output is deterministic.
type StyleTracker struct {
	ch     cdp.Channel
	logger *logging.Logger

	mu     sync.Mutex
	active bool
	opts   StyleOptions
	urls   map[string]string
	texts  map[string]string
	order  []string
	subs   []cdp.Subscription

	fetches sync.WaitGroup
}

// NewStyleTracker creates an idle tracker bound to the given channel.
func NewStyleTracker(ch cdp.Channel, logger *logging.Logger) *StyleTracker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StyleTracker{ch: ch, logger: logger}
}

// Active reports whether collection is in progress.
func (t *StyleTracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Start begins accumulating rule usage. The document and style subsystems
// are enabled and tracking begun concurrently; no mutual ordering applies.
func (t *StyleTracker) Start(ctx context.Context, opts StyleOptions) error {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.active = true
	t.opts = opts
	t.urls = make(map[string]string)
	t.texts = make(map[string]string)
	t.order = nil
	t.mu.Unlock()

	addedSub, err := t.ch.Subscribe("CSS.styleSheetAdded", t.onStyleSheetAdded)
	if err != nil {
		return t.abortStart(err, nil)
	}
	clearedSub, err := t.ch.Subscribe("Runtime.executionContextsCleared", t.onExecutionContextsCleared)
	if err != nil {
		return t.abortStart(err, []cdp.Subscription{addedSub})
	}

	t.mu.Lock()
	t.subs = []cdp.Subscription{addedSub, clearedSub}
	t.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.ch.Call(gctx, "DOM.enable", nil, nil)
	})
	g.Go(func() error {
		return t.ch.Call(gctx, "CSS.enable", nil, nil)
	})
	g.Go(func() error {
		return t.ch.Call(gctx, "CSS.startRuleUsageTracking", nil, nil)
	})
	if err := g.Wait(); err != nil {
		return t.abortStart(err, []cdp.Subscription{addedSub, clearedSub})
	}

	metricActiveCollections.WithLabelValues("style").Set(1)
	t.logger.Info("style coverage started",
		slog.Bool("reset_on_navigation", opts.ResetOnNavigation),
	)
	return nil
}

func (t *StyleTracker) abortStart(err error, subs []cdp.Subscription) error {
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	t.mu.Lock()
	t.active = false
	t.subs = nil
	t.mu.Unlock()
	return err
}

// Stop retrieves the rule-usage report and returns one entry for every sheet
// in the registry, in registration order. A sheet with no usage rows still
// yields an entry with empty ranges. The subsystem disables run concurrently
// after the report retrieval.
func (t *StyleTracker) Stop(ctx context.Context) ([]Entry, error) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil, ErrNotStarted
	}
	t.active = false
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()
	metricActiveCollections.WithLabelValues("style").Set(0)

	var report stopRuleUsageTrackingResult
	if err := t.ch.Call(ctx, "CSS.stopRuleUsageTracking", nil, &report); err != nil {
		t.logger.Warn("rule usage report unavailable", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.ch.Call(gctx, "CSS.disable", nil, nil)
	})
	g.Go(func() error {
		return t.ch.Call(gctx, "DOM.disable", nil, nil)
	})
	if err := g.Wait(); err != nil {
		t.logger.Warn("style coverage teardown incomplete", slog.String("error", err.Error()))
	}

	usage := make(map[string][]rawRange)
	for _, ru := range report.RuleUsage {
		count := 0
		if ru.Used {
			count = 1
		}
		usage[ru.StyleSheetID] = append(usage[ru.StyleSheetID], rawRange{
			Start: int(math.Round(ru.StartOffset)),
			End:   int(math.Round(ru.EndOffset)),
			Count: count,
		})
	}

	t.mu.Lock()
	entries := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		// URL and text are both present by construction: ids enter the
		// registry only on a successful fetch.
		entries = append(entries, Entry{
			URL:    t.urls[id],
			Text:   t.texts[id],
			Ranges: convertToDisjointRanges(usage[id]),
		})
	}
	t.mu.Unlock()

	metricEntriesEmitted.WithLabelValues("style").Add(float64(len(entries)))
	t.logger.Info("style coverage stopped", slog.Int("entries", len(entries)))
	return entries, nil
}

func (t *StyleTracker) onStyleSheetAdded(params json.RawMessage) {
	var ev styleSheetAddedEvent
	if err := json.Unmarshal(params, &ev); err != nil {
		t.logger.Debug("malformed styleSheetAdded event", slog.String("error", err.Error()))
		return
	}
	if ev.Header.SourceURL == "" {
		return
	}

	t.fetches.Add(1)
	go t.fetchStyleSheetText(ev.Header.StyleSheetID, ev.Header.SourceURL)
}

func (t *StyleTracker) fetchStyleSheetText(id, url string) {
	defer t.fetches.Done()
	var res getStyleSheetTextResult
	if err := t.ch.Call(context.Background(), "CSS.getStyleSheetText", getStyleSheetTextParams{StyleSheetID: id}, &res); err != nil {
		metricFetchFailures.WithLabelValues("style").Inc()
		t.logger.FetchFailed("stylesheet", id, err)
		return
	}
	t.mu.Lock()
	if _, exists := t.urls[id]; !exists {
		t.order = append(t.order, id)
	}
	t.urls[id] = url
	t.texts[id] = res.Text
	t.mu.Unlock()
	metricResourcesTracked.WithLabelValues("style").Inc()
}

func (t *StyleTracker) onExecutionContextsCleared(json.RawMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opts.ResetOnNavigation {
		return
	}
	clear(t.urls)
	clear(t.texts)
	t.order = nil
}
