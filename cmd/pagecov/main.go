// Command pagecov collects script and stylesheet usage coverage from one
// browser page over the DevTools protocol and writes a JSON report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/perimetric/pagecov/pkg/api"
	"github.com/perimetric/pagecov/pkg/cdp"
	"github.com/perimetric/pagecov/pkg/config"
	"github.com/perimetric/pagecov/pkg/coverage"
	"github.com/perimetric/pagecov/pkg/logging"
	"github.com/perimetric/pagecov/pkg/report"
)

// Version information - set via ldflags during build
var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

type navigateParams struct {
	URL string `json:"url"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pagecov: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "", "path to a pagecov.yaml config file")
		endpoint    = flag.String("endpoint", "", "DevTools HTTP endpoint for target discovery (e.g. http://127.0.0.1:9222)")
		wsURLFlag   = flag.String("ws", "", "explicit page-target websocket URL (skips discovery)")
		navigateURL = flag.String("url", "", "navigate the page to this URL after coverage starts")
		wait        = flag.Duration("wait", 10*time.Second, "how long to collect before stopping (interrupt stops early)")
		outPath     = flag.String("out", "", "report output path (\"-\" for stdout)")
		pretty      = flag.Bool("pretty", false, "indent the JSON report")
		anonymous   = flag.Bool("anonymous", false, "include scripts without a URL under placeholder URLs")
		noReset     = flag.Bool("no-reset", false, "keep registered resources across navigations")
		debugAddr   = flag.String("debug-addr", "", "serve /healthz, /status and /metrics on this address")
		verbose     = flag.Bool("v", false, "debug logging")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pagecov %s (%s)\n", version, commit)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, *endpoint, *wsURLFlag, *outPath, *debugAddr, *pretty, *anonymous, *noReset)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	runID := ulid.Make().String()
	logger := logging.NewLogger("pagecov", level).WithSession(runID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	wsURL := cfg.Browser.WebSocketURL
	if wsURL == "" {
		discoverCtx, discoverCancel := context.WithTimeout(ctx, cfg.Browser.DialTimeout)
		wsURL, err = cdp.DiscoverPageTarget(discoverCtx, cfg.Browser.Endpoint)
		discoverCancel()
		if err != nil {
			return err
		}
	}
	logger.Info("connecting", slog.String("ws_url", wsURL))

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.Browser.DialTimeout)
	client, err := cdp.Dial(dialCtx, wsURL, logger)
	dialCancel()
	if err != nil {
		return fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	defer client.Close()

	cov := coverage.New(client, logger)
	startedAt := time.Now().UTC()

	if cfg.Debug.Addr != "" {
		debug := api.NewServer(cfg.Debug.Addr, func() api.Status {
			return api.Status{
				RunID:        runID,
				StartedAt:    startedAt,
				ScriptActive: cov.ScriptActive(),
				StyleActive:  cov.StyleActive(),
			}
		}, logger)
		debug.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			_ = debug.Shutdown(shutdownCtx)
		}()
	}

	scriptOpts := coverage.ScriptOptions{
		ResetOnNavigation: cfg.Scripts.ResetOnNavigation,
		ReportAnonymous:   cfg.Scripts.ReportAnonymous,
	}
	styleOpts := coverage.StyleOptions{
		ResetOnNavigation: cfg.Styles.ResetOnNavigation,
	}

	if err := cov.StartScriptCoverage(ctx, scriptOpts); err != nil {
		return fmt.Errorf("starting script coverage: %w", err)
	}
	if err := cov.StartStyleCoverage(ctx, styleOpts); err != nil {
		return fmt.Errorf("starting style coverage: %w", err)
	}

	if *navigateURL != "" {
		if err := client.Call(ctx, "Page.navigate", navigateParams{URL: *navigateURL}, nil); err != nil {
			logger.Warn("navigation failed", slog.String("url", *navigateURL), slog.String("error", err.Error()))
		}
	}

	select {
	case <-time.After(*wait):
	case <-ctx.Done():
		logger.Info("interrupted, stopping collection")
	}

	// Stop with a fresh context: the signal context is likely cancelled.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Browser.DialTimeout)
	defer stopCancel()

	scripts, err := cov.StopScriptCoverage(stopCtx)
	if err != nil {
		return fmt.Errorf("stopping script coverage: %w", err)
	}
	styles, err := cov.StopStyleCoverage(stopCtx)
	if err != nil {
		return fmt.Errorf("stopping style coverage: %w", err)
	}

	r := report.New(cfg.Browser.Endpoint, scripts, styles)
	r.ID = runID
	if err := r.WriteFile(cfg.Report.Path, cfg.Report.Pretty); err != nil {
		return err
	}
	logger.Info("report written",
		slog.String("path", cfg.Report.Path),
		slog.Int("scripts", len(scripts)),
		slog.Int("styles", len(styles)),
	)
	return nil
}

func applyFlagOverrides(cfg *config.Config, endpoint, wsURL, outPath, debugAddr string, pretty, anonymous, noReset bool) {
	if endpoint != "" {
		cfg.Browser.Endpoint = endpoint
	}
	if wsURL != "" {
		cfg.Browser.WebSocketURL = wsURL
	}
	if outPath != "" {
		cfg.Report.Path = outPath
	}
	if debugAddr != "" {
		cfg.Debug.Addr = debugAddr
	}
	if pretty {
		cfg.Report.Pretty = true
	}
	if anonymous {
		cfg.Scripts.ReportAnonymous = true
	}
	if noReset {
		cfg.Scripts.ResetOnNavigation = false
		cfg.Styles.ResetOnNavigation = false
	}
}
