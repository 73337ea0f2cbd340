// Command shelfwatch runs one harvest of a branch's online catalog:
// store-context selection, rendered capture, direct API pagination,
// DOM recovery, then SQLite + CSV persistence.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pricecheckph/shelfwatch/harvest"
)

func main() {
	var (
		configPath     = flag.String("config", "", "YAML configuration file (optional)")
		pages          = flag.String("pages", "", "page window as start-end or a single page")
		startPage      = flag.Int("start", 0, "first page (overrides -pages)")
		endPage        = flag.Int("end", 0, "last page (overrides -pages)")
		output         = flag.String("output", "", "CSV output path")
		debug          = flag.Bool("debug", false, "dump raw responses and page HTML")
		stagnantLimit  = flag.Int("stagnant-limit", 0, "consecutive empty pages before halting")
		maxDOMNodes    = flag.Int("max-dom-nodes", 0, "cards inspected per rendered page")
		includeNoPrice = flag.Bool("include-no-price", false, "keep products without a price")
		logLevel       = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	if *output != "" {
		cfg.Output.CSVPath = *output
	}
	if *debug {
		cfg.Output.Debug = true
	}
	if *stagnantLimit > 0 {
		cfg.Walk.StagnantLimit = *stagnantLimit
	}
	if *maxDOMNodes > 0 {
		cfg.Walk.DOMNodeCap = *maxDOMNodes
	}
	if *includeNoPrice {
		cfg.Walk.IncludeNoPrice = true
	}

	start, end, err := pageWindow(*pages, *startPage, *endPage)
	if err != nil {
		logger.Error("invalid page window", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	h, err := harvest.New(cfg, start, end, logger)
	if err != nil {
		logger.Error("setup failed", "error", err)
		os.Exit(1)
	}

	rep, err := h.Run(ctx)
	if err != nil {
		logger.Error("harvest failed", "error", err)
		os.Exit(1)
	}

	// An empty catalog is a completed run, not a failure: the snapshot
	// and run row carry the diagnosis.
	logger.Info("harvest complete",
		"run_id", rep.RunID,
		"total", rep.Total,
		"api_pages", rep.APIPages,
		"seed", rep.SeedURL,
		"break_reason", rep.BreakReason,
		"store", rep.StoreOutcome,
		"csv", rep.CSVPath,
		"elapsed", rep.Finished.Sub(rep.Started).Round(time.Second))
}

func loadConfig(path string) (*harvest.Config, error) {
	if path == "" {
		return harvest.DefaultConfig(), nil
	}
	return harvest.LoadConfig(path)
}

// pageWindow resolves the -pages shorthand ("3-7" or "5") with the
// explicit -start/-end flags taking precedence.
func pageWindow(pages string, start, end int) (int, int, error) {
	if pages != "" {
		lo, hi, ok := strings.Cut(pages, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return 0, 0, fmt.Errorf("bad -pages value %q", pages)
		}
		b := a
		if ok {
			if b, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return 0, 0, fmt.Errorf("bad -pages value %q", pages)
			}
		}
		if start == 0 {
			start = a
		}
		if end == 0 {
			end = b
		}
	}
	if start < 0 || end < 0 || (end > 0 && start > end) {
		return 0, 0, fmt.Errorf("bad page window %d-%d", start, end)
	}
	return start, end, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
