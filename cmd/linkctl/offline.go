package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"market-links/internal/fingerprint"
	"market-links/internal/linkrewrite"
	"market-links/internal/markets"
	"market-links/internal/model"
	"market-links/internal/reconcile"
)

// =============================================================================
// GRAPH FILES
// =============================================================================

// loadGraph reads a market graph saved either as the raw Admin API response
// ({"data": {...}}) or as the bare graph.
func loadGraph(path string) (*model.MarketGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph: %w", err)
	}
	return decodeGraph(data)
}

func decodeGraph(data []byte) (*model.MarketGraph, error) {
	var envelope struct {
		Data *model.MarketGraph `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing graph: %w", err)
	}
	if envelope.Data != nil {
		return envelope.Data, nil
	}

	var graph model.MarketGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("parsing graph: %w", err)
	}
	return &graph, nil
}

// resolveFile parses and fingerprints the graph at path.
func resolveFile(path string) (*model.ResolvedConfig, error) {
	graph, err := loadGraph(path)
	if err != nil {
		return nil, err
	}
	cfg, err := markets.ParseAt(graph, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	cfg.Fingerprint = fingerprint.Compute(cfg)
	return cfg, nil
}

// readInput returns the named file, or stdin for "" and "-".
func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	return string(data), err
}

// =============================================================================
// RESOLVE COMMAND
// =============================================================================

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	var graphPath string
	var full bool
	fs.StringVar(&graphPath, "graph", "", "Market graph JSON file (required)")
	fs.BoolVar(&full, "full", false, "Print the whole resolved config as JSON")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkctl resolve -graph FILE [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if graphPath == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := resolveFile(graphPath)
	if err != nil {
		fatal("%v", err)
	}

	if full {
		printValue(cfg)
		return
	}

	fmt.Printf("%sPrimary:%s %s\n", colorBold, colorReset, cfg.PrimaryURL)
	for _, line := range strategyLines(cfg) {
		fmt.Println(line)
	}
	fmt.Printf("%sFingerprint:%s %s\n", colorGray, colorReset, cfg.Fingerprint)
}

// strategyLines renders one line per canonical locale, sorted by code.
func strategyLines(cfg *model.ResolvedConfig) []string {
	locales := cfg.Locales()
	sort.Strings(locales)

	lines := make([]string, 0, len(locales))
	for _, locale := range locales {
		s := cfg.CanonicalMapping[locale]
		line := fmt.Sprintf("  %-8s %-10s %s", locale, s.Type, s.URL)
		if s.MarketName != "" {
			line += fmt.Sprintf("  (%s)", s.MarketName)
		}
		if n := len(cfg.VariantMapping[locale]); n > 1 {
			line += fmt.Sprintf(" +%d variants", n-1)
		}
		lines = append(lines, line)
	}
	return lines
}

// =============================================================================
// FINGERPRINT COMMAND
// =============================================================================

func runFingerprint(args []string) {
	fs := flag.NewFlagSet("fingerprint", flag.ExitOnError)
	var graphPath string
	fs.StringVar(&graphPath, "graph", "", "Market graph JSON file (required)")
	fs.Parse(args)

	if graphPath == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := resolveFile(graphPath)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(cfg.Fingerprint)
}

// =============================================================================
// REWRITE COMMAND
// =============================================================================

func runRewrite(args []string) {
	fs := flag.NewFlagSet("rewrite", flag.ExitOnError)
	var graphPath, locale, mode, input string
	var dropQuery, dropFragment bool
	fs.StringVar(&graphPath, "graph", "", "Market graph JSON file (required)")
	fs.StringVar(&locale, "locale", "", "Target locale code (required)")
	fs.StringVar(&mode, "mode", "conservative", "Rewrite mode: conservative or aggressive")
	fs.StringVar(&input, "in", "", "HTML input file (default stdin)")
	fs.BoolVar(&dropQuery, "drop-query", false, "Drop query strings from rewritten absolute URLs")
	fs.BoolVar(&dropFragment, "drop-fragment", false, "Drop fragments from rewritten absolute URLs")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - no stats on stderr")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkctl rewrite -graph FILE -locale CODE [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if graphPath == "" || locale == "" {
		fs.Usage()
		os.Exit(1)
	}

	opts := model.RewriteOptions{
		Mode:                model.ParseRewriteMode(mode),
		PreserveQueryParams: !dropQuery,
		PreserveAnchors:     !dropFragment,
	}

	cfg, err := resolveFile(graphPath)
	if err != nil {
		fatal("%v", err)
	}
	content, err := readInput(input)
	if err != nil {
		fatal("Failed to read input: %v", err)
	}

	out, stats, err := linkrewrite.RewriteContent(content, locale, cfg, opts)
	if err != nil {
		printWarning("Rewrite failed, content left unchanged: %v", err)
	}
	fmt.Print(out)

	printInfo("%s: %d links, %d rewritten, %d skipped, %d failed",
		locale, stats.Links, stats.Rewritten, stats.Skipped(), stats.Failed)
}

// =============================================================================
// DIFF COMMAND
// =============================================================================

func runDiff(args []string) {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	var oldPath, newPath string
	fs.StringVar(&oldPath, "old", "", "Previous market graph JSON file (required)")
	fs.StringVar(&newPath, "new", "", "Current market graph JSON file (required)")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if oldPath == "" || newPath == "" {
		fs.Usage()
		os.Exit(1)
	}

	previous, err := resolveFile(oldPath)
	if err != nil {
		fatal("%v", err)
	}
	next, err := resolveFile(newPath)
	if err != nil {
		fatal("%v", err)
	}

	diff := reconcile.DiffConfigs(previous, next)
	if diff.IsEmpty() && !reconcile.PrimaryChanged(previous, next) {
		printSuccess("No strategy changes (%s)", next.Fingerprint)
		return
	}

	if reconcile.PrimaryChanged(previous, next) {
		fmt.Printf("%s~ primary%s %s -> %s\n", colorYellow, colorReset, previous.PrimaryURL, next.PrimaryURL)
	}
	for _, locale := range diff.Added {
		s := next.CanonicalMapping[locale]
		fmt.Printf("%s+ %s%s %s %s\n", colorGreen, locale, colorReset, s.Type, s.URL)
	}
	for _, locale := range diff.Removed {
		fmt.Printf("%s- %s%s\n", colorRed, locale, colorReset)
	}
	for _, c := range diff.Changed {
		fmt.Printf("%s~ %s%s %s %s -> %s %s\n", colorYellow, c.Locale, colorReset,
			c.Old.Type, c.Old.URL, c.New.Type, c.New.URL)
	}

	marketDiff := reconcile.DiffMarkets(previous, next)
	for _, name := range marketDiff.Added {
		printInfo("market added: %s", name)
	}
	for _, name := range marketDiff.Removed {
		printInfo("market removed: %s", name)
	}
}
