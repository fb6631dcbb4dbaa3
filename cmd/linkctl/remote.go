package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"market-links/internal/model"
	"market-links/internal/negotiation"
)

// =============================================================================
// SYNC COMMAND
// =============================================================================

func runSync(args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	var shop string
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "market-links server base URL")
	fs.StringVar(&shop, "shop", "", "Shop domain (required)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the fingerprint")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkctl sync -shop DOMAIN [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if shop == "" {
		fs.Usage()
		os.Exit(1)
	}

	body, err := doRequest("POST", "/v1/shops/"+url.PathEscape(shop)+"/sync", nil, nil)
	if err != nil {
		fatal("Sync failed: %v", err)
	}

	var result struct {
		Fingerprint string `json:"fingerprint"`
		Written     bool   `json:"written"`
		Diff        *struct {
			Added   []string `json:"added"`
			Removed []string `json:"removed"`
			Changed []struct {
				Locale string `json:"locale"`
			} `json:"changed"`
		} `json:"diff"`
		Config model.ResolvedConfig `json:"config"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		fatal("Failed to parse response: %v", err)
	}

	if quiet {
		fmt.Println(result.Fingerprint)
		return
	}

	if result.Written {
		printSuccess("Config updated (%s)", result.Fingerprint)
	} else {
		printSuccess("Config unchanged (%s)", result.Fingerprint)
	}
	if d := result.Diff; d != nil {
		for _, locale := range d.Added {
			printInfo("added %s", locale)
		}
		for _, locale := range d.Removed {
			printInfo("removed %s", locale)
		}
		for _, c := range d.Changed {
			printInfo("changed %s", c.Locale)
		}
	}
	for _, line := range strategyLines(&result.Config) {
		fmt.Println(line)
	}
}

// =============================================================================
// LOCALIZE COMMAND
// =============================================================================

func runLocalize(args []string) {
	fs := flag.NewFlagSet("localize", flag.ExitOnError)
	var shop, locales, mode, input, outDir string
	var dropQuery, dropFragment bool
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "market-links server base URL")
	fs.StringVar(&shop, "shop", "", "Shop domain (required)")
	fs.StringVar(&locales, "locales", "", "Comma-separated locale codes (default: all)")
	fs.StringVar(&mode, "mode", "", "Rewrite mode: conservative or aggressive (default: shop setting)")
	fs.StringVar(&input, "in", "", "HTML input file (default stdin)")
	fs.StringVar(&outDir, "out", "", "Write each locale to DIR/<locale>.html instead of stdout")
	fs.BoolVar(&dropQuery, "drop-query", false, "Drop query strings from rewritten absolute URLs")
	fs.BoolVar(&dropFragment, "drop-fragment", false, "Drop fragments from rewritten absolute URLs")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - no stats on stderr")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: linkctl localize -shop DOMAIN [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if noColor {
		disableColors()
	}
	if shop == "" {
		fs.Usage()
		os.Exit(1)
	}

	header, err := overridesHeader(mode, dropQuery, dropFragment)
	if err != nil {
		fatal("%v", err)
	}

	content, err := readInput(input)
	if err != nil {
		fatal("Failed to read input: %v", err)
	}

	reqBody := map[string]interface{}{
		"content": content,
		"locales": splitLocales(locales),
	}

	hdr := http.Header{}
	if header != "" {
		hdr.Set(negotiation.HeaderName, header)
	}

	body, err := doRequest("POST", "/v1/shops/"+url.PathEscape(shop)+"/localize", reqBody, hdr)
	if err != nil {
		fatal("Localize failed: %v", err)
	}

	var result struct {
		Converted bool   `json:"converted"`
		Reason    string `json:"reason"`
		Results   []struct {
			Locale    string `json:"locale"`
			Content   string `json:"content"`
			Links     int    `json:"links"`
			Rewritten int    `json:"rewritten"`
			Failed    int    `json:"failed"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		fatal("Failed to parse response: %v", err)
	}

	if !result.Converted {
		printWarning("Content passed through unchanged: %s", result.Reason)
	}

	for _, r := range result.Results {
		if r.Error != "" {
			printWarning("%s: %s", r.Locale, r.Error)
		}
		printInfo("%s: %d links, %d rewritten, %d failed", r.Locale, r.Links, r.Rewritten, r.Failed)

		if outDir != "" {
			path := strings.TrimRight(outDir, "/") + "/" + r.Locale + ".html"
			if err := os.WriteFile(path, []byte(r.Content), 0o644); err != nil {
				fatal("Failed to write %s: %v", path, err)
			}
			continue
		}
		if len(result.Results) > 1 {
			fmt.Printf("%s<!-- %s -->%s\n", colorGray, r.Locale, colorReset)
		}
		fmt.Println(r.Content)
	}
}

// overridesHeader builds the Link-Localization value for the given flags.
// It returns "" when nothing is overridden so the shop settings apply.
func overridesHeader(mode string, dropQuery, dropFragment bool) (string, error) {
	var o model.RewriteOverrides
	if mode != "" {
		m := model.RewriteMode(strings.ToLower(mode))
		if m != model.ModeConservative && m != model.ModeAggressive {
			return "", fmt.Errorf("mode must be conservative or aggressive, got %q", mode)
		}
		o.Mode = &m
	}
	if dropQuery {
		o.PreserveQueryParams = new(bool)
	}
	if dropFragment {
		o.PreserveAnchors = new(bool)
	}
	return negotiation.FormatOverrides(o)
}

func splitLocales(raw string) []string {
	locales := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			locales = append(locales, part)
		}
	}
	return locales
}
