// linkctl is a CLI for market link localization.
// Offline commands work on a saved market graph; remote commands call a
// running market-links server.
//
// Commands:
//
//	linkctl resolve -graph FILE
//	linkctl fingerprint -graph FILE
//	linkctl rewrite -graph FILE -locale CODE [-mode M] [-in FILE]
//	linkctl diff -old FILE -new FILE
//	linkctl sync -server URL -shop DOMAIN
//	linkctl localize -server URL -shop DOMAIN [-locales a,b] [-mode M] [-in FILE]
//
// Examples:
//
//	linkctl resolve -graph markets.json
//	linkctl rewrite -graph markets.json -locale fr -mode aggressive -in page.html
//	linkctl localize -server http://localhost:8080 -shop acme.myshopify.com -locales fr,nl -in page.html
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"market-links/internal/model"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "resolve":
		runResolve(args)
	case "fingerprint":
		runFingerprint(args)
	case "rewrite":
		runRewrite(args)
	case "diff":
		runDiff(args)
	case "sync":
		runSync(args)
	case "localize":
		runLocalize(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `linkctl - market link localization tool

Usage:
  linkctl <command> [options]

Offline commands (market graph JSON file):
  resolve      Print the per-locale URL strategies
  fingerprint  Print the config fingerprint
  rewrite      Rewrite links in HTML for one locale
  diff         Compare the strategies of two graphs

Server commands:
  sync         Fetch and resolve a shop's markets
  localize     Rewrite links in HTML for a shop's locales

Examples:
  # Inspect a saved Admin API response
  linkctl resolve -graph markets.json

  # Rewrite a page for French
  linkctl rewrite -graph markets.json -locale fr -in page.html

  # Localize through the server with aggressive mode
  linkctl localize -server http://localhost:8080 -shop acme.myshopify.com -mode aggressive -in page.html

Run 'linkctl <command> -h' for command-specific options.
`)
}

// =============================================================================
// HTTP
// =============================================================================

func doRequest(method, path string, body interface{}, header http.Header) ([]byte, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if verbose {
		printRequest(method, path, req.Header, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error *model.APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error != nil && envelope.Error.Code != "" {
			return nil, fmt.Errorf("HTTP %d %s: %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, header http.Header, body []byte) {
	fmt.Fprintf(os.Stderr, "\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	for k := range header {
		fmt.Fprintf(os.Stderr, "  %s%s: %s%s\n", colorGray, k, header.Get(k), colorReset)
	}
	if body != nil && len(body) < 4096 {
		fmt.Fprintf(os.Stderr, "%s\n", body)
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Fprintf(os.Stderr, "\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(os.Stderr, body, "  ")
}

func printJSON(w io.Writer, data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Fprintf(w, "%s%s\n", prefix, string(data))
		return
	}
	fmt.Fprintln(w, prefix+pretty.String())
}

func printValue(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("Failed to encode output: %v", err)
	}
	fmt.Println(string(data))
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stderr, "%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stderr, "%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
