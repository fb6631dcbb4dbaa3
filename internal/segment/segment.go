// Package segment computes the path segment a subfolder market is served under.
package segment

import "strings"

// Build returns the lowercase path segment, without slashes, for a locale
// served under a market's subfolder suffix.
//
// Rules, first match wins:
//   - empty suffix: the locale itself ("pt-pt", "" -> "pt-pt")
//   - region-qualified locale: the suffix already encodes the market ("en-gb", "uk" -> "uk")
//   - hyphenated suffix: configured as a full path ("fr", "fr-be" -> "fr-be")
//   - suffix equal to locale: single-market case ("fr", "fr" -> "fr")
//   - otherwise: locale and market joined ("fr", "be" -> "fr-be")
func Build(locale, suffix string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	suffix = strings.Trim(strings.ToLower(strings.TrimSpace(suffix)), "/")

	switch {
	case suffix == "":
		return locale
	case strings.Contains(locale, "-"):
		return suffix
	case strings.Contains(suffix, "-"):
		return suffix
	case suffix == locale:
		return locale
	default:
		return locale + "-" + suffix
	}
}
