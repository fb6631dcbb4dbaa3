package shopify

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"market-links/internal/model"
)

// MinAPIVersion is the oldest Admin API version that exposes market web presences.
const MinAPIVersion = "2024-04"

// UnstableAPIVersion tracks the API head and is always accepted.
const UnstableAPIVersion = "unstable"

// CheckAPIVersion validates a "YYYY-MM" Admin API version and rejects versions
// older than MinAPIVersion.
func CheckAPIVersion(version string) error {
	if version == UnstableAPIVersion {
		return nil
	}

	v, ok := semverOf(version)
	if !ok {
		return model.NewValidationError("api_version", fmt.Sprintf("%q is not a YYYY-MM release", version))
	}

	minimum, _ := semverOf(MinAPIVersion)
	if semver.Compare(v, minimum) < 0 {
		return model.NewValidationError("api_version",
			fmt.Sprintf("%s is older than the minimum supported %s", version, MinAPIVersion))
	}
	return nil
}

// semverOf maps a release like "2025-01" to "v2025.1.0" for semver comparison.
func semverOf(version string) (string, bool) {
	year, month, found := strings.Cut(strings.TrimSpace(version), "-")
	if !found || len(year) != 4 || len(month) != 2 {
		return "", false
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return "", false
	}
	month = strconv.Itoa(m)

	v := "v" + year + "." + month + ".0"
	if !semver.IsValid(v) {
		return "", false
	}
	return v, true
}
