// Package fingerprint derives stable content hashes for resolved configs.
// The hash decides cache reuse, it is not a security boundary.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"market-links/internal/model"
)

// Compute returns the fingerprint of cfg's content. The Fingerprint and
// FetchedAt fields are excluded so an unchanged graph fetched twice hashes the same.
func Compute(cfg *model.ResolvedConfig) string {
	if cfg == nil {
		return ""
	}

	content := *cfg
	content.Fingerprint = ""
	content.FetchedAt = time.Time{}

	fp, err := Of(content)
	if err != nil {
		// ResolvedConfig holds only strings, bools, maps and slices.
		return ""
	}
	return fp
}

// Changed reports whether cfg differs from the previously stored fingerprint.
// An empty previous value always counts as changed.
func Changed(cfg *model.ResolvedConfig, previous string) bool {
	return previous == "" || Compute(cfg) != previous
}

// Of hashes any JSON-serializable value. Object keys are sorted at every depth
// before hashing, so field order and map iteration order never matter.
func Of(v any) (string, error) {
	data, err := canonicalJSON(v)
	if err != nil {
		return "", fmt.Errorf("canonicalizing value: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	// Round-trip through generic maps: encoding/json writes map keys sorted.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
