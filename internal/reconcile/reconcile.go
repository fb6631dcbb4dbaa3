// Package reconcile computes what changed between two resolved locale configs.
// Used by the sync path to log and report the delta when a shop's market
// graph produces a new fingerprint.
package reconcile

import (
	"sort"

	"market-links/internal/model"
)

// LocaleDiff describes how the canonical mapping moved between two configs.
// All slices are sorted by locale code.
type LocaleDiff struct {
	Added   []string         `json:"added,omitempty"`   // Locales in next but not previous
	Removed []string         `json:"removed,omitempty"` // Locales in previous but not next
	Changed []StrategyChange `json:"changed,omitempty"` // Locales in both with a different strategy
}

// StrategyChange records a locale whose canonical strategy moved.
type StrategyChange struct {
	Locale string               `json:"locale"`
	Old    model.LocaleStrategy `json:"old"`
	New    model.LocaleStrategy `json:"new"`
}

// IsEmpty returns true if the canonical mapping did not change.
func (d *LocaleDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffConfigs computes the delta between the previous and next canonical mappings.
// A nil previous config means every locale in next is added.
//
// Algorithm:
//  1. For each locale in next: absent from previous -> added; different strategy -> changed
//  2. For each locale in previous: absent from next -> removed
func DiffConfigs(previous, next *model.ResolvedConfig) *LocaleDiff {
	diff := &LocaleDiff{}

	prevMapping := mappingOf(previous)
	nextMapping := mappingOf(next)

	for locale, strategy := range nextMapping {
		old, exists := prevMapping[locale]
		if !exists {
			diff.Added = append(diff.Added, locale)
			continue
		}
		if old != strategy {
			diff.Changed = append(diff.Changed, StrategyChange{
				Locale: locale,
				Old:    old,
				New:    strategy,
			})
		}
	}

	for locale := range prevMapping {
		if _, exists := nextMapping[locale]; !exists {
			diff.Removed = append(diff.Removed, locale)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Slice(diff.Changed, func(i, j int) bool {
		return diff.Changed[i].Locale < diff.Changed[j].Locale
	})
	return diff
}

func mappingOf(cfg *model.ResolvedConfig) map[string]model.LocaleStrategy {
	if cfg == nil {
		return nil
	}
	return cfg.CanonicalMapping
}

// MarketDiff describes which markets started or stopped contributing locales.
type MarketDiff struct {
	Added   []string `json:"added,omitempty"`   // Market names in next but not previous
	Removed []string `json:"removed,omitempty"` // Market names in previous but not next
}

// IsEmpty returns true if the same markets contribute locales.
func (d *MarketDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffMarkets computes the set difference of contributing market names.
func DiffMarkets(previous, next *model.ResolvedConfig) *MarketDiff {
	diff := &MarketDiff{}

	prevSet := marketNames(previous)
	nextSet := marketNames(next)

	for name := range nextSet {
		if !prevSet[name] {
			diff.Added = append(diff.Added, name)
		}
	}
	for name := range prevSet {
		if !nextSet[name] {
			diff.Removed = append(diff.Removed, name)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	return diff
}

func marketNames(cfg *model.ResolvedConfig) map[string]bool {
	set := make(map[string]bool)
	if cfg == nil {
		return set
	}
	for _, m := range cfg.Markets {
		set[m.Name] = true
	}
	return set
}

// PrimaryChanged returns true if the shop's primary URL moved.
// A missing previous config is not a change.
func PrimaryChanged(previous, next *model.ResolvedConfig) bool {
	if previous == nil || next == nil {
		return false
	}
	return previous.PrimaryURL != next.PrimaryURL
}
