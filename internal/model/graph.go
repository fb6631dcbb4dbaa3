package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/text/language"
)

// =============================================================================
// MARKET GRAPH
// =============================================================================
//
// The raw markets graph as returned by the commerce platform's Admin API.
// Field shapes drift between API versions, so two adapters absorb the variance:
//
//   - Connection[T] accepts a bare list, {"nodes": [...]} or {"edges": [{"node": ...}]}
//   - LocaleRef accepts "fr", {"locale": "fr"} or {"isoCode": "fr", "languageTag": "fr-FR"}
//
// Everything downstream of this file only sees flat slices and lowercase locale codes.
// =============================================================================

// MarketGraph is the raw query response: every market plus the shop's primary domain.
type MarketGraph struct {
	Markets Connection[Market] `json:"markets"`
	Shop    Shop               `json:"shop"`
}

// Shop carries the storefront identity used as the anchor for path strategies.
type Shop struct {
	Name          string `json:"name"`
	PrimaryDomain Domain `json:"primaryDomain"`
}

// Domain is a host/url pair as exposed by the platform.
type Domain struct {
	Host string `json:"host"`
	URL  string `json:"url"`
}

// Market is a named set of regions a merchant sells into.
type Market struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Status    string `json:"status,omitempty"` // ACTIVE/DRAFT on newer API versions
	Primary   bool   `json:"primary"`
	IsPrimary bool   `json:"isPrimary,omitempty"`

	WebPresences Connection[WebPresence] `json:"webPresences"`

	// WebPresence is the single-presence field of older API versions.
	WebPresence *WebPresence `json:"webPresence,omitempty"`
}

// IsEnabled reports whether the market serves traffic.
func (m Market) IsEnabled() bool {
	return m.Enabled || strings.EqualFold(m.Status, "ACTIVE")
}

// IsPrimaryMarket reports whether this is the shop's primary market.
func (m Market) IsPrimaryMarket() bool {
	return m.Primary || m.IsPrimary
}

// Presences returns the market's web presences, including the legacy single
// presence when it is not already part of the connection.
func (m Market) Presences() []WebPresence {
	out := make([]WebPresence, 0, len(m.WebPresences)+1)
	out = append(out, m.WebPresences...)
	if m.WebPresence != nil {
		for _, p := range out {
			if p.ID != "" && p.ID == m.WebPresence.ID {
				return out
			}
		}
		out = append(out, *m.WebPresence)
	}
	return out
}

// WebPresence binds a market to a domain or subfolder for one or more locales.
type WebPresence struct {
	ID               string                `json:"id,omitempty"`
	Domain           *Domain               `json:"domain,omitempty"`
	SubfolderSuffix  string                `json:"subfolderSuffix,omitempty"`
	DefaultLocale    LocaleRef             `json:"defaultLocale"`
	AlternateLocales Connection[LocaleRef] `json:"alternateLocales"`
}

// =============================================================================
// SHAPE ADAPTERS
// =============================================================================

// Connection is a collection that tolerates list, nodes and edges encodings.
// It always marshals as a plain list.
type Connection[T any] []T

// UnmarshalJSON handles [...], {"nodes": [...]} and {"edges": [{"node": ...}]}.
func (c *Connection[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = nil
		return nil
	}

	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*c = items
		return nil
	}

	var wrapped struct {
		Nodes []T `json:"nodes"`
		Edges []struct {
			Node T `json:"node"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}

	items := wrapped.Nodes
	for _, edge := range wrapped.Edges {
		items = append(items, edge.Node)
	}
	*c = items
	return nil
}

// LocaleRef is a normalized locale: Code is the lowercase hyphenated key used in
// mappings ("pt-br"), Tag the canonical BCP 47 form ("pt-BR").
type LocaleRef struct {
	Code string
	Tag  string
}

// Locale builds a LocaleRef from a bare code.
func Locale(code string) LocaleRef {
	return newLocaleRef(code, "")
}

// IsZero reports whether no locale was resolved.
func (l LocaleRef) IsZero() bool {
	return l.Code == ""
}

// UnmarshalJSON never fails: unrecognized shapes yield a zero LocaleRef, which
// callers treat as "no resolvable locale".
func (l *LocaleRef) UnmarshalJSON(data []byte) error {
	ref, _ := NormalizeLocale(data)
	*l = ref
	return nil
}

// MarshalJSON writes the bare code.
func (l LocaleRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Code)
}

// NormalizeLocale is the single adapter for every locale shape the platform
// returns. Reports false when no code could be extracted.
func NormalizeLocale(data []byte) (LocaleRef, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return LocaleRef{}, false
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		ref := newLocaleRef(s, "")
		return ref, !ref.IsZero()
	}

	var obj struct {
		Locale      json.RawMessage `json:"locale"`
		ISOCode     string          `json:"isoCode"`
		LanguageTag string          `json:"languageTag"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return LocaleRef{}, false
	}

	if len(obj.Locale) > 0 {
		// {"locale": "fr"} or {"locale": {"isoCode": ...}}
		if ref, ok := NormalizeLocale(obj.Locale); ok {
			return ref, true
		}
	}

	code := obj.ISOCode
	if code == "" {
		code = obj.LanguageTag
	}
	ref := newLocaleRef(code, obj.LanguageTag)
	return ref, !ref.IsZero()
}

func newLocaleRef(code, tag string) LocaleRef {
	code = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(code, "_", "-")))
	code = strings.Trim(code, "-")
	if code == "" {
		return LocaleRef{}
	}

	tag = strings.TrimSpace(tag)
	if tag == "" {
		if parsed, err := language.Parse(code); err == nil {
			tag = parsed.String()
		} else {
			tag = code
		}
	}
	return LocaleRef{Code: code, Tag: tag}
}
