package negotiation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"

	"market-links/internal/model"
)

// ParseHeader reads rewrite overrides from a Link-Localization header.
//
// Examples:
//   - mode=aggressive              -> Mode aggressive
//   - mode="conservative", query   -> Mode conservative, PreserveQueryParams true
//   - fragment=?0;since=2025       -> PreserveAnchors false (params ignored)
//
// Unknown keys are ignored. An empty header overrides nothing.
func ParseHeader(header string) (model.RewriteOverrides, error) {
	var o model.RewriteOverrides

	header = strings.TrimSpace(header)
	if header == "" {
		return o, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return o, fmt.Errorf("invalid %s header: %w", HeaderName, err)
	}

	if member, ok := dict.Get(keyMode); ok {
		mode, err := parseMode(member)
		if err != nil {
			return o, err
		}
		o.Mode = &mode
	}
	if member, ok := dict.Get(keyQuery); ok {
		v, err := parseBool(keyQuery, member)
		if err != nil {
			return o, err
		}
		o.PreserveQueryParams = &v
	}
	if member, ok := dict.Get(keyFragment); ok {
		v, err := parseBool(keyFragment, member)
		if err != nil {
			return o, err
		}
		o.PreserveAnchors = &v
	}

	return o, nil
}

// FormatHeader serializes opts as a Link-Localization header value.
func FormatHeader(opts model.RewriteOptions) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add(keyMode, httpsfv.NewItem(httpsfv.Token(model.ParseRewriteMode(string(opts.Mode)))))
	dict.Add(keyQuery, httpsfv.NewItem(opts.PreserveQueryParams))
	dict.Add(keyFragment, httpsfv.NewItem(opts.PreserveAnchors))
	return httpsfv.Marshal(dict)
}

// FormatOverrides serializes only the fields o sets. A zero o yields "".
func FormatOverrides(o model.RewriteOverrides) (string, error) {
	if o.IsZero() {
		return "", nil
	}
	dict := httpsfv.NewDictionary()
	if o.Mode != nil {
		dict.Add(keyMode, httpsfv.NewItem(httpsfv.Token(model.ParseRewriteMode(string(*o.Mode)))))
	}
	if o.PreserveQueryParams != nil {
		dict.Add(keyQuery, httpsfv.NewItem(*o.PreserveQueryParams))
	}
	if o.PreserveAnchors != nil {
		dict.Add(keyFragment, httpsfv.NewItem(*o.PreserveAnchors))
	}
	return httpsfv.Marshal(dict)
}

func parseMode(member httpsfv.Member) (model.RewriteMode, error) {
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", errors.New("mode value must be an item")
	}

	var s string
	switch v := item.Value.(type) {
	case httpsfv.Token:
		s = string(v)
	case string:
		s = v
	default:
		return "", errors.New("mode value must be a token or string")
	}

	switch mode := model.RewriteMode(strings.ToLower(s)); mode {
	case model.ModeConservative, model.ModeAggressive:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

func parseBool(key string, member httpsfv.Member) (bool, error) {
	item, ok := member.(httpsfv.Item)
	if !ok {
		return false, fmt.Errorf("%s value must be an item", key)
	}
	v, ok := item.Value.(bool)
	if !ok {
		return false, fmt.Errorf("%s value must be a boolean", key)
	}
	return v, nil
}
