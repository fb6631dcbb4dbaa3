package shopify

import (
	"encoding/json"
	"sort"
	"strings"
)

// marketsQuery selects every field the market parser reads, one page of
// markets at a time. Collections use nodes; older API versions answering with
// edges are handled by model.Connection.
const marketsQuery = `query MarketGraph($after: String) {
  shop {
    name
    primaryDomain { host url }
  }
  markets(first: 250, after: $after) {
    pageInfo { hasNextPage endCursor }
    nodes {
      id
      name
      enabled
      primary
      webPresences(first: 50) {
        pageInfo { hasNextPage }
        nodes {
          id
          subfolderSuffix
          domain { host url }
          defaultLocale { locale }
          alternateLocales { locale }
        }
      }
    }
  }
}`

// pageInfo is the Relay cursor block of a connection.
type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// marketsPaging reads the cursors of one markets page.
type marketsPaging struct {
	Markets struct {
		PageInfo pageInfo `json:"pageInfo"`
		Nodes    []struct {
			ID           string `json:"id"`
			WebPresences struct {
				PageInfo pageInfo `json:"pageInfo"`
			} `json:"webPresences"`
		} `json:"nodes"`
	} `json:"markets"`
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type gqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// restErrorResponse covers the non-GraphQL error bodies: {"errors": "..."}
// or {"errors": {"field": ["..."]}}.
type restErrorResponse struct {
	Errors json.RawMessage `json:"errors"`
}

func (r restErrorResponse) message() string {
	if len(r.Errors) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(r.Errors, &s); err == nil {
		return s
	}

	var fields map[string][]string
	if err := json.Unmarshal(r.Errors, &fields); err == nil {
		parts := make([]string, 0, len(fields))
		for field, msgs := range fields {
			parts = append(parts, field+": "+strings.Join(msgs, ", "))
		}
		sort.Strings(parts)
		return strings.Join(parts, "; ")
	}

	return string(r.Errors)
}
