// Package negotiation settles the rewrite options for one request. Tenant
// settings form the base; the Link-Localization header and the request body
// override them field by field.
//
// REST middleware parses the header into the request context. MCP tools pass
// their overrides explicitly.
package negotiation

// HeaderName carries rewrite overrides as an RFC 8941 dictionary:
//
//	Link-Localization: mode=aggressive, query=?1, fragment=?0
const HeaderName = "Link-Localization"

// Dictionary keys understood in HeaderName.
const (
	keyMode     = "mode"
	keyQuery    = "query"
	keyFragment = "fragment"
)

// contextKey is the type for context values to avoid collisions
type contextKey string

// OverridesContextKey is the context key for the parsed header overrides.
const OverridesContextKey contextKey = "links.overrides"

// InvalidHeader is the error code for a malformed Link-Localization header.
const InvalidHeader = "invalid_link_localization"
