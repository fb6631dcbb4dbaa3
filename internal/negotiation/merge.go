package negotiation

import "market-links/internal/model"

// Merge layers overrides in order; a field set in a later layer wins.
func Merge(layers ...model.RewriteOverrides) model.RewriteOverrides {
	var out model.RewriteOverrides
	for _, l := range layers {
		if l.Mode != nil {
			out.Mode = l.Mode
		}
		if l.PreserveQueryParams != nil {
			out.PreserveQueryParams = l.PreserveQueryParams
		}
		if l.PreserveAnchors != nil {
			out.PreserveAnchors = l.PreserveAnchors
		}
	}
	return out
}
