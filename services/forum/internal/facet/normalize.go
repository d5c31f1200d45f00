// Package facet post-processes facet groups before they reach a renderer.
package facet

import (
	"fmt"

	"github.com/utafrali/EcommerceGo/services/forum/internal/domain"
)

// Normalize rewrites colliding labels in the customer facet group so that no
// two facets render the same text. Facets are modified in place.
//
// A colliding label becomes "{value} ({value})".
// TODO: append the customer's account name instead of repeating the value once
// the customer service exposes it to the forum.
func Normalize(facets domain.FacetMap) {
	if len(facets) == 0 {
		return
	}
	group, ok := facets[domain.FacetGroupCustomer]
	if !ok || group == nil {
		return
	}

	byLabel := make(map[string][]*domain.Facet, len(group.Facets))
	for _, f := range group.Facets {
		byLabel[f.Label] = append(byLabel[f.Label], f)
	}

	for _, shared := range byLabel {
		if len(shared) < 2 {
			continue
		}
		for _, f := range shared {
			f.Label = fmt.Sprintf("%s (%s)", f.Value, f.Value)
		}
	}
}
