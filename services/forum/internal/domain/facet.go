package domain

// Facet group names.
const (
	FacetGroupCustomer = FieldCustomerID
	FacetGroupForum    = FieldForumID
)

// Facet is one selectable value within a facet group.
type Facet struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// FacetGroup is a named dimension of the result set.
type FacetGroup struct {
	Name   string   `json:"name"`
	Facets []*Facet `json:"facets"`
}

// FacetMap maps facet group names to groups.
type FacetMap map[string]*FacetGroup

// Values returns the raw facet values of the group in order.
func (g *FacetGroup) Values() []string {
	if g == nil {
		return nil
	}
	values := make([]string, 0, len(g.Facets))
	for _, f := range g.Facets {
		values = append(values, f.Value)
	}
	return values
}

// ApplyLabels sets facet labels from the given value-to-label lookup. Values
// without a label keep the raw value as their label.
func (g *FacetGroup) ApplyLabels(labels map[string]string) {
	if g == nil {
		return
	}
	for _, f := range g.Facets {
		if l, ok := labels[f.Value]; ok && l != "" {
			f.Label = l
			continue
		}
		if f.Label == "" {
			f.Label = f.Value
		}
	}
}
