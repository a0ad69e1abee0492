package model

// FilterRules narrows a subscription's update list. Every rule is optional;
// an empty list disables that rule.
type FilterRules struct {
	Authors         []string `json:"authors,omitempty"`
	ExcludeAuthors  []string `json:"exclude_authors,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty"`
	UpdateTypes     []string `json:"update_types,omitempty"`
}

// IsEmpty reports whether no rule is set.
func (f *FilterRules) IsEmpty() bool {
	return f == nil ||
		len(f.Authors) == 0 &&
			len(f.ExcludeAuthors) == 0 &&
			len(f.Keywords) == 0 &&
			len(f.ExcludeKeywords) == 0 &&
			len(f.UpdateTypes) == 0
}
