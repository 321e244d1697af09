package cartattr

import "strconv"

// Line is the subset of a storefront cart line the codec reads.
type Line struct {
	ID            string      `json:"id"`
	Quantity      int         `json:"quantity"`
	MerchandiseID string      `json:"merchandiseId,omitempty"`
	Attributes    []Attribute `json:"attributes"`
}

// BundleInfo is the partial projection of membership attributes on a line.
// Absent keys stay nil.
type BundleInfo struct {
	IsBundleParent *bool   `json:"isBundleParent,omitempty"`
	BundleID       *string `json:"bundleId,omitempty"`
	ComponentIndex *int    `json:"componentIndex,omitempty"`
}

// Group is the set of lines that belong to one bundle, in cart order.
type Group struct {
	BundleID string `json:"bundleId"`
	Lines    []Line `json:"lines"`
}

// IsBundleLine is true only when the parent attribute is exactly "true".
func IsBundleLine(line Line) bool {
	v, ok := Lookup(line.Attributes, KeyBundleParent)
	return ok && v == "true"
}

// GetBundleInfoFromLine projects the membership attributes present on line.
func GetBundleInfoFromLine(line Line) BundleInfo {
	var info BundleInfo
	if v, ok := Lookup(line.Attributes, KeyBundleParent); ok {
		parent := v == "true"
		info.IsBundleParent = &parent
	}
	if v, ok := Lookup(line.Attributes, KeyBundleID); ok {
		id := v
		info.BundleID = &id
	}
	if v, ok := Lookup(line.Attributes, KeyComponentIndex); ok {
		if idx, err := strconv.Atoi(v); err == nil {
			info.ComponentIndex = &idx
		}
	}
	return info
}

// GroupCartLinesByBundle partitions bundle lines by bundle id, preserving
// input order within each group. Non-bundle lines and lines without a
// bundle id are dropped.
func GroupCartLinesByBundle(lines []Line) map[string]Group {
	groups := make(map[string]Group)
	for _, line := range lines {
		if !IsBundleLine(line) {
			continue
		}
		id, ok := Lookup(line.Attributes, KeyBundleID)
		if !ok || id == "" {
			continue
		}
		g := groups[id]
		g.BundleID = id
		g.Lines = append(g.Lines, line)
		groups[id] = g
	}
	return groups
}

// OrderedGroups is GroupCartLinesByBundle with groups listed in the order
// their first line appears in the cart.
func OrderedGroups(lines []Line) []Group {
	groups := GroupCartLinesByBundle(lines)
	out := make([]Group, 0, len(groups))
	seen := make(map[string]bool, len(groups))
	for _, line := range lines {
		id, ok := Lookup(line.Attributes, KeyBundleID)
		if !ok || seen[id] {
			continue
		}
		if g, ok := groups[id]; ok {
			out = append(out, g)
			seen[id] = true
		}
	}
	return out
}
