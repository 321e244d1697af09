// Package cartattr converts bundle membership metadata to and from the
// key/value attributes stored on storefront cart lines.
package cartattr

import (
	"strconv"
)

// Reserved attribute keys. The leading underscore hides them from the
// storefront's checkout summary.
const (
	KeyBundleParent       = "_bundle_parent"
	KeyComponentOf        = "_bundle_component_of"
	KeyBundleID           = "_bundle_id"
	KeyComponentIndex     = "_bundle_component_index"
	KeyTotalComponents    = "_bundle_total_components"
	KeyComponentProductID = "_bundle_component_product_id"
	KeyRequestID          = "_bundle_request"
)

// Attribute is one key/value pair on a cart line.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Tags is the typed form of the bundle attributes on one line.
type Tags struct {
	BundleParent       bool
	ComponentOf        string
	BundleID           string
	ComponentIndex     int
	TotalComponents    int
	ComponentProductID string
	RequestID          string
}

// Attributes encodes the tags. Optional fields are emitted only when set.
func (t Tags) Attributes() []Attribute {
	attrs := []Attribute{
		{Key: KeyBundleParent, Value: strconv.FormatBool(t.BundleParent)},
		{Key: KeyBundleID, Value: t.BundleID},
		{Key: KeyComponentIndex, Value: strconv.Itoa(t.ComponentIndex)},
		{Key: KeyTotalComponents, Value: strconv.Itoa(t.TotalComponents)},
		{Key: KeyComponentProductID, Value: t.ComponentProductID},
	}
	if t.ComponentOf != "" {
		attrs = append(attrs, Attribute{Key: KeyComponentOf, Value: t.ComponentOf})
	}
	if t.RequestID != "" {
		attrs = append(attrs, Attribute{Key: KeyRequestID, Value: t.RequestID})
	}
	return attrs
}

// ParseTags decodes the reserved attributes. It reports false when the
// attributes do not mark a bundle line.
func ParseTags(attrs []Attribute) (Tags, bool) {
	values := index(attrs)
	if values[KeyBundleParent] != "true" {
		return Tags{}, false
	}
	t := Tags{
		BundleParent:       true,
		ComponentOf:        values[KeyComponentOf],
		BundleID:           values[KeyBundleID],
		ComponentProductID: values[KeyComponentProductID],
		RequestID:          values[KeyRequestID],
	}
	t.ComponentIndex, _ = strconv.Atoi(values[KeyComponentIndex])
	t.TotalComponents, _ = strconv.Atoi(values[KeyTotalComponents])
	return t, true
}

// Lookup returns the value of key, reporting whether it was present.
func Lookup(attrs []Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func index(attrs []Attribute) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if _, seen := out[a.Key]; seen {
			continue
		}
		out[a.Key] = a.Value
	}
	return out
}
