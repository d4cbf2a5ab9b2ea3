package domain

import "context"

// AddressComponent is one tagged part of a geocoding result.
type AddressComponent struct {
	LongName string
	Types    []string
}

// HasType reports whether the component carries the given type tag.
func (c AddressComponent) HasType(t string) bool {
	for _, ct := range c.Types {
		if ct == t {
			return true
		}
	}
	return false
}

// PrimaryType returns the first type tag, or "" when untagged.
func (c AddressComponent) PrimaryType() string {
	if len(c.Types) == 0 {
		return ""
	}
	return c.Types[0]
}

// GeocodeResult contains one candidate returned by a geocoding provider.
type GeocodeResult struct {
	FormattedAddress string
	Components       []AddressComponent
}

// Component returns the first component whose primary type is t.
func (r GeocodeResult) Component(t string) (AddressComponent, bool) {
	for _, c := range r.Components {
		if c.PrimaryType() == t {
			return c, true
		}
	}
	return AddressComponent{}, false
}

// Geocoder turns free-text addresses into candidate results.
type Geocoder interface {
	// Geocode returns every candidate the provider knows for address. An
	// address the provider cannot place yields an empty slice and a nil error;
	// a non-nil error always means the lookup itself failed.
	Geocode(ctx context.Context, address string) ([]GeocodeResult, error)
}
