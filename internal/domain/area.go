package domain

import (
	"strings"
)

// DefaultSectorCode is the persisted sector code of a device that has not
// resolved an address yet.
const DefaultSectorCode = "0"

// AreaType is the geographic zone a sector belongs to.
type AreaType int

const (
	AreaNone AreaType = iota
	AreaCity
	AreaSuburb
)

// Zone describes an area type.
type Zone struct {
	Code      string
	Name      string
	RestColor string
}

var zones = map[AreaType]Zone{
	AreaNone:   {Code: "", Name: "none", RestColor: "#9E9E9E"},
	AreaCity:   {Code: "L", Name: "city", RestColor: "#E53935"},
	AreaSuburb: {Code: "S", Name: "suburb", RestColor: "#424242"},
}

// Zone returns the zone definition of a. Unknown values resolve to the
// AreaNone zone.
func (a AreaType) Zone() Zone {
	if z, ok := zones[a]; ok {
		return z
	}
	return zones[AreaNone]
}

func (a AreaType) String() string { return a.Zone().Name }

// Sector is a collection sector, identified by its persisted code.
type Sector struct {
	Code string
	Type AreaType
}

// NoSector is the unset sector.
var NoSector = Sector{Code: DefaultSectorCode, Type: AreaNone}

// ParseSector derives a Sector from a persisted code. The leading letter
// picks the area type; codes without a known prefix are unset.
func ParseSector(code string) Sector {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" || code == DefaultSectorCode {
		return NoSector
	}
	for a, z := range zones {
		if a != AreaNone && strings.HasPrefix(code, z.Code) {
			return Sector{Code: code, Type: a}
		}
	}
	return NoSector
}

// IsSet reports whether s refers to a real sector.
func (s Sector) IsSet() bool { return s.Type != AreaNone }

func (s Sector) String() string {
	if !s.IsSet() {
		return DefaultSectorCode
	}
	return s.Code
}
