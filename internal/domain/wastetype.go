package domain

import (
	"fmt"
	"strings"
)

// Type is a waste stream.
type Type int

const (
	TypeNone Type = iota
	TypeRest
	TypeGFT
	TypePMD
	TypePK
	TypeGlas
)

// AllTypes lists every waste stream in display order.
var AllTypes = []Type{TypeRest, TypeGFT, TypePMD, TypePK, TypeGlas, TypeNone}

type typeInfo struct {
	value string
	short string
	long  string
	color string // empty for zone-dependent colours
}

var typeTable = map[Type]typeInfo{
	TypeRest: {value: "rest", short: "Rest", long: "Restafval"},
	TypeGFT:  {value: "gft", short: "GFT", long: "Groente-, fruit- en tuinafval", color: "#4CAF50"},
	TypePMD:  {value: "pmd", short: "PMD", long: "Plastic flessen, metalen verpakkingen en drankkartons", color: "#2196F3"},
	TypePK:   {value: "pk", short: "P-K", long: "Papier en karton", color: "#FFC107"},
	TypeGlas: {value: "glas", short: "Glas", long: "Glas", color: "#9C27B0"},
	TypeNone: {value: "none", short: "-", long: "Geen", color: "#9E9E9E"},
}

func (t Type) info() typeInfo {
	if info, ok := typeTable[t]; ok {
		return info
	}
	return typeTable[TypeNone]
}

// String returns the stable wire value ("rest", "gft", ...).
func (t Type) String() string { return t.info().value }

// ShortLabel returns the abbreviated display label.
func (t Type) ShortLabel() string { return t.info().short }

// LongLabel returns the full display label.
func (t Type) LongLabel() string { return t.info().long }

// Color returns the hex colour of the waste stream. REST follows the zone of
// the given area; the other streams ignore it.
func (t Type) Color(area AreaType) string {
	if t == TypeRest {
		return area.Zone().RestColor
	}
	return t.info().color
}

// ParseType maps a wire value to a Type, case-insensitively. Unknown values
// yield TypeNone.
func ParseType(s string) Type {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, info := range typeTable {
		if info.value == s {
			return t
		}
	}
	return TypeNone
}

// IsNormal reports whether t is one of the five primary waste streams.
func IsNormal(t Type) bool {
	switch t {
	case TypeRest, TypeGFT, TypePMD, TypePK, TypeGlas:
		return true
	}
	return false
}

// IsExtra reports whether t falls outside the primary waste streams.
func IsExtra(t Type) bool { return !IsNormal(t) }

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed := ParseType(string(b))
	if parsed == TypeNone && !strings.EqualFold(strings.TrimSpace(string(b)), "none") {
		return fmt.Errorf("unknown waste type %q", b)
	}
	*t = parsed
	return nil
}
