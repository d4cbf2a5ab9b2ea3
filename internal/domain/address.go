package domain

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchLevel ranks how well an Address matches a search query.
type MatchLevel int

const (
	NoMatch MatchLevel = iota
	PartialMatch
	FullMatch
)

func (m MatchLevel) String() string {
	switch m {
	case FullMatch:
		return "full"
	case PartialMatch:
		return "partial"
	default:
		return "none"
	}
}

// Address is a structured street address. Zero values mean "unknown".
type Address struct {
	Street string `json:"street,omitempty"`
	Number int    `json:"number,omitempty"`
	Zip    int    `json:"zip,omitempty"`
	City   string `json:"city,omitempty"`
}

// IsZero reports whether no street is known.
func (a Address) IsZero() bool { return strings.TrimSpace(a.Street) == "" }

// FormattedNumber returns the house number, or "" when unknown.
func (a Address) FormattedNumber() string {
	if a.Number <= 0 {
		return ""
	}
	return strconv.Itoa(a.Number)
}

// Formatted renders "<street> <nr>, <zip> <city>", leaving out unknown parts.
func (a Address) Formatted() string {
	var b strings.Builder
	b.WriteString(a.Street)
	if nr := a.FormattedNumber(); nr != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(nr)
	}

	var locality []string
	if a.Zip > 0 {
		locality = append(locality, strconv.Itoa(a.Zip))
	}
	if a.City != "" {
		locality = append(locality, a.City)
	}
	if len(locality) > 0 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strings.Join(locality, " "))
	}
	return b.String()
}

// Equal compares two addresses case- and accent-insensitively.
func (a Address) Equal(o Address) bool {
	return a.Number == o.Number &&
		a.Zip == o.Zip &&
		Normalize(a.Street) == Normalize(o.Street) &&
		Normalize(a.City) == Normalize(o.City)
}

// Matches ranks a against a free-text query. The query fully matches when it
// is (or contains) the formatted address; it partially matches when it is a
// substring of the street, city, zip code or formatted address, or when each
// of its words is.
func (a Address) Matches(query string) MatchLevel {
	q := Normalize(query)
	if q == "" {
		return NoMatch
	}

	full := Normalize(a.Formatted())
	if full != "" && strings.Contains(q, full) {
		return FullMatch
	}

	fields := []string{Normalize(a.Street), Normalize(a.City), full}
	if a.Zip > 0 {
		fields = append(fields, strconv.Itoa(a.Zip))
	}
	if containsAny(fields, q) {
		return PartialMatch
	}

	words := strings.FieldsFunc(q, func(r rune) bool { return r == ' ' || r == ',' })
	if len(words) == 0 {
		return NoMatch
	}
	for _, w := range words {
		if !containsAny(fields, w) {
			return NoMatch
		}
	}
	return PartialMatch
}

// FilterAddresses returns the addresses matching query, full matches first,
// each tier in input order. An empty query returns the input unchanged.
func FilterAddresses(addresses []Address, query string) []Address {
	if strings.TrimSpace(query) == "" {
		return addresses
	}

	var full, partial []Address
	for _, a := range addresses {
		switch a.Matches(query) {
		case FullMatch:
			full = append(full, a)
		case PartialMatch:
			partial = append(partial, a)
		}
	}
	return append(full, partial...)
}

func containsAny(fields []string, needle string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(f, needle) {
			return true
		}
	}
	return false
}

// Normalize lower-cases s, strips diacritics ("ö" becomes "o") and collapses
// whitespace.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// Street is an entry of the street reference list. From and To bound the
// house numbers covered by the entry; zero means unbounded.
type Street struct {
	Name       string `json:"street"`
	Zip        int    `json:"zip,omitempty"`
	City       string `json:"city,omitempty"`
	SectorCode string `json:"sector"`
	From       int    `json:"from,omitempty"`
	To         int    `json:"to,omitempty"`
}

// Covers reports whether the reference entry applies to a.
func (s Street) Covers(a Address) bool {
	if Normalize(s.Name) != Normalize(a.Street) {
		return false
	}
	if s.Zip > 0 && a.Zip > 0 && s.Zip != a.Zip {
		return false
	}
	if a.Number > 0 {
		if s.From > 0 && a.Number < s.From {
			return false
		}
		if s.To > 0 && a.Number > s.To {
			return false
		}
	}
	return true
}

// SectorFor looks up the sector of a in the street reference list. The first
// covering entry with a valid sector code wins.
func SectorFor(streets []Street, a Address) (Sector, bool) {
	for _, s := range streets {
		if !s.Covers(a) {
			continue
		}
		if sector := ParseSector(s.SectorCode); sector.IsSet() {
			return sector, true
		}
	}
	return NoSector, false
}

// IsApartment reports whether a appears in the apartment reference list.
func IsApartment(apartments []Address, a Address) bool {
	for _, ap := range apartments {
		if Normalize(ap.Street) != Normalize(a.Street) || ap.Number != a.Number {
			continue
		}
		if ap.Zip > 0 && a.Zip > 0 && ap.Zip != a.Zip {
			continue
		}
		return true
	}
	return false
}
