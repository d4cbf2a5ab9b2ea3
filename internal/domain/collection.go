package domain

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrNoTypes is returned when a collection is built without any waste type.
var ErrNoTypes = errors.New("collection has no waste types")

// Collection is a single pickup day and the waste streams collected on it.
type Collection struct {
	Date    time.Time
	Types   []Type
	Holiday string // public holiday falling on Date, if any
}

// NewCollection builds a collection for the calendar day of date. Duplicate
// types are dropped, keeping the first occurrence.
func NewCollection(date time.Time, types ...Type) (Collection, error) {
	if len(types) == 0 {
		return Collection{}, ErrNoTypes
	}

	uniq := make([]Type, 0, len(types))
	for _, t := range types {
		if !slices.Contains(uniq, t) {
			uniq = append(uniq, t)
		}
	}
	return Collection{Date: Day(date), Types: uniq}, nil
}

// Day truncates t to midnight UTC of its calendar day in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// HasType reports whether t is collected.
func (c Collection) HasType(t Type) bool { return slices.Contains(c.Types, t) }

// HasAnyNormalType reports whether at least one primary stream is collected.
func (c Collection) HasAnyNormalType() bool { return slices.ContainsFunc(c.Types, IsNormal) }

// HasAnyExtraType reports whether a non-primary stream is collected.
func (c Collection) HasAnyExtraType() bool { return slices.ContainsFunc(c.Types, IsExtra) }

// IsOn reports whether the collection falls on the calendar day of t.
func (c Collection) IsOn(t time.Time) bool { return Day(t).Equal(Day(c.Date)) }

// TypesString joins the type labels with " - ".
func (c Collection) TypesString(short bool) string {
	labels := make([]string, len(c.Types))
	for i, t := range c.Types {
		if short {
			labels[i] = t.ShortLabel()
		} else {
			labels[i] = t.LongLabel()
		}
	}
	return strings.Join(labels, " - ")
}

func (c Collection) key() string {
	parts := make([]string, 0, len(c.Types)+1)
	parts = append(parts, Day(c.Date).Format(time.DateOnly))
	for _, t := range c.Types {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, "|")
}

// SortCollections orders collections ascending by date. Collections on the
// same day keep their relative order.
func SortCollections(cols []Collection) {
	slices.SortStableFunc(cols, func(a, b Collection) int {
		return Day(a.Date).Compare(Day(b.Date))
	})
}

// Diff reports which collections appear only in next (added) and only in
// prev (removed).
func Diff(prev, next []Collection) (added, removed []Collection) {
	seen := make(map[string]bool, len(prev))
	for _, c := range prev {
		seen[c.key()] = true
	}
	kept := make(map[string]bool, len(next))
	for _, c := range next {
		kept[c.key()] = true
		if !seen[c.key()] {
			added = append(added, c)
		}
	}
	for _, c := range prev {
		if !kept[c.key()] {
			removed = append(removed, c)
		}
	}
	return added, removed
}

// From returns the collections on or after the calendar day of t. cols must
// be sorted.
func From(cols []Collection, t time.Time) []Collection {
	day := Day(t)
	i, _ := slices.BinarySearchFunc(cols, day, func(c Collection, d time.Time) int {
		return Day(c.Date).Compare(d)
	})
	return cols[i:]
}
