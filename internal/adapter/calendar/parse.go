package calendar

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
)

// Document is the calendar payload served per sector.
type Document struct {
	Sector      string `json:"sector"`
	Collections []Row  `json:"collections"`
}

// Row is one pickup day as published. Types may contain values this service
// does not know.
type Row struct {
	Date  string   `json:"date"`
	Types []string `json:"types"`
}

// dateLayouts lists the accepted row date formats, most common first.
var dateLayouts = []string{
	time.DateOnly,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	time.RFC3339,
}

// ParseStats counts what the parser skipped.
type ParseStats struct {
	Rows         int
	BadDates     int
	UnknownTypes int
	EmptyRows    int
}

// Parse decodes a calendar document into sorted collections. Rows with an
// unreadable date or without any known waste type are skipped, unknown types
// are dropped, and rows sharing a date are merged. Only a document that is
// not valid JSON is an error.
func Parse(r io.Reader) (Document, []domain.Collection, ParseStats, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, nil, ParseStats{}, fmt.Errorf("decode calendar: %w", err)
	}
	cols, stats := Collections(doc.Collections)
	return doc, cols, stats, nil
}

// Collections converts raw rows into sorted, merged collections.
func Collections(rows []Row) ([]domain.Collection, ParseStats) {
	stats := ParseStats{Rows: len(rows)}
	byDay := make(map[time.Time][]domain.Type)
	var days []time.Time

	for _, row := range rows {
		date, ok := parseDate(row.Date)
		if !ok {
			stats.BadDates++
			continue
		}

		var types []domain.Type
		for _, raw := range row.Types {
			t := domain.ParseType(raw)
			if t == domain.TypeNone {
				stats.UnknownTypes++
				continue
			}
			types = append(types, t)
		}
		if len(types) == 0 {
			stats.EmptyRows++
			continue
		}

		if _, seen := byDay[date]; !seen {
			days = append(days, date)
		}
		byDay[date] = append(byDay[date], types...)
	}

	cols := make([]domain.Collection, 0, len(days))
	for _, d := range days {
		c, err := domain.NewCollection(d, byDay[d]...)
		if err != nil {
			continue
		}
		cols = append(cols, c)
	}
	domain.SortCollections(cols)
	return cols, stats
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), true
		}
	}
	return time.Time{}, false
}
