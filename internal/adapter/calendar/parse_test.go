package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse_Tolerant(t *testing.T) {
	doc := `{
	  "sector": "L1",
	  "collections": [
	    {"date": "2024-01-22", "types": ["pmd"]},
	    {"date": "2024-01-15", "types": ["rest", "GFT", "kga"]},
	    {"date": "not a date", "types": ["rest"]},
	    {"date": "16/01/2024", "types": ["grofvuil"]},
	    {"date": "17/01/2024", "types": ["pk"]},
	    {"date": "2024-01-15", "types": ["gft", "glas"]},
	    {"types": ["rest"]}
	  ],
	  "generated": "ignored"
	}`

	got, cols, stats, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "L1", got.Sector)

	require.Len(t, cols, 3)
	assert.Equal(t, day(2024, 1, 15), cols[0].Date)
	assert.Equal(t, []domain.Type{domain.TypeRest, domain.TypeGFT, domain.TypeGlas}, cols[0].Types)
	assert.Equal(t, day(2024, 1, 17), cols[1].Date)
	assert.Equal(t, []domain.Type{domain.TypePK}, cols[1].Types)
	assert.Equal(t, day(2024, 1, 22), cols[2].Date)

	assert.Equal(t, ParseStats{Rows: 7, BadDates: 2, UnknownTypes: 2, EmptyRows: 1}, stats)
}

func TestParse_SortedAscending(t *testing.T) {
	doc := `{"collections":[
	  {"date":"2024-03-01","types":["rest"]},
	  {"date":"2024-01-01","types":["rest"]},
	  {"date":"2024-02-01","types":["rest"]}
	]}`
	_, cols, _, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, cols, 3)
	for i := 1; i < len(cols); i++ {
		assert.True(t, cols[i-1].Date.Before(cols[i].Date))
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	_, _, _, err := Parse(strings.NewReader(`<html>maintenance</html>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode calendar")
}

func TestParse_Empty(t *testing.T) {
	_, cols, _, err := Parse(strings.NewReader(`{"sector":"L1","collections":[]}`))
	require.NoError(t, err)
	assert.Empty(t, cols)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-15", day(2024, 1, 15), true},
		{" 15/01/2024 ", day(2024, 1, 15), true},
		{"5/1/2024", day(2024, 1, 5), true},
		{"15-01-2024", day(2024, 1, 15), true},
		{"2024-01-15T23:30:00+01:00", day(2024, 1, 15), true},
		{"2024-13-01", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
