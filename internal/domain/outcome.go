package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRefreshInFlight is returned when a refresh is requested while
	// another one is still running. The request is dropped.
	ErrRefreshInFlight = errors.New("refresh already in flight")
	// ErrNoAddress means no address has been resolved yet.
	ErrNoAddress = errors.New("no address set")
	// ErrApartment means the address is an apartment block without its own calendar.
	ErrApartment = errors.New("address is an apartment without a collection calendar")
	// ErrNoSector means the address could not be placed in any sector.
	ErrNoSector = errors.New("no sector found for address")
)

// ResolveOutcome classifies the result of an address lookup.
type ResolveOutcome int

const (
	Resolved ResolveOutcome = iota
	NotFound
	Ambiguous
	ConnectionFailed
)

func (o ResolveOutcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case NotFound:
		return "not_found"
	case Ambiguous:
		return "ambiguous"
	case ConnectionFailed:
		return "connection_failed"
	default:
		return fmt.Sprintf("ResolveOutcome(%d)", int(o))
	}
}

// Resolution is the outcome of resolving a free-text address. Candidates
// holds the single committed address when Resolved and every in-locality
// match when Ambiguous.
type Resolution struct {
	Outcome    ResolveOutcome
	Candidates []Address
	Err        error
}

// Address returns the resolved address, if any.
func (r Resolution) Address() (Address, bool) {
	if r.Outcome != Resolved || len(r.Candidates) != 1 {
		return Address{}, false
	}
	return r.Candidates[0], true
}

// ScrapeOutcome classifies the result of a calendar fetch.
type ScrapeOutcome int

const (
	Successful ScrapeOutcome = iota
	EmptyResponse
	ConnectionFail
	NoInternetConnection
	UnknownError
)

func (o ScrapeOutcome) String() string {
	switch o {
	case Successful:
		return "successful"
	case EmptyResponse:
		return "empty_response"
	case ConnectionFail:
		return "connection_fail"
	case NoInternetConnection:
		return "no_internet_connection"
	case UnknownError:
		return "unknown_error"
	default:
		return fmt.Sprintf("ScrapeOutcome(%d)", int(o))
	}
}

// ScrapeResult is the typed result of fetching one sector calendar.
type ScrapeResult struct {
	Outcome     ScrapeOutcome
	Sector      Sector
	Collections []Collection
	Err         error
}

// ScrapeError carries a non-successful scrape outcome through error returns.
type ScrapeError struct {
	Outcome ScrapeOutcome
	Err     error
}

func (e *ScrapeError) Error() string {
	if e.Err == nil {
		return e.Outcome.String()
	}
	return fmt.Sprintf("%s: %v", e.Outcome, e.Err)
}

func (e *ScrapeError) Unwrap() error { return e.Err }

// Error converts a non-successful result into a *ScrapeError.
func (r ScrapeResult) Error() error {
	if r.Outcome == Successful {
		return nil
	}
	return &ScrapeError{Outcome: r.Outcome, Err: r.Err}
}

// RefreshReport summarises a completed refresh.
type RefreshReport struct {
	Sector      Sector
	Collections int
	Added       []Collection
	Removed     []Collection
	Skipped     bool // cache was fresh, nothing fetched
}

// CalendarUpdate is published when a refresh changes the stored calendar.
type CalendarUpdate struct {
	ID          string          `json:"id"`
	Sector      string          `json:"sector"`
	Area        string          `json:"area"`
	Address     string          `json:"address"`
	Added       []CollectionDTO `json:"added"`
	Removed     []CollectionDTO `json:"removed"`
	Total       int             `json:"total"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// CollectionDTO is the wire form of a Collection.
type CollectionDTO struct {
	Date    string   `json:"date"`
	Types   []string `json:"types"`
	Holiday string   `json:"holiday,omitempty"`
}

// ToDTO converts c into its wire form.
func (c Collection) ToDTO() CollectionDTO {
	types := make([]string, len(c.Types))
	for i, t := range c.Types {
		types[i] = t.String()
	}
	return CollectionDTO{
		Date:    Day(c.Date).Format(time.DateOnly),
		Types:   types,
		Holiday: c.Holiday,
	}
}

// ToDTOs converts a slice of collections. A nil input yields an empty slice.
func ToDTOs(cols []Collection) []CollectionDTO {
	out := make([]CollectionDTO, len(cols))
	for i, c := range cols {
		out[i] = c.ToDTO()
	}
	return out
}
