package domain

import (
	"time"

	cal "github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/be"
)

// HolidayCalendar annotates collection days with Belgian public holidays.
// Collections that fall on one are usually moved, so they are flagged when a
// calendar is parsed.
type HolidayCalendar struct {
	cal *cal.BusinessCalendar
}

// NewHolidayCalendar returns a calendar loaded with the Belgian public holidays.
func NewHolidayCalendar() *HolidayCalendar {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(be.Holidays...)
	return &HolidayCalendar{cal: c}
}

// HolidayOn returns the name of the holiday on the calendar day of t.
func (h *HolidayCalendar) HolidayOn(t time.Time) (string, bool) {
	if h == nil {
		return "", false
	}
	actual, _, hol := h.cal.IsHoliday(Day(t))
	if !actual || hol == nil {
		return "", false
	}
	return hol.Name, true
}

// Annotate sets the Holiday field of every collection in place.
func (h *HolidayCalendar) Annotate(cols []Collection) {
	for i := range cols {
		cols[i].Holiday, _ = h.HolidayOn(cols[i].Date)
	}
}
