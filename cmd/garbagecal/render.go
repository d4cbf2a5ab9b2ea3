package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/notify"
	"github.com/dustin/go-humanize"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/term"
)

const (
	// Pickups this many days out are drawn fully faded.
	fadeHorizon = 28
	maxFade     = 0.6
	fadeTarget  = "#808080"
)

var (
	dateStyle    = lipgloss.NewStyle().Bold(true)
	whenStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	holidayStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("202")).Italic(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
)

// renderer writes calendars either styled for a terminal or as plain text.
type renderer struct {
	w      io.Writer
	styled bool
	area   domain.AreaType
	now    time.Time
}

func newRenderer(w io.Writer, area domain.AreaType, now time.Time) *renderer {
	return &renderer{w: w, styled: isTerminal(w) && !flags.NoColor, area: area, now: now}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (r *renderer) header(sector string, updated time.Time, ok bool) {
	line := "Sector " + sector
	if ok {
		line += ", updated " + humanize.Time(updated)
	}
	if r.styled {
		line = headerStyle.Render(line)
	}
	fmt.Fprintln(r.w, line)
}

func (r *renderer) collections(cols []domain.Collection) {
	for _, c := range cols {
		r.collection(c)
	}
}

func (r *renderer) collection(c domain.Collection) {
	date := c.Date.Format("Mon 02 Jan 2006")
	when := notify.RelativeDay(c.Date, r.now)

	labels := make([]string, len(c.Types))
	for i, t := range c.Types {
		labels[i] = r.typeLabel(t, domain.DaysBetween(r.now, c.Date))
	}
	types := strings.Join(labels, " - ")

	var holiday string
	if c.Holiday != "" {
		holiday = "(" + c.Holiday + ")"
	}

	if !r.styled {
		fmt.Fprintln(r.w, strings.TrimRight(fmt.Sprintf("%s  %-20s %s %s", date, when, types, holiday), " "))
		return
	}
	line := fmt.Sprintf("%s  %s %s", dateStyle.Render(date), whenStyle.Render(fmt.Sprintf("%-20s", when)), types)
	if holiday != "" {
		line += " " + holidayStyle.Render(holiday)
	}
	fmt.Fprintln(r.w, line)
}

func (r *renderer) typeLabel(t domain.Type, days int) string {
	if !r.styled {
		return t.ShortLabel()
	}
	color := fade(t.Color(r.area), days)
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Render("● " + t.ShortLabel())
}

// fade blends hex toward grey the further away the pickup is. Unparseable
// colours are returned unchanged.
func fade(hex string, days int) string {
	if days <= 0 {
		return hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return hex
	}
	grey, _ := colorful.Hex(fadeTarget)
	amount := maxFade * float64(min(days, fadeHorizon)) / fadeHorizon
	return c.BlendLuv(grey, amount).Clamped().Hex()
}
