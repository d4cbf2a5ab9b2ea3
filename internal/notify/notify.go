// Package notify builds pickup reminders and sends them when a collection is
// near.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/dustin/go-humanize"
)

// Title is the headline of every pickup reminder.
const Title = "Put out the trash"

// Message is a pickup reminder.
type Message struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	When   string    `json:"when"`
	Date   string    `json:"date"`
	Types  []string  `json:"types"`
	Sector string    `json:"sector,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Format builds the reminder for c as seen at now. The body reads
// "(<short weekday>) <short type> - <short type>, <relative day>".
func Format(c domain.Collection, now time.Time) Message {
	dto := c.ToDTO()
	when := RelativeDay(c.Date, now)
	return Message{
		Title:  Title,
		Body:   fmt.Sprintf("(%s) %s, %s", shortWeekday(c.Date), c.TypesString(true), when),
		When:   when,
		Date:   dto.Date,
		Types:  dto.Types,
		SentAt: now,
	}
}

// RelativeDay phrases the calendar day of date relative to now: "today",
// "tomorrow", "this week Friday" within a week, "next week Friday" within
// two weeks, and a coarse distance beyond that.
func RelativeDay(date, now time.Time) string {
	days := domain.DaysBetween(now, date)
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days == -1:
		return "yesterday"
	case days > 1 && days < 8:
		return "this week " + date.Weekday().String()
	case days >= 8 && days < 15:
		return "next week " + date.Weekday().String()
	default:
		return humanize.CustomRelTime(domain.Day(now), domain.Day(date), "from now", "ago", dayMagnitudes)
	}
}

func shortWeekday(t time.Time) string { return t.Weekday().String()[:3] }

// Day-granular magnitudes; anything shorter is phrased by RelativeDay itself.
var dayMagnitudes = []humanize.RelTimeMagnitude{
	{D: humanize.Week, Format: "%d days %s", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "1 week %s", DivBy: 1},
	{D: humanize.Month, Format: "%d weeks %s", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "1 month %s", DivBy: 1},
	{D: humanize.Year, Format: "%d months %s", DivBy: humanize.Month},
	{D: 18 * humanize.Month, Format: "1 year %s", DivBy: 1},
	{D: humanize.LongTime, Format: "%d years %s", DivBy: humanize.Year},
	{D: math.MaxInt64, Format: "a long while %s", DivBy: 1},
}

// LogNotifier writes reminders to the log. It is used when no broker is
// configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Info(msg.Title, "id", msg.ID, "body", msg.Body, "date", msg.Date)
	return nil
}
