package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const tickInterval = time.Minute

// Calendar yields the cached collections from around now onwards.
type Calendar interface {
	Upcoming(now time.Time) []domain.Collection
	Sector() string
}

// Reminder sends one reminder per collection, starting at hour on the day
// that is leadDays before the pickup.
type Reminder struct {
	calendar Calendar
	notifier Notifier
	channel  string
	hour     int
	leadDays int
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu   sync.Mutex
	sent map[time.Time]bool // pickup days already reminded
}

// NewReminder creates a Reminder. channel labels the notifier in metrics.
func NewReminder(calendar Calendar, notifier Notifier, channel string, hour, leadDays int,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Reminder {
	return &Reminder{
		calendar: calendar,
		notifier: notifier,
		channel:  channel,
		hour:     hour,
		leadDays: leadDays,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		sent:     make(map[time.Time]bool),
	}
}

// Tick sends the reminder for the earliest collection that is due and was
// not reminded yet. It reports whether a reminder went out.
func (r *Reminder) Tick(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.forget(now)

	for _, c := range r.calendar.Upcoming(now) {
		if r.sent[domain.Day(c.Date)] || !r.due(c, now) {
			continue
		}
		return true, r.send(ctx, c, now)
	}
	return false, nil
}

func (r *Reminder) send(ctx context.Context, c domain.Collection, now time.Time) error {
	msg := Format(c, now)
	msg.ID = uuid.NewString()
	msg.Sector = r.calendar.Sector()
	if err := r.notifier.Notify(ctx, msg); err != nil {
		r.metrics.NotificationsSent.WithLabelValues(r.channel, "error").Inc()
		return fmt.Errorf("send reminder: %w", err)
	}

	r.sent[domain.Day(c.Date)] = true
	r.metrics.NotificationsSent.WithLabelValues(r.channel, "success").Inc()
	r.logger.Info("reminder sent", "id", msg.ID, "date", msg.Date, "types", msg.Types, "channel", r.channel)
	return nil
}

// forget drops pickup days that are over.
func (r *Reminder) forget(now time.Time) {
	today := domain.Day(now)
	for d := range r.sent {
		if d.Before(today) {
			delete(r.sent, d)
		}
	}
}

func (r *Reminder) due(c domain.Collection, now time.Time) bool {
	days := domain.DaysBetween(now, c.Date)
	switch {
	case days < 0 || days > r.leadDays:
		return false
	case days == r.leadDays:
		return now.Hour() >= r.hour
	default:
		return true
	}
}

// Run ticks every minute until the context is cancelled. Send failures are
// logged and retried on the next tick.
func (r *Reminder) Run(ctx context.Context) error {
	r.logger.Info("reminder started", "hour", r.hour, "lead_days", r.leadDays, "channel", r.channel)
	ticker := r.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("reminder failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("reminder stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
		}
	}
}
