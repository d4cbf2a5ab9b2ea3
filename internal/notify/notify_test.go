package notify_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/garbagecal/internal/domain"
	"github.com/couchcryptid/garbagecal/internal/notify"
	"github.com/couchcryptid/garbagecal/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 13 November 2024.
var wednesday = time.Date(2024, 11, 13, 10, 0, 0, 0, time.UTC)

func day(d int) time.Time { return time.Date(2024, 11, d, 0, 0, 0, 0, time.UTC) }

func pickup(t *testing.T, date time.Time, types ...domain.Type) domain.Collection {
	t.Helper()
	c, err := domain.NewCollection(date, types...)
	require.NoError(t, err)
	return c
}

func TestFormat(t *testing.T) {
	msg := notify.Format(pickup(t, day(14), domain.TypeRest, domain.TypeGFT), wednesday)

	assert.Equal(t, "Put out the trash", msg.Title)
	assert.Equal(t, "(Thu) Rest - GFT, tomorrow", msg.Body)
	assert.Equal(t, "tomorrow", msg.When)
	assert.Equal(t, "2024-11-14", msg.Date)
	assert.Equal(t, []string{"rest", "gft"}, msg.Types)
	assert.Equal(t, wednesday, msg.SentAt)
	assert.Empty(t, msg.ID)
}

func TestRelativeDay(t *testing.T) {
	tests := []struct {
		date time.Time
		want string
	}{
		{day(13), "today"},
		{wednesday.Add(13 * time.Hour), "today"},
		{day(14), "tomorrow"},
		{day(12), "yesterday"},
		{day(10), "3 days ago"},
		{day(15), "this week Friday"},
		{day(20), "this week Wednesday"},
		{day(21), "next week Thursday"},
		{day(27), "next week Wednesday"},
		{day(28), "2 weeks from now"},
		{time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC), "2 months from now"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, notify.RelativeDay(tt.date, wednesday))
		})
	}
}

// --- reminder ---

type fakeCalendar struct {
	cols []domain.Collection
}

func (f *fakeCalendar) Upcoming(now time.Time) []domain.Collection {
	return domain.From(f.cols, now.AddDate(0, 0, -1))
}

func (f *fakeCalendar) Sector() string { return "L1" }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newReminder(t *testing.T, at time.Time, n notify.Notifier) (*notify.Reminder, *clockwork.FakeClock, *observability.Metrics) {
	t.Helper()
	return newReminderFor(t, at, n, []domain.Collection{
		pickup(t, day(14), domain.TypeRest, domain.TypeGFT),
		pickup(t, day(21), domain.TypePMD),
	})
}

func newReminderFor(t *testing.T, at time.Time, n notify.Notifier, cols []domain.Collection) (*notify.Reminder, *clockwork.FakeClock, *observability.Metrics) {
	t.Helper()
	cal := &fakeCalendar{cols: cols}
	clock := clockwork.NewFakeClockAt(at)
	metrics := observability.NewMetricsForTesting()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return notify.NewReminder(cal, n, "test", 19, 1, clock, logger, metrics), clock, metrics
}

func TestReminder_SendsOnceAtReminderHour(t *testing.T) {
	n := &recordingNotifier{}
	r, clock, metrics := newReminder(t, wednesday, n)
	ctx := context.Background()

	sent, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, sent, "before the reminder hour")

	clock.Advance(9 * time.Hour) // 19:00
	sent, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, sent)

	clock.Advance(time.Hour)
	sent, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, sent, "already reminded")

	require.Len(t, n.sent, 1)
	assert.NotEmpty(t, n.sent[0].ID)
	assert.Equal(t, "L1", n.sent[0].Sector)
	assert.Equal(t, "(Thu) Rest - GFT, tomorrow", n.sent[0].Body)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("test", "success")))
}

func TestReminder_CatchesUpOnPickupDay(t *testing.T) {
	n := &recordingNotifier{}
	r, _, _ := newReminder(t, time.Date(2024, 11, 14, 6, 0, 0, 0, time.UTC), n)

	sent, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "today", n.sent[0].When)
}

func TestReminder_ConsecutiveDays(t *testing.T) {
	n := &recordingNotifier{}
	r, clock, _ := newReminderFor(t, time.Date(2024, 11, 13, 19, 0, 0, 0, time.UTC), n, []domain.Collection{
		pickup(t, day(14), domain.TypeRest),
		pickup(t, day(15), domain.TypePMD),
	})
	ctx := context.Background()

	sent, err := r.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, sent, "Thursday pickup")

	clock.Advance(15 * time.Hour) // Thu 10:00
	sent, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, sent, "Friday pickup not due before the reminder hour")

	clock.Advance(9 * time.Hour) // Thu 19:00
	sent, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, sent, "Friday pickup")

	clock.Advance(4*time.Hour + 59*time.Minute) // Thu 23:59
	sent, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, sent)

	clock.Advance(2 * time.Minute) // Fri 00:01
	sent, err = r.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, sent, "Friday pickup already reminded")

	require.Len(t, n.sent, 2)
	assert.Equal(t, "2024-11-14", n.sent[0].Date)
	assert.Equal(t, "2024-11-15", n.sent[1].Date)
	assert.Equal(t, "tomorrow", n.sent[1].When)
}

func TestReminder_NothingDue(t *testing.T) {
	n := &recordingNotifier{}
	r, _, _ := newReminder(t, time.Date(2024, 11, 16, 20, 0, 0, 0, time.UTC), n)

	sent, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, n.sent)
}

func TestReminder_FailureIsRetried(t *testing.T) {
	n := &recordingNotifier{err: errors.New("broker unreachable")}
	r, _, metrics := newReminder(t, time.Date(2024, 11, 13, 20, 0, 0, 0, time.UTC), n)

	_, err := r.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("test", "error")))

	n.err = nil
	sent, err := r.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestReminder_RunStopsOnCancel(t *testing.T) {
	n := &recordingNotifier{}
	r, clock, _ := newReminder(t, time.Date(2024, 11, 13, 18, 59, 0, 0, time.UTC), n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Zero(t, n.count())

	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return n.count() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
