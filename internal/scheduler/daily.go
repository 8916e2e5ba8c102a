package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-advisor/internal/store"
)

// DateLayout is the persisted day stamp format.
const DateLayout = "2006-01-02"

// State is the persisted delivery stamp.
type State struct {
	LastSentDate string `json:"lastSentDateStamp"`
}

// Clock is a local wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses HH:MM.
func ParseClock(s string) (Clock, error) {
	h, m, err := config.ParseClock(s)
	if err != nil {
		return Clock{}, err
	}
	return Clock{Hour: h, Minute: m}, nil
}

// String formats c as HH:MM.
func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// on returns c on the local calendar day of t. time.Date normalises
// non-existent or repeated wall times across DST changes.
func (c Clock) on(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// ShouldSend reports whether the daily delivery is due at now: the local
// day differs from lastSent and the scheduled time has been reached.
func ShouldSend(now time.Time, loc *time.Location, at Clock, lastSent string) bool {
	local := now.In(loc)
	if local.Format(DateLayout) == lastSent {
		return false
	}
	return !local.Before(at.on(local, loc))
}

// NextFire returns the next occurrence of at strictly after now, in loc.
// It uses calendar arithmetic, not a fixed 24 h period, so it stays on the
// same wall-clock time across DST transitions.
func NextFire(now time.Time, loc *time.Location, at Clock) time.Time {
	local := now.In(loc)
	next := at.on(local, loc)
	if next.After(local) {
		return next
	}
	y, m, d := local.Date()
	return time.Date(y, m, d+1, at.Hour, at.Minute, 0, 0, loc)
}

// Daily delivers a report at most once per local calendar day.
type Daily struct {
	at     Clock
	loc    *time.Location
	store  store.Store
	send   func(ctx context.Context) error
	logger Logger
	now    func() time.Time
}

// NewDaily creates a Daily scheduler. send performs the delivery.
func NewDaily(at Clock, loc *time.Location, st store.Store, send func(ctx context.Context) error, logger Logger) *Daily {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Daily{at: at, loc: loc, store: st, send: send, logger: logger, now: time.Now}
}

// SetClock overrides the time source.
func (d *Daily) SetClock(now func() time.Time) { d.now = now }

// Tick sends the report if it is due and records today's stamp. The stamp
// is only written after a successful send.
func (d *Daily) Tick(ctx context.Context) (bool, error) {
	var st State
	if _, err := d.store.Load(ctx, store.KeyScheduleState, &st); err != nil {
		return false, fmt.Errorf("loading schedule state: %w", err)
	}

	now := d.now()
	if !ShouldSend(now, d.loc, d.at, st.LastSentDate) {
		return false, nil
	}

	if err := d.send(ctx); err != nil {
		return false, fmt.Errorf("sending daily report: %w", err)
	}

	st.LastSentDate = now.In(d.loc).Format(DateLayout)
	if err := d.store.Save(ctx, store.KeyScheduleState, st); err != nil {
		return true, fmt.Errorf("saving schedule state: %w", err)
	}
	d.logger.Info("daily report sent", "date", st.LastSentDate)
	return true, nil
}

// Next returns the next fire time after the current clock.
func (d *Daily) Next() time.Time {
	return NextFire(d.now(), d.loc, d.at)
}

// Run checks once immediately (catching up a missed delivery) and then at
// every NextFire until ctx ends. The timer is re-armed after each tick.
func (d *Daily) Run(ctx context.Context) {
	d.tick(ctx)

	for {
		next := d.Next()
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.tick(ctx)
		}
	}
}

func (d *Daily) tick(ctx context.Context) {
	if _, err := d.Tick(ctx); err != nil {
		d.logger.Error("daily report failed", "error", err)
	}
}

// Periodic calls fn every interval until ctx ends.
func Periodic(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
