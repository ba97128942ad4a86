// Package cron evaluates 5-field cron schedules in a configuration's
// timezone. Thin wrapper over robfig/cron so the rest of the engine deals in
// concrete instants, never in cron syntax.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type Evaluator struct {
	parser cron.Parser
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Parse validates expression and timezone together. Used at configuration
// time; an unknown zone or bad expression never reaches the scheduler.
func (e *Evaluator) Parse(expression, timezone string) (Schedule, error) {
	sched, err := e.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}

	if timezone == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	return &schedule{sched: sched, loc: loc}, nil
}

// NextRun returns the first instant strictly after `after` at which the
// schedule fires. Deterministic for the same inputs. DST policy: a nonexistent
// local time (spring forward) resolves to the first valid instant after the
// transition, a repeated local time (fall back) to its first occurrence; both
// are pinned by tests.
func (e *Evaluator) NextRun(expression, timezone string, after time.Time) (time.Time, error) {
	sched, err := e.Parse(expression, timezone)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

// IsDue reports whether the schedule has fired between lastRun and now.
// A zero lastRun means the configuration has never run; it is due as soon as
// the first fire time at or before now has passed.
func (e *Evaluator) IsDue(expression, timezone string, lastRun, now time.Time) (bool, error) {
	sched, err := e.Parse(expression, timezone)
	if err != nil {
		return false, err
	}
	if lastRun.IsZero() {
		// Look back one schedule period: due if a fire time in the last 24h
		// window has already passed.
		lastRun = now.Add(-24 * time.Hour)
	}
	next := sched.Next(lastRun)
	return !next.After(now), nil
}

type Schedule interface {
	Next(after time.Time) time.Time
}

type schedule struct {
	sched cron.Schedule
	loc   *time.Location
}

// Next returns the first fire instant strictly after `after`. robfig/cron
// silently drops a nominal fire time that lands inside a spring-forward gap:
// a daily 02:30 job would miss the whole transition day. When the nominal
// time falls in the gap, Next returns the first valid instant after the
// transition instead.
func (s *schedule) Next(after time.Time) time.Time {
	next := s.sched.Next(after.In(s.loc))

	trans, skipped, ok := nextGap(s.loc, after, next)
	if !ok {
		return next
	}

	// Re-evaluate on a gap-free timeline: hold the pre-transition offset
	// fixed so every local time exists. A nominal fire inside the skipped
	// wall-clock window maps to an instant in [trans, trans+skipped).
	_, preOff := trans.Add(-time.Second).In(s.loc).Zone()
	nominal := s.sched.Next(after.In(time.FixedZone("", preOff)))
	if !nominal.Before(trans) && nominal.Before(trans.Add(skipped)) {
		return trans.In(s.loc)
	}
	return next
}

// nextGap finds the first spring-forward transition in (from, to], returning
// the transition instant and the width of the skipped wall-clock window.
func nextGap(loc *time.Location, from, to time.Time) (time.Time, time.Duration, bool) {
	_, prevOff := from.In(loc).Zone()
	prev := from
	for t := from; t.Before(to); {
		t = t.Add(time.Hour)
		if t.After(to) {
			t = to
		}
		_, off := t.In(loc).Zone()
		if off > prevOff {
			trans := transitionInstant(loc, prev, t)
			return trans, time.Duration(off-prevOff) * time.Second, true
		}
		prev, prevOff = t, off
	}
	return time.Time{}, 0, false
}

// transitionInstant narrows [lo, hi] (old offset at lo, new offset at hi)
// down to the transition instant. Real transitions sit on whole minutes, so
// a one-second search plus rounding recovers the exact boundary.
func transitionInstant(loc *time.Location, lo, hi time.Time) time.Time {
	_, loOff := lo.In(loc).Zone()
	for hi.Sub(lo) > time.Second {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, off := mid.In(loc).Zone(); off == loOff {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi.Round(time.Minute)
}
