package schedule

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/teambition/rrule-go"

	appLog "regcal/internal/log"
	"regcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd optionally clip occurrences (inclusive). A zero
	// value leaves that side open; UNTIL still bounds every event.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps each event's expansion. If zero,
	// defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded occurrences and the UIDs of events that
// hit the cap.
type ExpandResult struct {
	Occurrences     []model.Occurrence
	TruncatedEvents []string
}

// Expand turns each event's first occurrence + RRULE into concrete
// occurrences, sorted by start time. Every occurrence keeps the duration of
// the first one.
func Expand(events []model.Event, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if !cfg.RangeStart.IsZero() && !cfg.RangeEnd.IsZero() && cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	all := make([]model.Occurrence, 0)
	for _, ev := range events {
		occ, hitCap, err := expandEvent(ev, cfg)
		if err != nil {
			return ExpandResult{}, err
		}
		if hitCap {
			result.TruncatedEvents = append(result.TruncatedEvents, ev.UID)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", ev.UID,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
		all = append(all, occ...)
	}

	slices.SortStableFunc(all, func(a, b model.Occurrence) int {
		return a.Start.Compare(b.Start)
	})
	result.Occurrences = all
	return result, nil
}

func expandEvent(ev model.Event, cfg ExpandConfig) ([]model.Occurrence, bool, error) {
	r, err := rrule.StrToRRule(ev.Recurrence.String())
	if err != nil {
		return nil, false, fmt.Errorf("expand %s: %w", ev.UID, err)
	}

	// DTSTART is itself an occurrence even when its weekday is not in BYDAY.
	set := &rrule.Set{}
	set.RRule(r)
	set.DTStart(ev.Start)
	set.RDate(ev.Start)

	dur := ev.End.Sub(ev.Start)
	out := make([]model.Occurrence, 0)

	next := set.Iterator()
	for {
		start, ok := next()
		if !ok {
			return out, false, nil
		}
		if !cfg.RangeEnd.IsZero() && start.After(cfg.RangeEnd) {
			return out, false, nil
		}
		if !cfg.RangeStart.IsZero() && start.Add(dur).Before(cfg.RangeStart) {
			continue
		}
		if len(out) == cfg.MaxOccurrencesPerEvent {
			return out, true, nil
		}
		out = append(out, model.Occurrence{
			UID:      ev.UID,
			Title:    ev.Title,
			Location: ev.Location,
			Start:    start,
			End:      start.Add(dur),
		})
	}
}
