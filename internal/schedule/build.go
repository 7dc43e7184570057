// Package schedule joins registered courses against the catalog and turns
// each match into a weekly recurring calendar event.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"regcal/internal/meeting"
	"regcal/internal/model"
)

const (
	dateLayout = "2006-01-02"

	// untilHour is the UTC hour attached to a section's end date in UNTIL.
	untilHour = 4

	// AlarmBefore is how long before each class the reminder fires.
	AlarmBefore = 15 * time.Minute

	uidDomain = "regcal"
)

// uidNamespace scopes the name-based event UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(uidDomain))

// Catalog is the lookup side of the join. *catalog.Index satisfies it.
type Catalog interface {
	Lookup(section, offeringPeriod string) (model.CourseSection, bool)
}

// Options tunes event construction.
type Options struct {
	// Location is the wall-clock zone for event start/end. Nil means time.Local.
	Location *time.Location
}

// DateError reports an unparseable start or end date on a matched section.
type DateError struct {
	Section string
	Field   string
	Value   string
	Err     error
}

func (e *DateError) Error() string {
	return fmt.Sprintf("section %q: invalid %s %q", e.Section, e.Field, e.Value)
}

func (e *DateError) Unwrap() error { return e.Err }

// Build returns one event per row that has a catalog match, in row order.
//
// Rows without a match are skipped silently. A matched section whose
// meeting pattern or dates cannot be parsed aborts the whole build: the
// returned error is a *meeting.ParseError or *DateError and no events are
// returned.
func Build(rows []model.RegisteredRow, cat Catalog, opts Options) ([]model.Event, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	events := make([]model.Event, 0, len(rows))
	seen := make(map[string]int)
	for _, row := range rows {
		section, ok := cat.Lookup(row.SectionDefinition, row.AcademicPeriod)
		if !ok {
			continue
		}

		ev, err := buildEvent(row, section, loc)
		if err != nil {
			return nil, err
		}

		// A section registered twice still yields one event per row, each
		// with its own UID.
		key := section.Section + "\x00" + section.OfferingPeriod
		seen[key]++
		if n := seen[key]; n > 1 {
			ev.UID = eventUID(section, n)
		}
		events = append(events, ev)
	}
	return events, nil
}

func buildEvent(row model.RegisteredRow, section model.CourseSection, loc *time.Location) (model.Event, error) {
	pattern, err := meeting.Parse(section.MeetingPattern)
	if err != nil {
		return model.Event{}, err
	}

	startDate, err := time.ParseInLocation(dateLayout, section.StartDate, loc)
	if err != nil {
		return model.Event{}, &DateError{Section: section.Section, Field: "start date", Value: section.StartDate, Err: err}
	}
	endDate, err := time.Parse(dateLayout, section.EndDate)
	if err != nil {
		return model.Event{}, &DateError{Section: section.Section, Field: "end date", Value: section.EndDate, Err: err}
	}

	// Both boundaries sit on the start date: they describe the first
	// occurrence, the RRULE carries the rest.
	start := atClock(startDate, pattern.Start, loc)
	end := atClock(startDate, pattern.End, loc)

	title := section.Title
	if title == "" {
		title = section.Section
	}

	return model.Event{
		UID:         eventUID(section, 1),
		Title:       title,
		Description: describe(row),
		Location:    section.Location,
		Categories:  section.SubjectTags(),
		Start:       start,
		End:         end,
		Recurrence: model.Recurrence{
			Freq:     model.FrequencyWeekly,
			Interval: 1,
			ByDay:    pattern.Codes(),
			Until:    time.Date(endDate.Year(), endDate.Month(), endDate.Day(), untilHour, 0, 0, 0, time.UTC),
		},
		Status:       model.StatusConfirmed,
		Transparency: model.TransparencyOpaque,
		Alarm: model.Alarm{
			Before:      AlarmBefore,
			Description: title,
		},
	}, nil
}

func atClock(day time.Time, c meeting.Clock, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// eventUID is stable for a given section key, so re-importing a regenerated
// calendar updates events instead of duplicating them. n > 1 names the n-th
// row for the same section.
func eventUID(section model.CourseSection, n int) string {
	name := section.Section + "\x00" + section.OfferingPeriod
	if n > 1 {
		name += "\x00" + strconv.Itoa(n)
	}
	return uuid.NewSHA1(uidNamespace, []byte(name)).String() + "@" + uidDomain
}

func describe(row model.RegisteredRow) string {
	var lines []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Format", row.InstructionalFormat)
	add("Instructors", row.Instructors)
	add("Delivery Mode", row.DeliveryMode)
	return strings.Join(lines, "\n")
}
