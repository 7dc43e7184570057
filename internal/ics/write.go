// Package ics serializes recurring course events into an iCalendar file.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"regcal/internal/model"
)

const (
	// Filename is the name offered for download.
	Filename = "courses.ics"
	// ContentType is the MIME type of the calendar file.
	ContentType = "text/calendar"

	defaultProductID = "-//regcal//Course Registration Calendar//EN"
	defaultName      = "Courses"

	// floatingLayout renders local wall-clock date-times without a zone.
	floatingLayout = "20060102T150405"
)

// WriteOptions controls calendar-level properties.
type WriteOptions struct {
	// ProductID is written as PRODID. Empty uses a regcal default.
	ProductID string
	// Name is written as X-WR-CALNAME. Empty uses "Courses".
	Name string
	// Stamp is written as DTSTAMP on every event. The zero value means
	// time.Now; pass a fixed time for reproducible output.
	Stamp time.Time
}

// Write serializes events as one VCALENDAR with a VEVENT per event, in
// the given order. Lines end in CRLF.
func Write(w io.Writer, events []model.Event, opts WriteOptions) error {
	if w == nil {
		return errors.New("ics: nil writer")
	}
	cal := Calendar(events, opts)
	if err := cal.SerializeTo(w, ical.WithNewLineWindows); err != nil {
		return fmt.Errorf("ics: serialize: %w", err)
	}
	return nil
}

// Serialize is Write into a byte slice.
func Serialize(events []model.Event, opts WriteOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, events, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Calendar builds the golang-ical calendar for events.
func Calendar(events []model.Event, opts WriteOptions) *ical.Calendar {
	if opts.ProductID == "" {
		opts.ProductID = defaultProductID
	}
	if opts.Name == "" {
		opts.Name = defaultName
	}
	if opts.Stamp.IsZero() {
		opts.Stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetProductId(opts.ProductID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(opts.Name)

	for _, ev := range events {
		addEvent(cal, ev, opts.Stamp)
	}
	return cal
}

func addEvent(cal *ical.Calendar, ev model.Event, stamp time.Time) {
	ve := cal.AddEvent(ev.UID)
	ve.SetDtStampTime(stamp)

	// Wall-clock times are written floating (no TZID, no Z).
	ve.SetProperty(ical.ComponentPropertyDtStart, ev.Start.Format(floatingLayout))
	ve.SetProperty(ical.ComponentPropertyDtEnd, ev.End.Format(floatingLayout))
	ve.AddRrule(ev.Recurrence.String())

	ve.SetSummary(ev.Title)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	for _, c := range ev.Categories {
		if c == "" {
			continue
		}
		ve.AddCategory(c)
	}

	if ev.Status != "" {
		ve.SetStatus(ical.ObjectStatus(ev.Status))
	}
	if ev.Transparency != "" {
		ve.SetTimeTransparency(ical.TimeTransparency(ev.Transparency))
	}

	if ev.Alarm.Before > 0 {
		alarm := ve.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetTrigger(triggerBefore(ev.Alarm.Before))
		desc := ev.Alarm.Description
		if desc == "" {
			desc = ev.Title
		}
		alarm.SetProperty(ical.ComponentPropertyDescription, desc)
	}
}

// triggerBefore renders a negative RFC 5545 duration such as -PT15M.
func triggerBefore(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("-PT%dH%dM", h, m)
	case h > 0:
		return fmt.Sprintf("-PT%dH", h)
	default:
		return fmt.Sprintf("-PT%dM", m)
	}
}
