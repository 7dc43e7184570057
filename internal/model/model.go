package model

import (
	"strconv"
	"strings"
	"time"
)

// CourseSection is one catalog record as published by the course listings
// feed. Fields are passed through verbatim; nothing here is validated.
type CourseSection struct {
	Section        string `json:"section"`         // e.g. "CS 4516-A01 - Advanced Computer Networks"
	OfferingPeriod string `json:"offering_period"` // e.g. "2025 Fall A Term"

	Title          string `json:"title"`
	Subject        string `json:"subject"`
	MeetingPattern string `json:"meeting_pattern"`
	Location       string `json:"location"`

	// StartDate / EndDate are YYYY-MM-DD strings as published.
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	Instructors         string `json:"instructors,omitempty"`
	InstructionalFormat string `json:"instructional_format,omitempty"`
	AcademicLevel       string `json:"academic_level,omitempty"`
}

// SubjectSeparator splits multi-subject strings such as
// "Computer Science; Data Science".
const SubjectSeparator = "; "

// SubjectTags returns the subject split into category tags. An empty
// subject yields no tags.
func (c CourseSection) SubjectTags() []string {
	if c.Subject == "" {
		return nil
	}
	return strings.Split(c.Subject, SubjectSeparator)
}

// RegisteredRow is one row of the uploaded registration spreadsheet.
// Only AcademicPeriod and SectionDefinition take part in matching.
type RegisteredRow struct {
	AcademicPeriod      string `validate:"required"`
	SectionDefinition   string `validate:"required"`
	InstructionalFormat string
	MeetingPatterns     string
	Locations           string
	Instructors         string
	DeliveryMode        string
}

type Frequency string

const FrequencyWeekly Frequency = "WEEKLY"

// Recurrence is the RRULE of an event. Until is kept as the exact UTC
// instant written to the calendar.
type Recurrence struct {
	Freq     Frequency
	Interval int
	ByDay    []string // RRULE weekday codes, e.g. "MO", "TH"
	Until    time.Time
}

// String renders the rule in RRULE value syntax, e.g.
// FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,TH;UNTIL=20251010T040000Z
func (r Recurrence) String() string {
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(string(r.Freq))
	if r.Interval > 0 {
		b.WriteString(";INTERVAL=")
		b.WriteString(strconv.Itoa(r.Interval))
	}
	if len(r.ByDay) > 0 {
		b.WriteString(";BYDAY=")
		b.WriteString(strings.Join(r.ByDay, ","))
	}
	if !r.Until.IsZero() {
		b.WriteString(";UNTIL=")
		b.WriteString(r.Until.UTC().Format("20060102T150405Z"))
	}
	return b.String()
}

type Status string

const StatusConfirmed Status = "CONFIRMED"

type Transparency string

const TransparencyOpaque Transparency = "OPAQUE" // busy

// Alarm is a display reminder fired Before the event start.
type Alarm struct {
	Before      time.Duration
	Description string
}

// Event is a recurring calendar event. Start/End describe the first
// occurrence only; later occurrences exist solely through Recurrence.
type Event struct {
	UID string

	Title       string
	Description string
	Location    string
	Categories  []string

	Start time.Time
	End   time.Time

	Recurrence Recurrence

	Status       Status
	Transparency Transparency
	Alarm        Alarm
}

// Occurrence represents a single concrete instance of an Event after
// recurrence expansion.
type Occurrence struct {
	UID   string    `json:"uid"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Location string `json:"location"`
}
