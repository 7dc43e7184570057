package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"regcal/internal/model"
)

var ErrMalformedFeed = errors.New("malformed catalog feed")

// feedEntry mirrors one Workday "Report_Entry" object of the course
// listings feed. Only the fields regcal uses are declared.
type feedEntry struct {
	CourseSection       string `json:"Course_Section"`
	OfferingPeriod      string `json:"Offering_Period"`
	CourseTitle         string `json:"Course_Title"`
	Subject             string `json:"Subject"`
	MeetingPatterns     string `json:"Meeting_Patterns"`
	Locations           string `json:"Locations"`
	StartDate           string `json:"Course_Section_Start_Date"`
	EndDate             string `json:"Course_Section_End_Date"`
	Instructors         string `json:"Instructors"`
	InstructionalFormat string `json:"Instructional_Format"`
	AcademicLevel       string `json:"Academic_Level"`
}

type feedEnvelope struct {
	ReportEntry *[]feedEntry `json:"Report_Entry"`
}

// Decode converts a feed payload into course sections, preserving feed
// order. Only the envelope is checked; entry fields pass through as-is and
// missing fields decode to "".
func Decode(body []byte) ([]model.CourseSection, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedFeed)
	}

	var env feedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFeed, err)
	}
	if env.ReportEntry == nil {
		return nil, fmt.Errorf("%w: missing Report_Entry", ErrMalformedFeed)
	}

	entries := *env.ReportEntry
	out := make([]model.CourseSection, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.CourseSection{
			Section:             e.CourseSection,
			OfferingPeriod:      e.OfferingPeriod,
			Title:               e.CourseTitle,
			Subject:             e.Subject,
			MeetingPattern:      e.MeetingPatterns,
			Location:            e.Locations,
			StartDate:           e.StartDate,
			EndDate:             e.EndDate,
			Instructors:         e.Instructors,
			InstructionalFormat: e.InstructionalFormat,
			AcademicLevel:       e.AcademicLevel,
		})
	}
	return out, nil
}
