// Package upload reads the registration spreadsheet exported from Workday
// ("View My Courses") into registered-course rows.
package upload

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"regcal/internal/model"
)

// ErrMalformedUpload is wrapped by every error that rejects an uploaded file.
var ErrMalformedUpload = errors.New("malformed upload")

// MalformedError describes why an upload was rejected. Row is the 1-based
// spreadsheet row, or 0 when the problem is not tied to a row.
type MalformedError struct {
	Row    int
	Reason string
}

func (e *MalformedError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("malformed upload: row %d: %s", e.Row, e.Reason)
	}
	return "malformed upload: " + e.Reason
}

func (e *MalformedError) Unwrap() error { return ErrMalformedUpload }

// Column headers of the export, in export order.
const (
	ColAcademicPeriod      = "Academic Period"
	ColSectionDefinition   = "Course Section Definition"
	ColInstructionalFormat = "Instructional Format"
	ColMeetingPatterns     = "Meeting Patterns"
	ColLocations           = "Locations"
	ColInstructors         = "Instructors"
	ColDeliveryMode        = "Delivery Mode"
)

// Columns is the fixed header schema.
var Columns = []string{
	ColAcademicPeriod,
	ColSectionDefinition,
	ColInstructionalFormat,
	ColMeetingPatterns,
	ColLocations,
	ColInstructors,
	ColDeliveryMode,
}

// fieldColumns maps RegisteredRow field names to headers for error messages.
var fieldColumns = map[string]string{
	"AcademicPeriod":    ColAcademicPeriod,
	"SectionDefinition": ColSectionDefinition,
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ReadXLSX reads the first worksheet of an xlsx workbook. Row 1 must carry
// every header in Columns (extra columns are ignored, order is free).
// Blank rows are dropped. Cells are taken as text, unmodified.
//
// The file is accepted or rejected as a whole: on error no rows are returned.
func ReadXLSX(r io.Reader) ([]model.RegisteredRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &MalformedError{Reason: "not a readable xlsx workbook: " + err.Error()}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &MalformedError{Reason: "workbook has no worksheets"}
	}

	// RawCellValue keeps the text as stored instead of applying number formats.
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &MalformedError{Reason: "reading worksheet " + sheets[0] + ": " + err.Error()}
	}
	return parseRows(raw)
}

func parseRows(raw [][]string) ([]model.RegisteredRow, error) {
	if len(raw) == 0 {
		return nil, &MalformedError{Reason: "worksheet is empty"}
	}

	cols, err := headerIndex(raw[0])
	if err != nil {
		return nil, err
	}

	rows := make([]model.RegisteredRow, 0, len(raw)-1)
	for i, cells := range raw[1:] {
		if blank(cells) {
			continue
		}
		sheetRow := i + 2

		cell := func(name string) string {
			j := cols[name]
			if j >= len(cells) {
				return ""
			}
			return cells[j]
		}

		row := model.RegisteredRow{
			AcademicPeriod:      cell(ColAcademicPeriod),
			SectionDefinition:   cell(ColSectionDefinition),
			InstructionalFormat: cell(ColInstructionalFormat),
			MeetingPatterns:     cell(ColMeetingPatterns),
			Locations:           cell(ColLocations),
			Instructors:         cell(ColInstructors),
			DeliveryMode:        cell(ColDeliveryMode),
		}
		if err := validate.Struct(row); err != nil {
			return nil, &MalformedError{Row: sheetRow, Reason: describeValidation(err)}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for j, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := idx[h]; dup {
			return nil, &MalformedError{Row: 1, Reason: fmt.Sprintf("duplicate column %q", h)}
		}
		idx[h] = j
	}

	var missing []string
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MalformedError{Row: 1, Reason: "missing columns: " + strings.Join(missing, ", ")}
	}
	return idx, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fieldColumns[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		parts = append(parts, fmt.Sprintf("%q is %s", name, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
