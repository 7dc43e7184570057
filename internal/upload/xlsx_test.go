package upload

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func header() []string {
	return append([]string(nil), Columns...)
}

func workbook(t *testing.T, rows [][]string) *bytes.Buffer {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, r := range rows {
		vals := make([]interface{}, len(r))
		for j, v := range r {
			vals[j] = v
		}
		if err := f.SetSheetRow("Sheet1", fmt.Sprintf("A%d", i+1), &vals); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()

	buf := workbook(t, [][]string{
		header(),
		{"2025 Fall A Term", "CS 4516-A01 - Advanced Computer Networks", "Lecture", "M-R | 3:00 PM - 4:50 PM", "Salisbury Labs 305", "Jane Doe", "In-Person"},
		{"", "", "", "", "", "", ""},
		{"2025 Fall A Term", "MA 1021-AL01 - Calculus I", "Lecture", "", "", "", ""},
	})

	rows, err := ReadXLSX(buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected blank row dropped and 2 rows, got %d", len(rows))
	}
	r := rows[0]
	if r.AcademicPeriod != "2025 Fall A Term" || r.SectionDefinition != "CS 4516-A01 - Advanced Computer Networks" {
		t.Fatalf("unexpected key fields %+v", r)
	}
	if r.InstructionalFormat != "Lecture" || r.MeetingPatterns != "M-R | 3:00 PM - 4:50 PM" || r.Locations != "Salisbury Labs 305" ||
		r.Instructors != "Jane Doe" || r.DeliveryMode != "In-Person" {
		t.Fatalf("unexpected descriptive fields %+v", r)
	}
	if rows[1].SectionDefinition != "MA 1021-AL01 - Calculus I" || rows[1].Instructors != "" {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
}

func TestReadXLSX_NotAWorkbook(t *testing.T) {
	t.Parallel()

	_, err := ReadXLSX(strings.NewReader("Academic Period,Course Section Definition\n"))
	if !errors.Is(err, ErrMalformedUpload) {
		t.Fatalf("expected ErrMalformedUpload, got %v", err)
	}
}

func TestParseRows_ColumnOrderAndExtras(t *testing.T) {
	t.Parallel()

	rows, err := parseRows([][]string{
		{"Notes", ColDeliveryMode, ColInstructors, ColLocations, ColMeetingPatterns, ColInstructionalFormat, ColSectionDefinition, ColAcademicPeriod},
		{"ignored", "Online", "A. Person", "", "", "Lab", "BB 2550-X01 - Lab", "2025 Fall B Term"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rows) != 1 || rows[0].AcademicPeriod != "2025 Fall B Term" || rows[0].DeliveryMode != "Online" || rows[0].InstructionalFormat != "Lab" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestParseRows_ShortRowsPadToEmpty(t *testing.T) {
	t.Parallel()

	rows, err := parseRows([][]string{
		header(),
		{"2025 Fall A Term", "CS 1101-A01 - Intro"},
		nil,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rows) != 1 || rows[0].DeliveryMode != "" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestParseRows_Malformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rows [][]string
		row  int
		want string
	}{
		{
			name: "empty sheet",
			rows: nil,
			want: "worksheet is empty",
		},
		{
			name: "missing column",
			rows: [][]string{{ColAcademicPeriod, ColSectionDefinition}},
			row:  1,
			want: `missing columns: Instructional Format`,
		},
		{
			name: "duplicate column",
			rows: [][]string{append(header(), ColLocations)},
			row:  1,
			want: `duplicate column "Locations"`,
		},
		{
			name: "missing section definition",
			rows: [][]string{
				header(),
				{"2025 Fall A Term", "CS 1101-A01 - Intro"},
				{"2025 Fall A Term", "", "Lecture"},
			},
			row:  3,
			want: `"Course Section Definition" is required`,
		},
		{
			name: "missing academic period",
			rows: [][]string{
				header(),
				{"", "CS 1101-A01 - Intro"},
			},
			row:  2,
			want: `"Academic Period" is required`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows, err := parseRows(tc.rows)
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatalf("expected *MalformedError, got %v", err)
			}
			if !errors.Is(err, ErrMalformedUpload) {
				t.Fatalf("expected ErrMalformedUpload in chain")
			}
			if me.Row != tc.row {
				t.Fatalf("expected row %d, got %d", tc.row, me.Row)
			}
			if !strings.Contains(me.Reason, tc.want) {
				t.Fatalf("expected reason to contain %q, got %q", tc.want, me.Reason)
			}
			if rows != nil {
				t.Fatalf("expected no rows on rejection")
			}
		})
	}
}
