package meeting

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in    string
		days  []Day
		start Clock
		end   Clock
	}{
		{"M-R | 3:00 PM - 4:50 PM", []Day{Monday, Thursday}, Clock{15, 0}, Clock{16, 50}},
		{"M-T-R-F | 9:00 AM - 9:50 AM", []Day{Monday, Tuesday, Thursday, Friday}, Clock{9, 0}, Clock{9, 50}},
		{"M-T-W-R-F|8:00 AM-8:50 AM", []Day{Monday, Tuesday, Wednesday, Thursday, Friday}, Clock{8, 0}, Clock{8, 50}},
		{"W | 12:00 PM - 1:50 PM", []Day{Wednesday}, Clock{12, 0}, Clock{13, 50}},
		{"F  |  12:30 AM  -  1:00 AM", []Day{Friday}, Clock{0, 30}, Clock{1, 0}},
		{"R-M | 10:00 AM - 11:50 AM", []Day{Thursday, Monday}, Clock{10, 0}, Clock{11, 50}},
		{"M-R |\u00a03:00 PM - 4:50 PM", []Day{Monday, Thursday}, Clock{15, 0}, Clock{16, 50}},
		{"M-R | 3:00\u00a0PM - 4:50\u00a0PM", []Day{Monday, Thursday}, Clock{15, 0}, Clock{16, 50}},
		{"T\u2009|\u200911:00 AM\u3000-\ufeff12:50 PM", []Day{Tuesday}, Clock{11, 0}, Clock{12, 50}},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			p, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !reflect.DeepEqual(p.Days, tc.days) {
				t.Fatalf("expected days %v, got %v", tc.days, p.Days)
			}
			if p.Start != tc.start || p.End != tc.end {
				t.Fatalf("expected %s-%s, got %s-%s", tc.start, tc.end, p.Start, p.End)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"S | 9:00 AM - 9:50 AM",
		"MR | 9:00 AM - 9:50 AM",
		"M-T-R-F|9:00AM-9:50AM",
		"Tu-Th | 9:00 AM - 9:50 AM",
		"M-M | 9:00 AM - 9:50 AM",
		"M | 13:00 PM - 1:50 PM",
		"M | 0:00 AM - 1:50 AM",
		"M | 9:60 AM - 10:50 AM",
		"M | 9:00 am - 9:50 am",
		"M | 9:00 AM",
		" M | 9:00 AM - 9:50 AM",
		"M | 9:00 AM - 9:50 AM ",
		"M | 9:00 AM - 9:50 AM\nT | 9:00 AM - 9:50 AM",
		"M- | 9:00 AM - 9:50 AM",
	}

	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if pe.Input != in {
				t.Fatalf("expected error to carry input %q, got %q", in, pe.Input)
			}
		})
	}
}

func TestParse_DayOrderAndCardinality(t *testing.T) {
	t.Parallel()

	letters := []string{"M", "T", "W", "R", "F"}
	want := []string{"MO", "TU", "WE", "TH", "FR"}

	for n := 1; n <= len(letters); n++ {
		in := letters[0]
		for _, l := range letters[1:n] {
			in += "-" + l
		}
		in += " | 9:00 AM - 9:50 AM"

		p, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := p.Codes(); !reflect.DeepEqual(got, want[:n]) {
			t.Fatalf("Parse(%q) codes = %v, want %v", in, got, want[:n])
		}
		if !p.Start.Before(p.End) {
			t.Fatalf("expected start before end for %q", in)
		}
	}
}

func TestDayFromLetter(t *testing.T) {
	t.Parallel()

	if d, ok := DayFromLetter("R"); !ok || d != Thursday {
		t.Fatalf("expected R -> TH, got %q %v", d, ok)
	}
	if _, ok := DayFromLetter("S"); ok {
		t.Fatalf("expected S to be unmapped")
	}
}
