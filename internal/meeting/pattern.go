// Package meeting parses catalog meeting-pattern text such as
// "M-R | 3:00 PM - 4:50 PM" into weekdays and clock times.
package meeting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Day is an RRULE weekday code.
type Day string

const (
	Monday    Day = "MO"
	Tuesday   Day = "TU"
	Wednesday Day = "WE"
	Thursday  Day = "TH"
	Friday    Day = "FR"
)

// dayLetters maps the catalog's single-letter day codes. R is Thursday.
var dayLetters = map[string]Day{
	"M": Monday,
	"T": Tuesday,
	"W": Wednesday,
	"R": Thursday,
	"F": Friday,
}

// DayFromLetter returns the RRULE code for a catalog day letter.
func DayFromLetter(letter string) (Day, bool) {
	d, ok := dayLetters[letter]
	return d, ok
}

// space matches any Unicode space separator as well as ASCII whitespace;
// exported catalog text often carries U+00A0 between the time and AM/PM.
const space = `[\s\x{000B}\x{00A0}\x{FEFF}\x{2028}\x{2029}\p{Zs}]`

var patternRE = regexp.MustCompile(strings.NewReplacer(`\s`, space).Replace(
	`^(?P<days>[MTWRF](?:-[MTWRF])*)\s*\|\s*(?P<start>\d{1,2}:\d{2}\s[AP]M)\s*-\s*(?P<end>\d{1,2}:\d{2}\s[AP]M)$`,
))

var (
	daysIdx  = patternRE.SubexpIndex("days")
	startIdx = patternRE.SubexpIndex("start")
	endIdx   = patternRE.SubexpIndex("end")
)

// Clock is a 24-hour wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Before reports whether c is earlier than o on the same day.
func (c Clock) Before(o Clock) bool {
	if c.Hour != o.Hour {
		return c.Hour < o.Hour
	}
	return c.Minute < o.Minute
}

// Pattern is a parsed meeting pattern. Days keep the order in which they
// appear in the source text.
type Pattern struct {
	Days  []Day
	Start Clock
	End   Clock
}

// Codes returns the day codes as plain strings in pattern order.
func (p Pattern) Codes() []string {
	out := make([]string, len(p.Days))
	for i, d := range p.Days {
		out[i] = string(d)
	}
	return out
}

// ParseError reports a meeting pattern that does not match the grammar.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid meeting pattern %q", e.Input)
	}
	return fmt.Sprintf("invalid meeting pattern %q: %s", e.Input, e.Reason)
}

// Parse parses s as
//
//	<day>('-'<day>)* '|' <h>:<mm> <AM|PM> '-' <h>:<mm> <AM|PM>
//
// with <day> one of M, T, W, R, F. Whitespace around '|' and the range dash
// is optional. Anything else, including repeated days, fails with *ParseError.
func Parse(s string) (Pattern, error) {
	m := patternRE.FindStringSubmatch(s)
	if m == nil {
		return Pattern{}, &ParseError{Input: s}
	}

	letters := strings.Split(m[daysIdx], "-")
	days := make([]Day, 0, len(letters))
	seen := make(map[Day]bool, len(letters))
	for _, l := range letters {
		d := dayLetters[l]
		if seen[d] {
			return Pattern{}, &ParseError{Input: s, Reason: "day " + l + " repeated"}
		}
		seen[d] = true
		days = append(days, d)
	}

	start, err := parseClock(m[startIdx])
	if err != nil {
		return Pattern{}, &ParseError{Input: s, Reason: err.Error()}
	}
	end, err := parseClock(m[endIdx])
	if err != nil {
		return Pattern{}, &ParseError{Input: s, Reason: err.Error()}
	}

	return Pattern{Days: days, Start: start, End: end}, nil
}

// parseClock converts "h:mm AM" / "h:mm PM" (already shape-checked) to a Clock.
func parseClock(v string) (Clock, error) {
	// The separator before the marker may be a multi-byte space.
	colon := strings.IndexByte(v, ':')
	hStr, mStr, marker := v[:colon], v[colon+1:colon+3], v[len(v)-2:]

	h, _ := strconv.Atoi(hStr)
	minute, _ := strconv.Atoi(mStr)
	if h < 1 || h > 12 {
		return Clock{}, fmt.Errorf("hour out of range in %q", v)
	}
	if minute > 59 {
		return Clock{}, fmt.Errorf("minute out of range in %q", v)
	}

	h %= 12
	if marker == "PM" {
		h += 12
	}
	return Clock{Hour: h, Minute: minute}, nil
}
