// Package greeting maps a local date and time to the greeting a post must
// open with. Calendar days take precedence over the time of day.
package greeting

import "time"

// Label is the greeting category handed to the model verbatim.
type Label string

const (
	ChristmasEve Label = "Christmas Eve greeting"
	Christmas    Label = "Christmas greeting"
	NewYearsEve  Label = "New Year's Eve greeting"
	NewYear      Label = "New Year greeting"
	Morning      Label = "morning"
	Afternoon    Label = "afternoon"
	Evening      Label = "evening"
	Night        Label = "night"
)

type rule struct {
	match func(t time.Time) bool
	label Label
}

func onDay(m time.Month, d int) func(time.Time) bool {
	return func(t time.Time) bool { return t.Month() == m && t.Day() == d }
}

func januaryThrough(last int) func(time.Time) bool {
	return func(t time.Time) bool { return t.Month() == time.January && t.Day() <= last }
}

// hours matches [from, to) on the local clock.
func hours(from, to int) func(time.Time) bool {
	return func(t time.Time) bool { h := t.Hour(); return h >= from && h < to }
}

// rules are evaluated top-down; the first match wins. The final row matches
// everything left over ([22:00, 05:00)).
var rules = []rule{
	{onDay(time.December, 24), ChristmasEve},
	{onDay(time.December, 25), Christmas},
	{onDay(time.December, 31), NewYearsEve},
	{januaryThrough(4), NewYear},
	{hours(5, 11), Morning},
	{hours(11, 17), Afternoon},
	{hours(17, 22), Evening},
	{func(time.Time) bool { return true }, Night},
}

// Resolve returns the greeting for local, which must already be in the
// place's time zone.
func Resolve(local time.Time) Label {
	for _, r := range rules {
		if r.match(local) {
			return r.label
		}
	}
	return Night
}

// IsSeasonal reports whether l comes from a calendar override rather than
// the time of day.
func IsSeasonal(l Label) bool {
	switch l {
	case ChristmasEve, Christmas, NewYearsEve, NewYear:
		return true
	}
	return false
}
