// Package timezone maps carrier location strings to time zones and renders
// event times relative to now.
package timezone

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

// TimestampLayout is how an event time is printed next to a relative delta.
const TimestampLayout = "2006-01-02 15:04:05-07:00"

// One zone per state. States split across zones use the zone most of the
// population lives in.
var stateZones = map[string]string{
	"AL": "America/Chicago",
	"AK": "America/Anchorage",
	"AZ": "America/Phoenix",
	"AR": "America/Chicago",
	"CA": "America/Los_Angeles",
	"CO": "America/Denver",
	"CT": "America/New_York",
	"DE": "America/New_York",
	"DC": "America/New_York",
	"FL": "America/New_York",
	"GA": "America/New_York",
	"HI": "Pacific/Honolulu",
	"ID": "America/Boise",
	"IL": "America/Chicago",
	"IN": "America/Indiana/Indianapolis",
	"IA": "America/Chicago",
	"KS": "America/Chicago",
	"KY": "America/New_York",
	"LA": "America/Chicago",
	"ME": "America/New_York",
	"MD": "America/New_York",
	"MA": "America/New_York",
	"MI": "America/Detroit",
	"MN": "America/Chicago",
	"MS": "America/Chicago",
	"MO": "America/Chicago",
	"MT": "America/Denver",
	"NE": "America/Chicago",
	"NV": "America/Los_Angeles",
	"NH": "America/New_York",
	"NJ": "America/New_York",
	"NM": "America/Denver",
	"NY": "America/New_York",
	"NC": "America/New_York",
	"ND": "America/Chicago",
	"OH": "America/New_York",
	"OK": "America/Chicago",
	"OR": "America/Los_Angeles",
	"PA": "America/New_York",
	"RI": "America/New_York",
	"SC": "America/New_York",
	"SD": "America/Chicago",
	"TN": "America/Chicago",
	"TX": "America/Chicago",
	"UT": "America/Denver",
	"VT": "America/New_York",
	"VA": "America/New_York",
	"WA": "America/Los_Angeles",
	"WV": "America/New_York",
	"WI": "America/Chicago",
	"WY": "America/Denver",
}

var loadZones = sync.OnceValue(func() map[string]*time.Location {
	zones := make(map[string]*time.Location, len(stateZones))
	for state, name := range stateZones {
		loc, err := time.LoadLocation(name)
		if err != nil {
			continue
		}
		zones[state] = loc
	}
	return zones
})

// StateToken pulls the state abbreviation out of a location string.
//
// "LOS ANGELES, CA 90052" and "Los Angeles, CA" yield "CA" from the segment
// after the last comma. Without a comma the second whitespace token is used,
// so "MEMPHIS TN" yields "TN".
func StateToken(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return ""
	}

	var token string
	if idx := strings.LastIndex(location, ","); idx >= 0 {
		fields := strings.Fields(location[idx+1:])
		if len(fields) > 0 {
			token = fields[0]
		}
	} else {
		fields := strings.Fields(location)
		if len(fields) > 1 {
			token = fields[1]
		}
	}

	return strings.ToUpper(strings.Trim(token, ".,;:"))
}

// Resolve returns the zone for location, or false when the state token is
// missing or unknown.
func Resolve(location string) (*time.Location, bool) {
	token := StateToken(location)
	if token == "" {
		return nil, false
	}
	loc, ok := loadZones()[token]
	return loc, ok
}

// Apply reinterprets the wall clock of t in the zone of location. Unknown
// locations return t unchanged.
func Apply(t time.Time, location string) time.Time {
	loc, ok := Resolve(location)
	if !ok {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// FormatDelta renders how long ago event happened using the largest unit
// that is non-zero, e.g. "1 hour ago (2024-01-15 10:30:00-08:00)". Events
// in the future are printed as a plain timestamp.
func FormatDelta(now, event time.Time) string {
	stamp := event.Format(TimestampLayout)

	delta := now.Sub(event)
	if delta < 0 {
		return stamp
	}

	var n int64
	var unit string
	switch {
	case delta >= 24*time.Hour:
		n, unit = int64(delta/(24*time.Hour)), "day"
	case delta >= time.Hour:
		n, unit = int64(delta/time.Hour), "hour"
	case delta >= time.Minute:
		n, unit = int64(delta/time.Minute), "minute"
	default:
		n, unit = int64(delta/time.Second), "second"
	}
	if n != 1 {
		unit += "s"
	}

	return fmt.Sprintf("%d %s ago (%s)", n, unit, stamp)
}
