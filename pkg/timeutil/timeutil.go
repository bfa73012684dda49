// Package timeutil provides platform timezone helpers. KursLab anchors
// all engagement windows to one platform timezone (Asia/Almaty, UTC+5,
// no DST) so a "week" means the same thing for every user. Week math
// itself lives with the domain's week calculator; this package only
// resolves locations and formats dates consistently.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// PlatformTZ is the platform timezone (UTC+5, no DST).
// Kazakhstan abolished DST in 2005, so this is constant year-round.
var PlatformTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// LoadLocation resolves a timezone name, falling back to PlatformTZ when
// the name is empty or unknown. Configuration uses this so a bad
// TZ value degrades to the platform default instead of failing startup.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return PlatformTZ
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return PlatformTZ
	}
	return loc
}

// ToPlatform converts a time to the platform timezone.
func ToPlatform(t time.Time) time.Time {
	return t.In(PlatformTZ)
}

// FormatDate is the standard date format (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in the
// platform timezone.
func FormatDateStr(t time.Time) string {
	return ToPlatform(t).Format(FormatDate)
}

// ParsePlatform parses a time string in the platform timezone.
func ParsePlatform(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, PlatformTZ)
}

// ParseDate parses a date string (YYYY-MM-DD) in the platform timezone.
func ParseDate(value string) (time.Time, error) {
	return ParsePlatform(FormatDate, value)
}
