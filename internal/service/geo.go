package service

import (
	"math"
	"time"

	"github.com/Eissaali11/nuzum-edut-sub003/internal/model"
)

// earthRadiusM is the Haversine earth radius in meters
const earthRadiusM = 6371000

// Distance calculates the distance in meters between two points using the
// Haversine formula. Inputs are WGS-84 decimal degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// DistanceMeters returns the Haversine distance rounded to whole meters,
// the unit zone radii are compared in.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) int {
	return int(math.Round(Distance(lat1, lon1, lat2, lon2)))
}

// IsInside reports whether a point lies inside the zone. Points exactly on
// the boundary count as inside.
func IsInside(lat, lon float64, zone *model.Zone) bool {
	return DistanceMeters(lat, lon, zone.CenterLat, zone.CenterLon) <= zone.RadiusMeters
}

// ZoneDistanceMeters returns the rounded distance of a point from the zone center
func ZoneDistanceMeters(lat, lon float64, zone *model.Zone) int {
	return DistanceMeters(lat, lon, zone.CenterLat, zone.CenterLon)
}

// InBoundingBox is a cheap prefilter before the Haversine check: one degree
// of latitude is ~111km, one degree of longitude shrinks by cos(lat).
func InBoundingBox(lat, lon float64, zone *model.Zone) bool {
	radius := float64(zone.RadiusMeters)
	if math.Abs(lat-zone.CenterLat)*111000 > radius {
		return false
	}
	cosLat := math.Cos(zone.CenterLat * math.Pi / 180)
	if cosLat <= 0 {
		// polar zones degenerate, fall through to the exact check
		return true
	}
	return math.Abs(lon-zone.CenterLon)*111000*cosLat <= radius
}

// ValidCoordinates reports whether lat/lon form a valid WGS-84 point
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// ClassifyEntry compares the entry's wall-clock time on its local calendar day
// against the zone's scheduled HH:MM start. It returns model-level status
// "on_time" or "late_N" where N is the whole minutes of delay.
func ClassifyEntry(entryTime time.Time, startTime string, loc *time.Location) (string, int) {
	var startHour, startMinute int
	if _, err := parseClock(startTime, &startHour, &startMinute); err != nil {
		return "present", 0
	}

	local := entryTime.In(loc)
	scheduled := time.Date(local.Year(), local.Month(), local.Day(), startHour, startMinute, 0, 0, loc)

	if !local.After(scheduled) {
		return "on_time", 0
	}
	lateMinutes := int(local.Sub(scheduled).Minutes())
	return "late", lateMinutes
}

// SessionDurationOK reports whether a closed session meets the zone's
// minimum presence requirement
func SessionDurationOK(session *model.GeofenceSession, zone *model.Zone) bool {
	if session.DurationMinutes == nil {
		return false
	}
	return *session.DurationMinutes >= zone.AttendanceRequiredMinutes
}

// IsMorningEntry reports whether the entry falls in the morning attendance
// slot (before noon local time)
func IsMorningEntry(entryTime time.Time, loc *time.Location) bool {
	return entryTime.In(loc).Hour() < 12
}

// LocalDate formats the entry's local calendar day as YYYY-MM-DD
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func parseClock(s string, hour, minute *int) (bool, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return false, err
	}
	*hour = t.Hour()
	*minute = t.Minute()
	return true, nil
}
