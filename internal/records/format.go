package records

import (
	"fmt"
	"math"
)

// FormatChrono renders seconds as "H:MM:SS", or "M:SS" under an hour.
func FormatChrono(seconds float64) string {
	total := int64(math.Floor(seconds))
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatPace renders the pace over distanceM as "M:SS/km".
func FormatPace(distanceM, seconds float64) string {
	if distanceM <= 0 || seconds <= 0 {
		return "0:00/km"
	}
	perKm := seconds / (distanceM / 1000)
	m := int64(math.Floor(perKm / 60))
	s := int64(math.Floor(math.Mod(perKm, 60)))
	return fmt.Sprintf("%d:%02d/km", m, s)
}
