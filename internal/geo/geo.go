package geo

import "math"

// Bearing returns the initial great-circle bearing in degrees (0..360)
// from the first coordinate to the second.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	deltaLon := toRadians(lon2 - lon1)

	y := math.Sin(deltaLon) * math.Cos(toRadians(lat2))
	x := math.Cos(toRadians(lat1))*math.Sin(toRadians(lat2)) -
		math.Sin(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Cos(deltaLon)

	bearing := toDegrees(math.Atan2(y, x))

	return math.Mod(bearing+360, 360)
}

// WindIncidence scores how directly the wind blows along the given bearing.
// A wind direction equal to the bearing scores 1, an opposing wind scores 0.
// The result is rounded to three decimals.
func WindIncidence(windDirectionDeg, bearingDeg float64) float64 {
	diff := math.Abs(windDirectionDeg - bearingDeg)
	if diff > 180 {
		diff = 360 - diff
	}

	score := 1 - diff/180

	return math.Round(score*1000) / 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
