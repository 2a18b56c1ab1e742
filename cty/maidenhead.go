package cty

import "math"

// gridSquare returns the 4-character Maidenhead square covering a country's
// reference coordinates. Coordinates on the north pole or the antimeridian are
// pulled inside the last square.
func gridSquare(lat, lon float64) (string, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return "", false
	}
	lat = math.Min(lat+90, 179.999999)
	lon = math.Min(lon+180, 359.999999)

	field := [2]int{int(lon / 20), int(lat / 10)}
	square := [2]int{int(math.Mod(lon, 20) / 2), int(math.Mod(lat, 10))}
	return string([]byte{
		byte('A' + field[0]),
		byte('A' + field[1]),
		byte('0' + square[0]),
		byte('0' + square[1]),
	}), true
}
