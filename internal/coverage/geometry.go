package coverage

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371

// pointInRing reports whether the (lon, lat) point lies inside the polygon
// ring using the ray-casting odd-crossing rule. Ring vertices are (lon, lat)
// pairs in the order received from the backend; the ring is treated as closed
// whether or not the first vertex is repeated at the end.
//
// Edge behavior: the crossing test is half-open (yi > y != yj > y), so a
// point exactly on a vertex or horizontal edge counts as inside or outside
// depending on which side of the vertex the ring continues. This matches the
// backend's own membership test and is locked in by tests.
func pointInRing(lon, lat float64, ring [][]float64) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		if len(ring[i]) < 2 || len(ring[j]) < 2 {
			continue
		}
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]

		if (yi > lat) != (yj > lat) && lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// haversineKm returns the great-circle distance in kilometers between two
// (lat, lon) points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
