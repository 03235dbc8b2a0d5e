package geofence

import (
	"encoding/json"
	"math"

	"resto-platform/internal/models"
)

const earthRadiusM = 6371000.0

// Crossing directions
const (
	DirectionEntered = "entered"
	DirectionExited  = "exited"
)

// Contains reports whether a position lies inside a geofence. Circles use
// great-circle distance against the radius; polygons use a ray-casting
// test on the implicitly closed ring, with fewer than 3 vertices never
// containing anything.
func Contains(lat, lng float64, fence *models.Geofence) bool {
	switch fence.Kind {
	case models.GeofenceCircle:
		return haversineM(lat, lng, fence.CenterLat, fence.CenterLng) <= fence.RadiusM
	case models.GeofencePolygon:
		ring, err := parseRing(fence.RingJSON)
		if err != nil || len(ring) < 3 {
			return false
		}
		return pointInRing(lat, lng, ring)
	default:
		return false
	}
}

// haversineM returns the great-circle distance between two points in meters
func haversineM(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func parseRing(raw string) ([][2]float64, error) {
	var ring [][2]float64
	if err := json.Unmarshal([]byte(raw), &ring); err != nil {
		return nil, err
	}
	return ring, nil
}

// pointInRing runs a ray cast from the point along constant latitude and
// counts ring edge crossings. Vertices are [lat,lng]; the ring closes
// itself back to the first vertex.
func pointInRing(lat, lng float64, ring [][2]float64) bool {
	inside := false
	n := len(ring)

	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		yi, xi := ring[i][0], ring[i][1]
		yj, xj := ring[j][0], ring[j][1]

		if (yi > lat) != (yj > lat) &&
			lng < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
