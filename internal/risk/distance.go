package risk

import (
	"math"

	"github.com/BradenHooton/riskgate/internal/models"
)

const earthRadiusKm = 6371.0

// greatCircleKm returns the great-circle distance between two points in kilometers
func greatCircleKm(a, b models.Location) float64 {
	lat1 := a.Latitude * (math.Pi / 180.0)
	lat2 := b.Latitude * (math.Pi / 180.0)
	dLat := (b.Latitude - a.Latitude) * (math.Pi / 180.0)
	dLon := (b.Longitude - a.Longitude) * (math.Pi / 180.0)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
