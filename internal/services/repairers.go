package services

import (
	"math"
	"sort"

	"diagbot/pkg"
)

// RepairerDirectory serves nearby-repairer lookups from a static directory.
// The real platform backs this with its repairer database; the engine only
// needs coordinates, names and ratings.
type RepairerDirectory struct {
	repairers []pkg.RepairerRef
}

// NewRepairerDirectory creates a directory with sample French repairers.
func NewRepairerDirectory() *RepairerDirectory {
	return &RepairerDirectory{
		repairers: []pkg.RepairerRef{
			{ID: "rep001", Name: "Atelier Réparex", City: "Paris", Rating: 4.8, Lat: 48.8566, Lng: 2.3522},
			{ID: "rep002", Name: "Phone Clinic", City: "Paris", Rating: 4.5, Lat: 48.8738, Lng: 2.2950},
			{ID: "rep003", Name: "TechCare Lyon", City: "Lyon", Rating: 4.7, Lat: 45.7640, Lng: 4.8357},
			{ID: "rep004", Name: "Dépann'Mobile", City: "Marseille", Rating: 4.3, Lat: 43.2965, Lng: 5.3698},
			{ID: "rep005", Name: "Répar'Express", City: "Toulouse", Rating: 4.6, Lat: 43.6047, Lng: 1.4442},
			{ID: "rep006", Name: "iFix Bordeaux", City: "Bordeaux", Rating: 4.4, Lat: 44.8378, Lng: -0.5792},
			{ID: "rep007", Name: "Smart Répare", City: "Lille", Rating: 4.2, Lat: 50.6292, Lng: 3.0573},
			{ID: "rep008", Name: "Atelier du Mobile", City: "Nantes", Rating: 4.9, Lat: 47.2184, Lng: -1.5536},
		},
	}
}

// NewRepairerDirectoryWith creates a directory over explicit records.
func NewRepairerDirectoryWith(repairers []pkg.RepairerRef) *RepairerDirectory {
	return &RepairerDirectory{repairers: repairers}
}

// FindNearby returns up to limit repairers sorted by distance from the given
// location. DistanceKm is filled on the returned copies.
func (d *RepairerDirectory) FindNearby(loc pkg.Location, limit int) []pkg.RepairerRef {
	results := make([]pkg.RepairerRef, 0, len(d.repairers))
	for _, r := range d.repairers {
		r.DistanceKm = math.Round(haversineKm(loc.Lat, loc.Lng, r.Lat, r.Lng)*10) / 10
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].DistanceKm != results[j].DistanceKm {
			return results[i].DistanceKm < results[j].DistanceKm
		}
		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
