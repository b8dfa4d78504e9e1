package geo

import "github.com/playperu/photoquest/internal/photoquest"

// fallbackPOIs is served whenever Overpass is unavailable or returns
// nothing usable. They sit in the centre of Oelsnitz/Vogtland.
var fallbackPOIs = []photoquest.PointOfInterest{
	{ID: 1, Lat: 50.415, Lon: 12.169, Name: "St.-Jakobi-Kirche", Category: "church"},
	{ID: 2, Lat: 50.413, Lon: 12.162, Name: "Schloss Voigtsberg", Category: "castle"},
	{ID: 3, Lat: 50.416, Lon: 12.167, Name: "Marktplatz", Category: "square"},
	{ID: 4, Lat: 50.417, Lon: 12.168, Name: "Rathaus", Category: "amenity"},
	{ID: 5, Lat: 50.412, Lon: 12.170, Name: "Stadtpark", Category: "park"},
}

// FallbackPOIs returns a copy of the built-in POI list.
func FallbackPOIs() []photoquest.PointOfInterest {
	return append([]photoquest.PointOfInterest(nil), fallbackPOIs...)
}
