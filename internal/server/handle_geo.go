package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/photoquest/internal/geo"
	"github.com/playperu/photoquest/internal/session"
)

type Geocoder interface {
	SearchCities(ctx context.Context, query string) ([]geo.CityCandidate, error)
}

func handleSearchCities(geocoder Geocoder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cities, err := geocoder.SearchCities(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			logger.Error("city search failed", "error", err)
			writeError(w, http.StatusBadGateway, "geocoding provider unavailable")
			return
		}
		if cities == nil {
			cities = []geo.CityCandidate{}
		}
		writeJSON(w, http.StatusOK, cities)
	}
}

// handleResolvePOIs never fails on provider trouble; the resolution
// says whether the fallback set was used.
func handleResolvePOIs(resolver session.POIResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lat, err := strconv.ParseFloat(q.Get("lat"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "lat must be a number")
			return
		}
		lon, err := strconv.ParseFloat(q.Get("lon"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "lon must be a number")
			return
		}
		var radius float64
		if s := q.Get("radius"); s != "" {
			radius, err = strconv.ParseFloat(s, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "radius must be a number")
				return
			}
		}

		writeJSON(w, http.StatusOK, resolver.Resolve(r.Context(), lat, lon, radius))
	}
}
