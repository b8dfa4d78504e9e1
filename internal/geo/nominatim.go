package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

const minQueryLength = 3

// CityCandidate is one geocoding hit for a free-text city query.
type CityCandidate struct {
	PlaceID     int64      `json:"placeId"`
	DisplayName string     `json:"displayName"`
	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	BoundingBox [4]float64 `json:"boundingBox"`
	Importance  float64    `json:"importance"`
	Class       string     `json:"class"`
	Type        string     `json:"type"`
}

type NominatimConfig struct {
	Endpoint       string
	UserAgent      string
	AcceptLanguage string
	// RequestsPerSecond throttles outbound calls; the public instance
	// allows one per second.
	RequestsPerSecond float64
}

type Nominatim struct {
	cfg     NominatimConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewNominatim(cfg NominatimConfig, client *http.Client, logger *slog.Logger) *Nominatim {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en-US,en;q=0.9"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Nominatim{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}
}

type nominatimPlace struct {
	PlaceID     int64    `json:"place_id"`
	DisplayName string   `json:"display_name"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	BoundingBox []string `json:"boundingbox"`
	Importance  float64  `json:"importance"`
	Class       string   `json:"class"`
	Type        string   `json:"type"`
}

// SearchCities returns up to five candidates ordered by importance.
// Queries shorter than three characters return nothing without a call.
func (n *Nominatim) SearchCities(ctx context.Context, query string) ([]CityCandidate, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minQueryLength {
		return []CityCandidate{}, nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for nominatim rate limit: %w", err)
	}

	params := url.Values{
		"q":              {query},
		"format":         {"json"},
		"addressdetails": {"1"},
		"limit":          {"5"},
		"featuretype":    {"city"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building nominatim request: %w", err)
	}
	req.Header.Set("User-Agent", n.cfg.UserAgent)
	req.Header.Set("Accept-Language", n.cfg.AcceptLanguage)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling nominatim: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decoding nominatim response: %w", err)
	}

	out := make([]CityCandidate, 0, len(places))
	for _, p := range places {
		c, err := p.candidate()
		if err != nil {
			n.logger.Debug("skipping nominatim place", "place_id", p.PlaceID, "error", err)
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	return out, nil
}

func (p nominatimPlace) candidate() (CityCandidate, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return CityCandidate{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return CityCandidate{}, fmt.Errorf("lon: %w", err)
	}
	c := CityCandidate{
		PlaceID:     p.PlaceID,
		DisplayName: p.DisplayName,
		Lat:         lat,
		Lon:         lon,
		Importance:  p.Importance,
		Class:       p.Class,
		Type:        p.Type,
	}
	// south, north, west, east
	if len(p.BoundingBox) == 4 {
		for i, s := range p.BoundingBox {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return CityCandidate{}, fmt.Errorf("boundingbox: %w", err)
			}
			c.BoundingBox[i] = v
		}
	}
	return c, nil
}
