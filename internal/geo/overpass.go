// Package geo talks to the OpenStreetMap services used to anchor quests:
// Overpass for points of interest and Nominatim for city search.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/playperu/photoquest/internal/photoquest"
)

type Source string

const (
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

// Reasons attached to a Resolution.
const (
	ReasonOK                 = "ok"
	ReasonTimeout            = "timeout"
	ReasonHTTPStatus         = "http_status"
	ReasonTransport          = "transport"
	ReasonDecode             = "decode"
	ReasonEmpty              = "empty"
	ReasonInvalidCoordinates = "invalid_coordinates"
)

// Resolution is a POI set plus where it came from, so callers and
// operators can tell a healthy provider from a fallback.
type Resolution struct {
	POIs   []photoquest.PointOfInterest `json:"pois"`
	Source Source                       `json:"source"`
	Reason string                       `json:"reason"`
}

func (r Resolution) Fallback() bool { return r.Source == SourceFallback }

// Recorder receives one observation per resolution.
type Recorder interface {
	POIResolution(source, reason string)
}

// Category is one OSM tag key with the values we accept for it.
type Category struct {
	Key    string
	Values []string
}

// Categories is the allow-list sent to Overpass. Key order also decides
// which tag names the POI category.
var Categories = []Category{
	{Key: "tourism", Values: []string{"attraction", "viewpoint", "museum", "artwork", "gallery"}},
	{Key: "historic", Values: []string{"monument", "memorial", "castle", "ruins", "building"}},
	{Key: "amenity", Values: []string{"place_of_worship", "townhall", "theatre"}},
}

type OverpassConfig struct {
	Endpoint      string
	Timeout       time.Duration
	Limit         int
	DefaultRadius float64
	UserAgent     string
}

type Overpass struct {
	cfg      OverpassConfig
	client   *http.Client
	logger   *slog.Logger
	recorder Recorder
}

func NewOverpass(cfg OverpassConfig, client *http.Client, logger *slog.Logger, rec Recorder) *Overpass {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.DefaultRadius <= 0 {
		cfg.DefaultRadius = photoquest.DefaultRadius
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Overpass{cfg: cfg, client: client, logger: logger, recorder: rec}
}

// FetchPOIs never fails: every error path yields the fallback list.
func (o *Overpass) FetchPOIs(ctx context.Context, lat, lon, radius float64) []photoquest.PointOfInterest {
	return o.Resolve(ctx, lat, lon, radius).POIs
}

func (o *Overpass) Resolve(ctx context.Context, lat, lon, radius float64) Resolution {
	res := o.resolve(ctx, lat, lon, radius)
	if o.recorder != nil {
		o.recorder.POIResolution(string(res.Source), res.Reason)
	}
	return res
}

func (o *Overpass) resolve(ctx context.Context, lat, lon, radius float64) Resolution {
	if !photoquest.ValidCoordinates(lat, lon) {
		return o.fallback(ReasonInvalidCoordinates, nil)
	}
	if !(radius > 0) {
		radius = o.cfg.DefaultRadius
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	endpoint := o.cfg.Endpoint + "?data=" + url.QueryEscape(buildQuery(lat, lon, radius))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return o.fallback(ReasonTransport, err)
	}
	if o.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", o.cfg.UserAgent)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return o.fallback(ReasonTimeout, err)
		}
		return o.fallback(ReasonTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return o.fallback(ReasonHTTPStatus, fmt.Errorf("overpass status %d", resp.StatusCode))
	}

	var body overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return o.fallback(ReasonTimeout, err)
		}
		return o.fallback(ReasonDecode, err)
	}

	pois := o.collect(body.Elements)
	if len(pois) == 0 {
		return o.fallback(ReasonEmpty, nil)
	}
	return Resolution{POIs: pois, Source: SourceProvider, Reason: ReasonOK}
}

func (o *Overpass) fallback(reason string, err error) Resolution {
	attrs := []any{"reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	o.logger.Warn("overpass unavailable, using fallback POIs", attrs...)
	return Resolution{POIs: FallbackPOIs(), Source: SourceFallback, Reason: reason}
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (e overpassElement) coordinates() (lat, lon float64, ok bool) {
	if e.Lat != nil && e.Lon != nil {
		return *e.Lat, *e.Lon, true
	}
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

func (e overpassElement) name() string {
	if n := strings.TrimSpace(e.Tags["name"]); n != "" {
		return n
	}
	return strings.TrimSpace(e.Tags["description"])
}

func (e overpassElement) category() string {
	for _, c := range Categories {
		if v := e.Tags[c.Key]; v != "" {
			return v
		}
	}
	return "point_of_interest"
}

func (o *Overpass) collect(elements []overpassElement) []photoquest.PointOfInterest {
	pois := make([]photoquest.PointOfInterest, 0, o.cfg.Limit)
	seenIDs := make(map[string]bool)
	seenNames := make(map[string]bool)

	for _, el := range elements {
		if len(pois) == o.cfg.Limit {
			break
		}
		lat, lon, ok := el.coordinates()
		if !ok {
			continue
		}
		poi := photoquest.PointOfInterest{
			ID:       el.ID,
			Lat:      lat,
			Lon:      lon,
			Name:     el.name(),
			Category: el.category(),
		}
		if !poi.Valid() {
			continue
		}
		idKey := el.Type + "/" + strconv.FormatInt(el.ID, 10)
		nameKey := strings.ToLower(poi.Name)
		if seenIDs[idKey] || seenNames[nameKey] {
			continue
		}
		seenIDs[idKey] = true
		seenNames[nameKey] = true
		pois = append(pois, poi)
	}
	return pois
}

func buildQuery(lat, lon, radius float64) string {
	around := fmt.Sprintf("(around:%s,%s,%s)",
		strconv.FormatFloat(radius, 'f', 0, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
	)

	var b strings.Builder
	b.WriteString("[out:json][timeout:10];\n(\n")
	for _, c := range Categories {
		fmt.Fprintf(&b, "  nwr[%q~%q]%s;\n", c.Key, strings.Join(c.Values, "|"), around)
	}
	b.WriteString(");\nout center 15;")
	return b.String()
}
