package geo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct{ source, reason string }

type fakeRecorder struct{ calls []recorded }

func (f *fakeRecorder) POIResolution(source, reason string) {
	f.calls = append(f.calls, recorded{source, reason})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOverpass(t *testing.T, h http.HandlerFunc, timeout time.Duration) (*Overpass, *fakeRecorder) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	rec := &fakeRecorder{}
	o := NewOverpass(OverpassConfig{Endpoint: srv.URL, Timeout: timeout}, srv.Client(), discardLogger(), rec)
	return o, rec
}

const leipzigElements = `{"elements":[
	{"type":"node","id":11,"lat":51.3397,"lon":12.3731,"tags":{"name":"Altes Rathaus","amenity":"townhall"}},
	{"type":"way","id":12,"center":{"lat":51.3387,"lon":12.3810},"tags":{"name":"Thomaskirche","amenity":"place_of_worship"}},
	{"type":"node","id":13,"lat":51.3420,"lon":12.3740,"tags":{"tourism":"artwork"}},
	{"type":"way","id":14,"tags":{"name":"No Coordinates","historic":"ruins"}},
	{"type":"node","id":15,"lat":51.3398,"lon":12.3732,"tags":{"name":"altes rathaus","tourism":"museum"}},
	{"type":"node","id":16,"lat":51.3300,"lon":12.3600,"tags":{"description":"Bach-Denkmal","historic":"monument"}},
	{"type":"node","id":11,"lat":51.3397,"lon":12.3731,"tags":{"name":"Duplicate Id","amenity":"townhall"}}
]}`

func TestResolveFromProvider(t *testing.T) {
	var gotQuery string
	o, rec := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("data")
		w.Write([]byte(leipzigElements))
	}, time.Second)

	res := o.Resolve(context.Background(), 51.34, 12.37, 500)

	require.Equal(t, SourceProvider, res.Source)
	require.Len(t, res.POIs, 3)
	assert.Equal(t, "Altes Rathaus", res.POIs[0].Name)
	assert.Equal(t, "townhall", res.POIs[0].Category)
	assert.Equal(t, "Thomaskirche", res.POIs[1].Name)
	assert.Equal(t, 51.3387, res.POIs[1].Lat)
	assert.Equal(t, "Bach-Denkmal", res.POIs[2].Name)
	assert.Equal(t, "monument", res.POIs[2].Category)

	assert.Contains(t, gotQuery, "[out:json][timeout:10]")
	assert.Contains(t, gotQuery, `nwr["tourism"~"attraction|viewpoint|museum|artwork|gallery"](around:500,51.34,12.37)`)
	assert.Contains(t, gotQuery, "out center 15;")
	assert.Equal(t, []recorded{{"provider", ReasonOK}}, rec.calls)
}

func TestResolveCapsResults(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"elements":[`)
	for i := 0; i < 30; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"type":"node","id":%d,"lat":51.3,"lon":12.3,"tags":{"name":"Place %d"}}`, i+1, i+1)
	}
	b.WriteString(`]}`)
	body := b.String()

	o, _ := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}, time.Second)

	pois := o.FetchPOIs(context.Background(), 51.3, 12.3, 800)
	assert.Len(t, pois, 10)
}

func TestResolveFallback(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantReason string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusGatewayTimeout)
			},
			wantReason: ReasonHTTPStatus,
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html>rate limited</html>`))
			},
			wantReason: ReasonDecode,
		},
		{
			name: "empty result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"elements":[]}`))
			},
			wantReason: ReasonEmpty,
		},
		{
			name: "only unnamed elements",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"elements":[{"type":"node","id":1,"lat":1,"lon":1,"tags":{"tourism":"artwork"}}]}`))
			},
			wantReason: ReasonEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, rec := newTestOverpass(t, tt.handler, time.Second)

			res := o.Resolve(context.Background(), 51.34, 12.37, 800)

			assert.Equal(t, SourceFallback, res.Source)
			assert.Equal(t, tt.wantReason, res.Reason)
			assert.Equal(t, FallbackPOIs(), res.POIs)
			assert.Equal(t, []recorded{{"fallback", tt.wantReason}}, rec.calls)
		})
	}
}

func TestResolveTimeoutUsesFallbackVerbatim(t *testing.T) {
	o, rec := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	pois := o.FetchPOIs(context.Background(), 50.415, 12.169, 800)

	require.Len(t, pois, 5)
	assert.Equal(t, FallbackPOIs(), pois)
	assert.Equal(t, "St.-Jakobi-Kirche", pois[0].Name)
	assert.Equal(t, []recorded{{"fallback", ReasonTimeout}}, rec.calls)
}

func TestResolveInvalidCoordinates(t *testing.T) {
	called := false
	o, _ := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, time.Second)

	res := o.Resolve(context.Background(), 123, 12, 800)

	assert.False(t, called)
	assert.True(t, res.Fallback())
	assert.Equal(t, ReasonInvalidCoordinates, res.Reason)
}

func TestResolveAlwaysReturnsValidPOIs(t *testing.T) {
	o, _ := newTestOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(leipzigElements))
	}, time.Second)

	for _, radius := range []float64{-1, 0, 1, 800, 5000} {
		pois := o.FetchPOIs(context.Background(), 51.34, 12.37, radius)
		require.NotEmpty(t, pois)
		for _, p := range pois {
			assert.True(t, p.Valid(), "poi %+v", p)
		}
	}
}

func TestFallbackPOIsIsACopy(t *testing.T) {
	a := FallbackPOIs()
	a[0].Name = "changed"
	assert.Equal(t, "St.-Jakobi-Kirche", FallbackPOIs()[0].Name)
}
