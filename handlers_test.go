package main

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeslider-choropleth/pkg/choropleth"
	"timeslider-choropleth/pkg/mapview"
	"timeslider-choropleth/pkg/pagecache"
	"timeslider-choropleth/pkg/ratelimit"
)

func newTestServer(t *testing.T, ttl time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var builds atomic.Int32
	cache := pagecache.New(ttl)
	t.Cleanup(cache.Close)
	srv := &server{
		build: func(context.Context) (*mapview.Map, error) {
			builds.Add(1)
			return demoMap()
		},
		cache:   cache,
		limiter: ratelimit.New(0),
	}
	ts := httptest.NewServer(withServerHeader(srv.routes()))
	t.Cleanup(ts.Close)
	return ts, &builds
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.String()
}

func TestMapPageIsCached(t *testing.T) {
	ts, builds := newTestServer(t, time.Minute)

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "timeslider-choropleth/"+CompileVersion, resp.Header.Get("Server"))
	assert.Contains(t, body, "L.map(")
	assert.Contains(t, body, "time_slider_choropleth_")
	assert.Contains(t, body, "Rainfall (demo)")

	_, again := get(t, ts.URL+"/")
	assert.Equal(t, body, again)
	assert.Equal(t, int32(1), builds.Load())
}

func TestMapPageWithoutCache(t *testing.T) {
	ts, builds := newTestServer(t, 0)
	get(t, ts.URL+"/")
	get(t, ts.URL+"/")
	assert.Equal(t, int32(2), builds.Load())
}

func TestHeadRootIsLiveness(t *testing.T) {
	ts, builds := newTestServer(t, time.Minute)
	resp, err := http.Head(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(0), builds.Load())
}

func TestUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, time.Minute)
	resp, _ := get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLayerScript(t *testing.T) {
	ts, _ := newTestServer(t, time.Minute)

	resp, body := get(t, ts.URL+"/layers/Rainfall%20(demo).js?map=myMap")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/javascript; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, `myMap.on("overlayadd"`)
	assert.NotContains(t, body, "<script")

	resp, _ = get(t, ts.URL+"/layers/absent.js")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/layers/Rainfall%20(demo)")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = get(t, ts.URL+"/layers/Rainfall%20(demo).js?map=a.b")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBuildFailureIs500(t *testing.T) {
	srv := &server{build: func(context.Context) (*mapview.Map, error) {
		return nil, errors.New("database is down")
	}}
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database is down")
}

func TestQRPng(t *testing.T) {
	ts, _ := newTestServer(t, time.Minute)
	resp, body := get(t, ts.URL+"/qrpng?u=https://example.org/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	img, err := png.Decode(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 1024, img.Bounds().Dx())
}

func TestDemoMap(t *testing.T) {
	m, err := demoMap()
	require.NoError(t, err)
	require.Len(t, m.Layers(), 1)

	layer := m.Layers()[0].(*choropleth.TimeSliderChoropleth)
	assert.Len(t, layer.Timestamps(), demoSteps)
	assert.Len(t, layer.Labels(), demoSteps)
	assert.True(t, layer.Highlight())
	assert.Len(t, layer.StyleDict(), 6)
}

func TestWritePageAndBuilder(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "map.html")
	require.NoError(t, writePage(context.Background(), builder("", nil), out))
	page, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Time slider choropleth demo")

	cfgPath := filepath.Join(dir, "map.hcl")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.geojson"), []byte(`{"type":"Feature","id":"a","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}}`), 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("map {\n title = \"From file\"\n}\nlayer \"a\" {\n data = \"d.geojson\"\n values = { a = { \"1\" = 1 } }\n labels = [\"one\"]\n}\n"), 0o644))
	assert.False(t, needsDatabase(cfgPath))

	m, err := builder(cfgPath, nil)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "From file", m.Title)

	require.NoError(t, os.WriteFile(cfgPath, []byte("layer \"a\" {\n data = \"d.geojson\"\n source = \"database\"\n}\n"), 0o644))
	assert.True(t, needsDatabase(cfgPath))
	_, err = builder(cfgPath, nil)(context.Background())
	assert.Error(t, err)
}
