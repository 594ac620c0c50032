package main

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"log"
	"net/http"
	"strings"
	"syscall"

	"timeslider-choropleth/pkg/choropleth"
	"timeslider-choropleth/pkg/colormap"
	"timeslider-choropleth/pkg/mapview"
	"timeslider-choropleth/pkg/pagecache"
	"timeslider-choropleth/pkg/qrshare"
	"timeslider-choropleth/pkg/ratelimit"
)

// server answers page requests. build is called on every cache miss.
type server struct {
	build   func(context.Context) (*mapview.Map, error)
	cache   *pagecache.Cache
	limiter *ratelimit.Limiter
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.limiter.Middleware(ratelimit.General, http.HandlerFunc(s.mapHandler)))
	mux.Handle("GET /layers/{file}", s.limiter.Middleware(ratelimit.General, http.HandlerFunc(s.layerScriptHandler)))
	mux.Handle("GET /qrpng", s.limiter.Middleware(ratelimit.Heavy, http.HandlerFunc(qrPngHandler)))
	return mux
}

// cached serves key from the page cache, falling back to a direct render
// when caching is disabled.
func (s *server) cached(ctx context.Context, key string, load pagecache.Loader) ([]byte, error) {
	data, err := s.cache.Get(ctx, key, load)
	if errors.Is(err, pagecache.ErrDisabled) {
		return load(ctx)
	}
	return data, err
}

// mapHandler renders the whole page: Leaflet, tiles and every layer.
func (s *server) mapHandler(w http.ResponseWriter, r *http.Request) {
	page, err := s.cached(r.Context(), "/", func(ctx context.Context) ([]byte, error) {
		m, err := s.build(ctx)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := m.Render(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	if err != nil {
		log.Printf("Error rendering map: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	writeBody(w, page)
}

// layerScriptHandler serves /layers/<name>.js, one layer's script alone, for
// embedding into a page that already owns a Leaflet map. ?map= names that
// map's JavaScript variable; the default is the generated page map.
func (s *server) layerScriptHandler(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("file"), ".js")
	if !ok || name == "" {
		http.NotFound(w, r)
		return
	}
	mapVar := r.URL.Query().Get("map")

	var errNoLayer = errors.New("no such layer")
	script, err := s.cached(r.Context(), "/layers/"+name+"?map="+mapVar, func(ctx context.Context) ([]byte, error) {
		m, err := s.build(ctx)
		if err != nil {
			return nil, err
		}
		l, ok := m.Layer(name)
		if !ok {
			return nil, errNoLayer
		}
		target := mapVar
		if target == "" {
			target = m.Name()
		}
		var buf bytes.Buffer
		if err := l.Render(&buf, target); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	})
	switch {
	case errors.Is(err, errNoLayer):
		http.NotFound(w, r)
		return
	case errors.Is(err, choropleth.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Printf("Error rendering layer %q: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	writeBody(w, script)
}

// qrPngHandler encodes ?u= (or the referring page) as a share QR code.
func qrPngHandler(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("u")
	if u == "" {
		if ref := r.Referer(); ref != "" {
			u = ref
		} else {
			scheme := "http"
			if r.TLS != nil {
				scheme = "https"
			}
			u = scheme + "://" + r.Host + "/"
		}
	}

	var swatch []color.RGBA
	for _, hex := range colormap.YlOrRd {
		if c, err := colormap.ParseHex(hex); err == nil {
			swatch = append(swatch, c)
		}
	}

	var buf bytes.Buffer
	if err := qrshare.EncodePNG(&buf, u, qrshare.Options{TargetPx: 1024, Swatch: swatch, SwatchCols: len(swatch)}); err != nil {
		http.Error(w, "QR encode: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Disposition", "inline; filename=\"qr.png\"")
	writeBody(w, buf.Bytes())
}

func writeBody(w http.ResponseWriter, body []byte) {
	if _, err := w.Write(body); err != nil {
		if isClientDisconnect(err) {
			log.Printf("client disconnected while writing response")
		} else {
			log.Printf("Error writing response: %v", err)
		}
	}
}

// isClientDisconnect returns true for network errors indicating that the
// client has gone away while we were writing the response. These are normal
// and should not be logged as errors.
func isClientDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
