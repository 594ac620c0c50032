package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"timeslider-choropleth/pkg/database"
	"timeslider-choropleth/pkg/layerconfig"
	"timeslider-choropleth/pkg/mapview"
	"timeslider-choropleth/pkg/pagecache"
	"timeslider-choropleth/pkg/ratelimit"
)

var configPath = flag.String("config", "", "HCL map definition; without it a built-in demo map is served")
var outPath = flag.String("out", "", "Write the rendered HTML page to this file and exit")
var domain = flag.String("domain", "", "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var dbType = flag.String("db-type", "sqlite", "Type of the database driver: sqlite, chai, genji, duckdb, or pgx (postgresql)")
var dbPath = flag.String("db-path", "", "Path to the database file (defaults to the current folder, applicable for file based drivers)")
var dbConn = flag.String("db-conn", "", "Full PostgreSQL DSN; overrides the other pgx flags")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (applicable for pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (applicable for pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (applicable for pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (applicable for pgx driver)")
var dbName = flag.String("db-name", "TimeSlider", "Database name (applicable for pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var dbInit = flag.Bool("db-init", false, "Create the style tables if they are missing")
var port = flag.Int("port", 8765, "Port for running the server")
var cacheTTL = flag.Duration("cache-ttl", 30*time.Second, "How long rendered pages are reused; 0 disables caching")
var qrCooldown = flag.Duration("qr-cooldown", 2*time.Second, "Minimum pause between QR renders for one client")
var version = flag.Bool("version", false, "Show the application version")

var CompileVersion = "dev"

// withServerHeader wraps h, adding "Server: timeslider-choropleth/<CompileVersion>".
//
// HEAD on "/" answers 200 without a body so probes can check liveness.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "timeslider-choropleth/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveWithDomain runs
//   - :80  with the ACME HTTP-01 challenge and a 301 to https://<domain>/...
//   - :443 with Let's Encrypt certificates.
//
// When autocert cannot issue for a host (IP, odd SNI) the last good
// certificate is served instead. Errors are only logged.
func serveWithDomain(domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			if host == domain || host == "www."+domain {
				return nil
			}
			// IP-адрес: не блокируем, просто не пытаемся получить cert.
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	go func() {
		mux80 := http.NewServeMux()
		mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
		mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			target := "https://" + domain + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
		})

		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := (&http.Server{
			Addr:              ":80",
			Handler:           mux80,
			ReadHeaderTimeout: 10 * time.Second,
		}).ListenAndServe(); err != nil {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12

	// fallback-сертификат для IP и странных SNI
	var defaultCert atomic.Pointer[tls.Certificate]
	go func() {
		for defaultCert.Load() == nil {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				defaultCert.Store(c)
				return
			}
			time.Sleep(time.Minute)
		}
	}()
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if c := defaultCert.Load(); c != nil {
			return c, nil
		}
		return nil, err
	}

	log.Printf("HTTPS server for %s ➜ :443", domain)
	if err := (&http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}).ListenAndServeTLS("", ""); err != nil {
		log.Printf("HTTPS server error: %v", err)
	}
}

func dbConfig() database.Config {
	return database.Config{
		DBType:    *dbType,
		DBPath:    *dbPath,
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
		Port:      *port,
	}
}

// needsDatabase reports whether any layer in the file at path reads from the
// database. A broken file is reported by the first build instead.
func needsDatabase(path string) bool {
	cfg, err := layerconfig.Load(path)
	if err != nil {
		return false
	}
	for _, l := range cfg.Layers {
		if l.Source != nil {
			return true
		}
	}
	return false
}

// builder returns the function that assembles the map on every cache miss.
// The config file is re-read each time so edits show up after the TTL or a
// SIGHUP.
func builder(path string, db *database.Database) func(context.Context) (*mapview.Map, error) {
	if path == "" {
		return func(context.Context) (*mapview.Map, error) { return demoMap() }
	}
	return func(ctx context.Context) (*mapview.Map, error) {
		cfg, err := layerconfig.Load(path)
		if err != nil {
			return nil, err
		}
		return layerconfig.Build(ctx, cfg, db)
	}
}

func writePage(ctx context.Context, build func(context.Context) (*mapview.Map, error), path string) error {
	m, err := build(ctx)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func main() {
	// 1. Флаги и версия
	flag.Parse()

	if *version {
		fmt.Printf("timeslider-choropleth version %s\n", CompileVersion)
		return
	}

	// 2. База данных, только если слой её просит
	var db *database.Database
	if *dbInit || (*configPath != "" && needsDatabase(*configPath)) {
		var err error
		db, err = database.NewDatabase(dbConfig())
		if err != nil {
			log.Fatalf("DB init: %v", err)
		}
		defer db.Close()
		if *dbInit {
			if err := db.InitSchema(context.Background()); err != nil {
				log.Fatalf("DB schema: %v", err)
			}
		}
	}

	build := builder(*configPath, db)
	if *configPath == "" {
		log.Printf("No -config given, using the built-in demo map")
	}

	// 3. Однократный рендер в файл
	if *outPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := writePage(ctx, build, *outPath); err != nil {
			log.Fatalf("render: %v", err)
		}
		log.Printf("Map written to %s", *outPath)
		return
	}

	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Println("⚠  Binding to :80 / :443 requires super-user rights; run with sudo or as root.")
	}

	// 4. Маршруты
	cache := pagecache.New(*cacheTTL)
	defer cache.Close()
	srv := &server{build: build, cache: cache, limiter: ratelimit.New(*qrCooldown)}

	// Validate once at startup so a broken config fails fast.
	if _, err := build(context.Background()); err != nil {
		log.Fatalf("map: %v", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := cache.Purge(context.Background()); err != nil && !errors.Is(err, pagecache.ErrDisabled) {
				log.Printf("cache purge: %v", err)
				continue
			}
			log.Printf("SIGHUP: page cache purged")
		}
	}()

	rootHandler := withServerHeader(srv.routes())

	// 5. HTTP/HTTPS-серверы
	if *domain != "" {
		go serveWithDomain(*domain, rootHandler)
	} else {
		addr := fmt.Sprintf(":%d", *port)
		go func() {
			log.Printf("HTTP server ➜ http://localhost%s", addr)
			if err := (&http.Server{
				Addr:              addr,
				Handler:           rootHandler,
				ReadHeaderTimeout: 10 * time.Second,
			}).ListenAndServe(); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	select {}
}
