package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smartroad/telemetry/internal/config"
	"github.com/smartroad/telemetry/internal/coverage"
	"github.com/smartroad/telemetry/internal/httputil"
	"github.com/smartroad/telemetry/internal/identity"
	"github.com/smartroad/telemetry/internal/location"
	"github.com/smartroad/telemetry/internal/reporter"
	"github.com/smartroad/telemetry/internal/roadapi"
	"github.com/smartroad/telemetry/internal/version"
	"github.com/smartroad/telemetry/internal/warning"
)

var (
	devMode     = flag.Bool("dev", false, "Run in dev mode against a canned in-process backend")
	configPath  = flag.String("config", "", "Path to a JSON config file (optional)")
	fixtures    = flag.String("fixtures", "fixtures.json", "Path to the location fixtures file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// fixtureSample is one entry of the fixtures file.
type fixtureSample struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

func loadFixtures(path string) ([]location.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	var raw []fixtureSample
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures file: %w", err)
	}
	samples := make([]location.Sample, 0, len(raw))
	for _, f := range raw {
		samples = append(samples, location.Sample{
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
			Accuracy:  f.Accuracy,
			Speed:     f.Speed,
			Heading:   f.Heading,
		})
	}
	return samples, nil
}

// devTransport answers telemetry requests in-process, raising a collision
// warning on every fifth cycle so the display path can be exercised without
// a backend.
type devTransport struct {
	cycles atomic.Int64
}

func (t *devTransport) SendLocation(ctx context.Context, req *roadapi.TelemetryRequest) (*roadapi.TelemetryResponse, error) {
	n := t.cycles.Add(1)
	resp := &roadapi.TelemetryResponse{
		Success:         true,
		ServerTimestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if n%5 == 0 {
		resp.CollisionWarning = roadapi.WarningEnvelope{
			HasWarning: true,
			Warning: &roadapi.CollisionWarning{
				ObjectType:           "vehicle",
				RelativeDirection:    roadapi.DirectionFront,
				SpeedKPH:             35,
				Distance:             20,
				TTC:                  2.1,
				CollisionProbability: 0.7,
				Severity:             roadapi.SeverityMedium,
				Timestamp:            resp.ServerTimestamp,
			},
		}
	}
	return resp, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("telemetry %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.EmptyAppConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAppConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Identity persistence degrades to an in-memory store rather than
	// refusing to start.
	var store identity.Store
	sqlStore, err := identity.NewSQLiteStore(cfg.GetIdentityDBPath())
	if err != nil {
		log.Printf("identity store unavailable, using transient identity: %v", err)
		store = identity.NewMemStore()
	} else {
		defer sqlStore.Close()
		store = sqlStore
	}
	provider := identity.NewProvider(store, nil)

	samples, err := loadFixtures(*fixtures)
	if err != nil {
		log.Fatalf("failed to load location fixtures: %v", err)
	}
	source := location.NewSimSource(samples)

	var transport reporter.Transport
	var loader coverage.Loader
	if *devMode {
		dev := &devTransport{}
		transport = dev
		loader = coverageFixture{}
	} else {
		client := roadapi.NewClient(cfg.GetBaseURL(), httputil.NewStandardClient(&http.Client{
			Timeout: cfg.GetRequestTimeout(),
		}))
		transport = client
		loader = client
	}

	index := coverage.NewIndex(loader, nil)
	index.OnLoad(func(zones []roadapi.CoverageZone) {
		log.Printf("coverage ready: %d zones", len(zones))
	})
	index.OnError(func(msg string) {
		log.Printf("coverage load error: %s", msg)
	})
	if _, err := index.Load(ctx); err != nil {
		// not fatal, queries answer "not covered" until a refresh succeeds
		log.Printf("initial coverage load failed: %v", err)
	}

	lifecycle := warning.NewLifecycle(nil, cfg.GetWarningTTL())
	lifecycle.Subscribe(func(w *roadapi.CollisionWarning) {
		if w == nil {
			log.Print("warning cleared")
			return
		}
		log.Printf("COLLISION WARNING: %s %s, %.0fm, ttc %.1fs, severity %s",
			w.ObjectType, w.RelativeDirection, w.Distance, w.TTC, w.Severity)
	})

	rep := reporter.New(transport, source, provider, nil, reporter.Config{
		Interval:    cfg.GetInterval(),
		MaxRetries:  cfg.GetMaxRetries(),
		RetryDelay:  cfg.GetRetryDelay(),
		EnableRetry: cfg.GetEnableRetry(),
	})
	rep.OnUpdate(func(res reporter.Result) {
		if !res.Success {
			return
		}
		m := index.IsInCoverage(res.Sample.Latitude, res.Sample.Longitude)
		if m.InCoverage {
			names := make([]string, 0, len(m.CoveringZones))
			for _, z := range m.CoveringZones {
				names = append(names, z.Name)
			}
			log.Printf("position %.5f,%.5f monitored by %s",
				res.Sample.Latitude, res.Sample.Longitude, strings.Join(names, ", "))
		}
		if res.Warning == nil {
			lifecycle.Clear()
		}
	})
	rep.OnWarning(func(w *roadapi.CollisionWarning) {
		lifecycle.Activate(w)
	})
	rep.OnObjects(func(objects []roadapi.DetectedObject) {
		log.Printf("%d detected objects nearby", len(objects))
	})
	rep.OnError(func(msg string) {
		log.Printf("telemetry error: %s", msg)
	})

	if err := rep.Start(ctx); err != nil {
		log.Fatalf("failed to start reporter: %v", err)
	}
	log.Printf("reporting to %s every %v", cfg.GetBaseURL(), cfg.GetInterval())

	<-ctx.Done()
	rep.Stop()

	stats := rep.Stats()
	log.Printf("session: %d updates, %d ok, %d failed", stats.TotalUpdates, stats.Successful, stats.Failed)
}

// coverageFixture serves a single canned zone in dev mode.
type coverageFixture struct{}

func (coverageFixture) LoadCoverage(ctx context.Context) (*roadapi.CoverageResponse, error) {
	return &roadapi.CoverageResponse{
		Success:         true,
		ServerTimestamp: time.Now().UTC().Format(time.RFC3339),
		TotalCount:      1,
		Coverage: []roadapi.CoverageZone{
			{
				ID:       "cctv-dev-001",
				Name:     "Dev intersection",
				Location: roadapi.LatLng{Latitude: 37.5665, Longitude: 126.978},
				CoverageArea: roadapi.CoverageArea{
					Type: "polygon",
					Coordinates: [][][]float64{{
						{126.97, 37.56}, {126.97, 37.57}, {126.99, 37.57}, {126.99, 37.56},
					}},
				},
			},
		},
	}, nil
}
