// Package coverage caches the monitored polygonal coverage zones and answers
// point-in-polygon and nearest-zone queries against them.
package coverage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/smartroad/telemetry/internal/monitoring"
	"github.com/smartroad/telemetry/internal/roadapi"
	"github.com/smartroad/telemetry/internal/timeutil"
)

// minRingVertices is the smallest vertex count for a usable polygon ring.
const minRingVertices = 3

// LoadError reports a failed coverage fetch. The cache is left unchanged: a
// previously successful load keeps serving, an empty cache stays empty.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("coverage load failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader fetches the zone set from the backend.
type Loader interface {
	LoadCoverage(ctx context.Context) (*roadapi.CoverageResponse, error)
}

// Membership is the result of a point-in-coverage query. A point may be
// covered by zero, one, or several overlapping zones; all matches are
// returned.
type Membership struct {
	InCoverage    bool
	CoveringZones []roadapi.CoverageZone
}

// Stats describes the cache state.
type Stats struct {
	TotalZones    int
	LoadedAt      time.Time
	LastRefreshAt time.Time
	Loaded        bool
}

// Index is the in-memory geofence coverage index. Zones are loaded once,
// cached for the session, and mutated only by Load and Refresh; queries are
// pure reads over the cached set.
type Index struct {
	loader Loader
	clock  timeutil.Clock

	group singleflight.Group

	mu       sync.RWMutex
	zones    []roadapi.CoverageZone
	byID     map[string]int
	loaded   bool
	loadedAt time.Time
	lastAt   time.Time

	subMu    sync.Mutex
	loadSubs map[string]func([]roadapi.CoverageZone)
	errSubs  map[string]func(string)
}

// NewIndex creates an empty index over the given loader. A nil clock
// defaults to the real clock.
func NewIndex(loader Loader, clock timeutil.Clock) *Index {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Index{
		loader:   loader,
		clock:    clock,
		loadSubs: make(map[string]func([]roadapi.CoverageZone)),
		errSubs:  make(map[string]func(string)),
	}
}

// Load returns the cached zone list, fetching it on first use. Concurrent
// callers share a single in-flight fetch and all receive the identical
// result. On failure the cache is left unchanged and a LoadError is
// returned; error subscribers are notified.
func (x *Index) Load(ctx context.Context) ([]roadapi.CoverageZone, error) {
	x.mu.RLock()
	if x.loaded {
		zones := x.zones
		x.mu.RUnlock()
		return zones, nil
	}
	x.mu.RUnlock()

	return x.fetch(ctx)
}

// Refresh invalidates the cache and performs a new load. A refresh failure
// leaves the last-good cache in place; if no load ever succeeded the cache
// stays empty and every membership query answers "not covered".
func (x *Index) Refresh(ctx context.Context) ([]roadapi.CoverageZone, error) {
	return x.fetch(ctx)
}

// fetch coalesces concurrent loads through the singleflight group and
// installs the result on success.
func (x *Index) fetch(ctx context.Context) ([]roadapi.CoverageZone, error) {
	result, err, _ := x.group.Do("load", func() (interface{}, error) {
		resp, err := x.loader.LoadCoverage(ctx)
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			return nil, fmt.Errorf("backend reported failure")
		}
		return resp.Coverage, nil
	})
	if err != nil {
		lerr := &LoadError{Err: err}
		monitoring.Logf("coverage: %v", lerr)
		x.notifyError(lerr.Error())
		return nil, lerr
	}

	zones := result.([]roadapi.CoverageZone)
	x.install(zones)
	x.notifyLoaded(zones)
	return zones, nil
}

func (x *Index) install(zones []roadapi.CoverageZone) {
	byID := make(map[string]int, len(zones))
	for i, z := range zones {
		byID[z.ID] = i
	}

	now := x.clock.Now()
	x.mu.Lock()
	if !x.loaded {
		x.loadedAt = now
	}
	x.zones = zones
	x.byID = byID
	x.loaded = true
	x.lastAt = now
	x.mu.Unlock()

	monitoring.Logf("coverage: cached %d zones", len(zones))
}

// IsInCoverage tests the point against every cached zone's outer ring and
// returns all zones that contain it. With an empty cache every point is
// outside coverage. The result is a pure function of the cached zone set.
func (x *Index) IsInCoverage(lat, lon float64) Membership {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var covering []roadapi.CoverageZone
	for _, zone := range x.zones {
		coords := zone.CoverageArea.Coordinates
		if len(coords) == 0 || len(coords[0]) < minRingVertices {
			continue
		}
		if pointInRing(lon, lat, coords[0]) {
			covering = append(covering, zone)
		}
	}
	return Membership{InCoverage: len(covering) > 0, CoveringZones: covering}
}

// FindNearby returns the zones whose nominal location lies within radiusKm
// of the point, by great-circle distance. The polygon itself is not
// considered.
func (x *Index) FindNearby(lat, lon, radiusKm float64) []roadapi.CoverageZone {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var nearby []roadapi.CoverageZone
	for _, zone := range x.zones {
		d := haversineKm(lat, lon, zone.Location.Latitude, zone.Location.Longitude)
		if d <= radiusKm {
			nearby = append(nearby, zone)
		}
	}
	return nearby
}

// ZoneByID returns the cached zone with the given id.
func (x *Index) ZoneByID(id string) (roadapi.CoverageZone, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	i, ok := x.byID[id]
	if !ok {
		return roadapi.CoverageZone{}, false
	}
	return x.zones[i], true
}

// Zones returns a snapshot of the cached zone list.
func (x *Index) Zones() []roadapi.CoverageZone {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]roadapi.CoverageZone, len(x.zones))
	copy(out, x.zones)
	return out
}

// Loaded reports whether a load has succeeded this session.
func (x *Index) Loaded() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.loaded
}

// Stats returns cache statistics.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return Stats{
		TotalZones:    len(x.zones),
		LoadedAt:      x.loadedAt,
		LastRefreshAt: x.lastAt,
		Loaded:        x.loaded,
	}
}

// OnLoad registers fn to run after every successful load or refresh and
// returns a token for removal.
func (x *Index) OnLoad(fn func([]roadapi.CoverageZone)) string {
	x.subMu.Lock()
	defer x.subMu.Unlock()
	token := uuid.NewString()
	x.loadSubs[token] = fn
	return token
}

// OnError registers fn to run on load failures and returns a token for
// removal.
func (x *Index) OnError(fn func(string)) string {
	x.subMu.Lock()
	defer x.subMu.Unlock()
	token := uuid.NewString()
	x.errSubs[token] = fn
	return token
}

// Unsubscribe removes the subscription with the given token.
func (x *Index) Unsubscribe(token string) {
	x.subMu.Lock()
	defer x.subMu.Unlock()
	delete(x.loadSubs, token)
	delete(x.errSubs, token)
}

func (x *Index) notifyLoaded(zones []roadapi.CoverageZone) {
	x.subMu.Lock()
	fns := make([]func([]roadapi.CoverageZone), 0, len(x.loadSubs))
	for _, fn := range x.loadSubs {
		fns = append(fns, fn)
	}
	x.subMu.Unlock()

	for _, fn := range fns {
		invokeLoadSub(fn, zones)
	}
}

func (x *Index) notifyError(msg string) {
	x.subMu.Lock()
	fns := make([]func(string), 0, len(x.errSubs))
	for _, fn := range x.errSubs {
		fns = append(fns, fn)
	}
	x.subMu.Unlock()

	for _, fn := range fns {
		invokeErrSub(fn, msg)
	}
}

// invokeLoadSub shields the index from subscriber panics.
func invokeLoadSub(fn func([]roadapi.CoverageZone), zones []roadapi.CoverageZone) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("coverage: load subscriber panicked: %v", r)
		}
	}()
	fn(zones)
}

func invokeErrSub(fn func(string), msg string) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("coverage: error subscriber panicked: %v", r)
		}
	}()
	fn(msg)
}
