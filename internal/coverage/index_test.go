package coverage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartroad/telemetry/internal/monitoring"
	"github.com/smartroad/telemetry/internal/roadapi"
	"github.com/smartroad/telemetry/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func testZones() []roadapi.CoverageZone {
	return []roadapi.CoverageZone{
		{
			ID:       "cctv-001",
			Name:     "Gangnam intersection",
			Location: roadapi.LatLng{Latitude: 0.5, Longitude: 0.5},
			CoverageArea: roadapi.CoverageArea{
				Type:        "polygon",
				Coordinates: [][][]float64{{{0, 0}, {0, 1}, {1, 1}, {1, 0}}},
			},
		},
		{
			ID:       "cctv-002",
			Name:     "Mapo bridge north",
			Location: roadapi.LatLng{Latitude: 10.5, Longitude: 10.5},
			CoverageArea: roadapi.CoverageArea{
				Type:        "polygon",
				Coordinates: [][][]float64{{{10, 10}, {10, 11}, {11, 11}, {11, 10}}},
			},
		},
	}
}

// mockLoader serves scripted coverage responses and counts calls. An optional
// gate blocks the fetch until released so tests can hold a load in flight.
type mockLoader struct {
	mu    sync.Mutex
	calls int32
	gate  chan struct{}

	zones []roadapi.CoverageZone
	err   error
}

func (l *mockLoader) LoadCoverage(ctx context.Context) (*roadapi.CoverageResponse, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return &roadapi.CoverageResponse{
		Success:    true,
		TotalCount: len(l.zones),
		Coverage:   l.zones,
	}, nil
}

func (l *mockLoader) setError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *mockLoader) callCount() int32 {
	return atomic.LoadInt32(&l.calls)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("first load fetches and caches", func(t *testing.T) {
		t.Parallel()
		loader := &mockLoader{zones: testZones()}
		idx := NewIndex(loader, nil)

		zones, err := idx.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(testZones(), zones))
		assert.True(t, idx.Loaded())

		// second call is served from cache
		again, err := idx.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(zones, again))
		assert.EqualValues(t, 1, loader.callCount())
	})

	t.Run("concurrent loads share one fetch", func(t *testing.T) {
		t.Parallel()
		loader := &mockLoader{zones: testZones(), gate: make(chan struct{})}
		idx := NewIndex(loader, nil)

		results := make(chan []roadapi.CoverageZone, 2)
		for i := 0; i < 2; i++ {
			go func() {
				zones, err := idx.Load(context.Background())
				assert.NoError(t, err)
				results <- zones
			}()
		}

		// let both callers join the in-flight fetch, then release it
		require.Eventually(t, func() bool {
			return loader.callCount() >= 1
		}, time.Second, time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(loader.gate)

		a := <-results
		b := <-results
		assert.Empty(t, cmp.Diff(a, b))
		assert.EqualValues(t, 1, loader.callCount(), "exactly one network request")
	})

	t.Run("failed first load leaves cache empty", func(t *testing.T) {
		t.Parallel()
		loader := &mockLoader{err: errors.New("backend down")}
		idx := NewIndex(loader, nil)

		var errMsgs []string
		idx.OnError(func(msg string) { errMsgs = append(errMsgs, msg) })

		_, err := idx.Load(context.Background())
		var lerr *LoadError
		require.ErrorAs(t, err, &lerr)
		assert.False(t, idx.Loaded())
		assert.Len(t, errMsgs, 1)

		m := idx.IsInCoverage(0.5, 0.5)
		assert.False(t, m.InCoverage, "empty cache answers not covered")
	})

	t.Run("backend-reported failure is a load error", func(t *testing.T) {
		t.Parallel()
		// Success=false even though the HTTP exchange worked
		failing := loaderFunc(func(ctx context.Context) (*roadapi.CoverageResponse, error) {
			return &roadapi.CoverageResponse{Success: false}, nil
		})
		idx := NewIndex(failing, nil)
		_, err := idx.Load(context.Background())
		var lerr *LoadError
		require.ErrorAs(t, err, &lerr)
		assert.False(t, idx.Loaded())
	})
}

// loaderFunc adapts a function to the Loader interface.
type loaderFunc func(ctx context.Context) (*roadapi.CoverageResponse, error)

func (f loaderFunc) LoadCoverage(ctx context.Context) (*roadapi.CoverageResponse, error) {
	return f(ctx)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	t.Run("refresh replaces the cache", func(t *testing.T) {
		t.Parallel()
		loader := &mockLoader{zones: testZones()[:1]}
		idx := NewIndex(loader, nil)

		zones, err := idx.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, zones, 1)

		loader.mu.Lock()
		loader.zones = testZones()
		loader.mu.Unlock()

		zones, err = idx.Refresh(context.Background())
		require.NoError(t, err)
		assert.Len(t, zones, 2)
		assert.Len(t, idx.Zones(), 2)
		assert.EqualValues(t, 2, loader.callCount())
	})

	t.Run("failed refresh keeps last-good cache", func(t *testing.T) {
		t.Parallel()
		loader := &mockLoader{zones: testZones()}
		idx := NewIndex(loader, nil)

		_, err := idx.Load(context.Background())
		require.NoError(t, err)

		loader.setError(errors.New("backend down"))
		_, err = idx.Refresh(context.Background())
		require.Error(t, err)

		assert.True(t, idx.Loaded())
		assert.Len(t, idx.Zones(), 2, "previous zones keep serving")
		assert.True(t, idx.IsInCoverage(0.5, 0.5).InCoverage)
	})
}

func TestIsInCoverage(t *testing.T) {
	t.Parallel()

	loader := &mockLoader{zones: testZones()}
	idx := NewIndex(loader, nil)
	_, err := idx.Load(context.Background())
	require.NoError(t, err)

	t.Run("inside one zone", func(t *testing.T) {
		t.Parallel()
		m := idx.IsInCoverage(0.5, 0.5)
		require.True(t, m.InCoverage)
		require.Len(t, m.CoveringZones, 1)
		assert.Equal(t, "cctv-001", m.CoveringZones[0].ID)
	})

	t.Run("outside all zones", func(t *testing.T) {
		t.Parallel()
		m := idx.IsInCoverage(5, 5)
		assert.False(t, m.InCoverage)
		assert.Empty(t, m.CoveringZones)
	})

	t.Run("overlapping zones all reported", func(t *testing.T) {
		t.Parallel()
		zones := testZones()
		overlap := zones[0]
		overlap.ID = "cctv-003"
		over := NewIndex(&mockLoader{zones: append(zones, overlap)}, nil)
		_, err := over.Load(context.Background())
		require.NoError(t, err)

		m := over.IsInCoverage(0.5, 0.5)
		require.True(t, m.InCoverage)
		assert.Len(t, m.CoveringZones, 2)
	})

	t.Run("degenerate ring is skipped", func(t *testing.T) {
		t.Parallel()
		bad := roadapi.CoverageZone{
			ID: "cctv-bad",
			CoverageArea: roadapi.CoverageArea{
				Type:        "polygon",
				Coordinates: [][][]float64{{{0, 0}, {1, 1}}},
			},
		}
		degen := NewIndex(&mockLoader{zones: []roadapi.CoverageZone{bad}}, nil)
		_, err := degen.Load(context.Background())
		require.NoError(t, err)
		assert.False(t, degen.IsInCoverage(0.5, 0.5).InCoverage)
	})
}

func TestFindNearby(t *testing.T) {
	t.Parallel()

	loader := &mockLoader{zones: testZones()}
	idx := NewIndex(loader, nil)
	_, err := idx.Load(context.Background())
	require.NoError(t, err)

	near := idx.FindNearby(0.5, 0.5, 1)
	require.Len(t, near, 1)
	assert.Equal(t, "cctv-001", near[0].ID)

	// both zone locations are within ~1600 km of each other
	all := idx.FindNearby(0.5, 0.5, 2000)
	assert.Len(t, all, 2)

	assert.Empty(t, idx.FindNearby(-45, -45, 1))
}

func TestZoneByID(t *testing.T) {
	t.Parallel()

	idx := NewIndex(&mockLoader{zones: testZones()}, nil)
	_, err := idx.Load(context.Background())
	require.NoError(t, err)

	zone, ok := idx.ZoneByID("cctv-002")
	require.True(t, ok)
	assert.Equal(t, "Mapo bridge north", zone.Name)

	_, ok = idx.ZoneByID("cctv-999")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	loader := &mockLoader{zones: testZones()}
	idx := NewIndex(loader, clock)

	s := idx.Stats()
	assert.False(t, s.Loaded)
	assert.Zero(t, s.TotalZones)

	_, err := idx.Load(context.Background())
	require.NoError(t, err)

	s = idx.Stats()
	assert.True(t, s.Loaded)
	assert.Equal(t, 2, s.TotalZones)
	assert.Equal(t, start, s.LoadedAt)
	assert.Equal(t, start, s.LastRefreshAt)

	clock.Advance(time.Minute)
	_, err = idx.Refresh(context.Background())
	require.NoError(t, err)

	s = idx.Stats()
	assert.Equal(t, start, s.LoadedAt, "first-load time is sticky")
	assert.Equal(t, start.Add(time.Minute), s.LastRefreshAt)
}

func TestSubscribers(t *testing.T) {
	t.Parallel()

	t.Run("load subscriber receives every successful load", func(t *testing.T) {
		t.Parallel()
		idx := NewIndex(&mockLoader{zones: testZones()}, nil)

		var got [][]roadapi.CoverageZone
		token := idx.OnLoad(func(zones []roadapi.CoverageZone) {
			got = append(got, zones)
		})

		_, err := idx.Load(context.Background())
		require.NoError(t, err)
		_, err = idx.Refresh(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Len(t, got[0], 2)

		idx.Unsubscribe(token)
		_, err = idx.Refresh(context.Background())
		require.NoError(t, err)
		assert.Len(t, got, 2, "unsubscribed callback stays silent")
	})

	t.Run("panicking subscriber does not break the load", func(t *testing.T) {
		t.Parallel()
		idx := NewIndex(&mockLoader{zones: testZones()}, nil)

		idx.OnLoad(func([]roadapi.CoverageZone) { panic("subscriber bug") })
		var called bool
		idx.OnLoad(func([]roadapi.CoverageZone) { called = true })

		zones, err := idx.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, zones, 2)
		assert.True(t, called, "other subscribers still run")
	})

	t.Run("error subscriber survives a panic too", func(t *testing.T) {
		t.Parallel()
		idx := NewIndex(&mockLoader{err: errors.New("down")}, nil)

		idx.OnError(func(string) { panic("subscriber bug") })
		var msg string
		idx.OnError(func(m string) { msg = m })

		_, err := idx.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, msg, "coverage load failed")
	})
}
