// Package reporter drives the telemetry loop: pull a position sample, send it
// to the backend with bounded retry, and fan the result out to subscribers.
package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartroad/telemetry/internal/location"
	"github.com/smartroad/telemetry/internal/monitoring"
	"github.com/smartroad/telemetry/internal/roadapi"
	"github.com/smartroad/telemetry/internal/timeutil"
)

// degradedThreshold is the consecutive-failure count at which the reporter
// flags itself as degraded. The loop keeps ticking regardless.
const degradedThreshold = 5

// iso8601Milli is the wire timestamp layout.
const iso8601Milli = "2006-01-02T15:04:05.000Z07:00"

// Transport submits one telemetry request. roadapi.Client is the production
// implementation; retry belongs here in the reporter, never in the transport.
type Transport interface {
	SendLocation(ctx context.Context, req *roadapi.TelemetryRequest) (*roadapi.TelemetryResponse, error)
}

// IdentitySource resolves the stable device identifier.
type IdentitySource interface {
	GetOrCreate() string
}

// Result is the outcome of one reporting cycle, delivered to location-update
// subscribers.
type Result struct {
	Success bool
	Sample  location.Sample
	// Response is the full parsed server response; nil on failure.
	Response *roadapi.TelemetryResponse
	// Warning is the extracted collision warning, if the response carried one.
	Warning *roadapi.CollisionWarning
	// DetectedObjects is the full replacement list from this cycle.
	DetectedObjects []roadapi.DetectedObject
	Err             error
}

// Stats are the reporter's running counters.
type Stats struct {
	TotalUpdates        int
	Successful          int
	Failed              int
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
	ConsecutiveFailures int
	Running             bool
}

// Reporter owns the fixed-interval reporting loop. Construct one per process
// and share it; Start and Stop are idempotent.
//
// Ticks are wall-clock fixed: a cycle whose retry sequence outlasts the
// interval overlaps the next tick. That is accepted behavior, the interval
// never waits for a response.
type Reporter struct {
	transport Transport
	source    location.Source
	identity  IdentitySource
	clock     timeutil.Clock

	mu      sync.Mutex
	cfg     Config
	running bool
	gen     uint64
	stop    chan struct{}
	stats   Stats

	subMu       sync.Mutex
	updateSubs  map[string]func(Result)
	warningSubs map[string]func(*roadapi.CollisionWarning)
	objectSubs  map[string]func([]roadapi.DetectedObject)
	errorSubs   map[string]func(string)
}

// New creates an idle reporter. A nil clock defaults to the real clock; a
// zero cfg is replaced with DefaultConfig.
func New(transport Transport, source location.Source, identity IdentitySource, clock timeutil.Clock, cfg Config) *Reporter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Reporter{
		transport:   transport,
		source:      source,
		identity:    identity,
		clock:       clock,
		cfg:         cfg,
		updateSubs:  make(map[string]func(Result)),
		warningSubs: make(map[string]func(*roadapi.CollisionWarning)),
		objectSubs:  make(map[string]func([]roadapi.DetectedObject)),
		errorSubs:   make(map[string]func(string)),
	}
}

// Start resolves the device identifier, begins continuous sampling and starts
// the reporting loop. Calling Start while running is a no-op.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	if err := r.cfg.Validate(); err != nil {
		r.mu.Unlock()
		return err
	}
	deviceID := r.identity.GetOrCreate()
	if err := r.source.StartTracking(ctx); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("start tracking: %w", err)
	}

	r.running = true
	r.stats.Running = true
	r.gen++
	gen := r.gen
	stop := make(chan struct{})
	r.stop = stop
	cfg := r.cfg
	ticker := r.clock.NewTicker(cfg.Interval)
	r.mu.Unlock()

	go r.loop(ctx, gen, deviceID, cfg, ticker, stop)
	monitoring.Logf("reporter: started as %s, interval %v", deviceID, cfg.Interval)
	return nil
}

// Stop halts the loop and stops sampling. Results of cycles still in flight
// are discarded, not fanned out. Safe to call when not running.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.stopLocked()
	r.mu.Unlock()
	monitoring.Logf("reporter: stopped")
}

// stopLocked cancels the loop. Caller holds r.mu.
func (r *Reporter) stopLocked() {
	close(r.stop)
	r.stop = nil
	r.running = false
	r.stats.Running = false
	// bump the generation so in-flight cycles discard their results
	r.gen++
	r.source.StopTracking()
}

// Running reports whether the loop is active.
func (r *Reporter) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Config returns the current configuration.
func (r *Reporter) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Stats returns a snapshot of the running counters.
func (r *Reporter) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// UpdateConfig merges the partial update and, when running, applies it
// through a stop/start cycle so a new interval or retry policy is never
// half-applied.
func (r *Reporter) UpdateConfig(ctx context.Context, update ConfigUpdate) error {
	r.mu.Lock()
	next := r.cfg
	update.applyTo(&next)
	if err := next.Validate(); err != nil {
		r.mu.Unlock()
		return err
	}
	wasRunning := r.running
	if wasRunning {
		r.stopLocked()
	}
	r.cfg = next
	r.mu.Unlock()

	if wasRunning {
		return r.Start(ctx)
	}
	return nil
}

// OnUpdate registers fn for every completed cycle and returns a removal token.
func (r *Reporter) OnUpdate(fn func(Result)) string {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	token := uuid.NewString()
	r.updateSubs[token] = fn
	return token
}

// OnWarning registers fn for cycles whose response carries a collision
// warning.
func (r *Reporter) OnWarning(fn func(*roadapi.CollisionWarning)) string {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	token := uuid.NewString()
	r.warningSubs[token] = fn
	return token
}

// OnObjects registers fn for cycles whose response carries detected objects.
func (r *Reporter) OnObjects(fn func([]roadapi.DetectedObject)) string {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	token := uuid.NewString()
	r.objectSubs[token] = fn
	return token
}

// OnError registers fn for cycle failures. The message is human-readable and
// suitable for logging or surfacing.
func (r *Reporter) OnError(fn func(string)) string {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	token := uuid.NewString()
	r.errorSubs[token] = fn
	return token
}

// Unsubscribe removes the subscription with the given token from whichever
// set holds it.
func (r *Reporter) Unsubscribe(token string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	delete(r.updateSubs, token)
	delete(r.warningSubs, token)
	delete(r.objectSubs, token)
	delete(r.errorSubs, token)
}

// loop fires cycles on the tick until stopped. Each cycle runs in its own
// goroutine so a slow retry sequence never delays the next tick.
func (r *Reporter) loop(ctx context.Context, gen uint64, deviceID string, cfg Config, ticker timeutil.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			go r.runCycle(ctx, gen, deviceID, cfg)
		}
	}
}

// runCycle executes one sample-send-fanout pass.
func (r *Reporter) runCycle(ctx context.Context, gen uint64, deviceID string, cfg Config) {
	sample, err := r.source.CurrentPosition(ctx)
	if err != nil {
		r.recordFailure(gen, fmt.Sprintf("no position available: %v", err))
		return
	}
	if err := sample.Validate(); err != nil {
		// dropped before transmission, counted as a soft failure
		r.recordFailure(gen, err.Error())
		return
	}

	ts := sample.Timestamp
	if ts.IsZero() {
		ts = r.clock.Now()
	}
	req := &roadapi.TelemetryRequest{
		DeviceID:  deviceID,
		Timestamp: ts.UTC().Format(iso8601Milli),
		Location: roadapi.LatLng{
			Latitude:  sample.Latitude,
			Longitude: sample.Longitude,
		},
	}

	resp, err := r.sendWithRetry(ctx, req, cfg)
	if err != nil {
		if !r.recordFailure(gen, fmt.Sprintf("telemetry send failed: %v", err)) {
			return
		}
		r.notifyUpdate(Result{Sample: sample, Err: err})
		return
	}

	r.mu.Lock()
	if r.gen != gen {
		// stopped or reconfigured while this cycle was in flight
		r.mu.Unlock()
		return
	}
	r.stats.TotalUpdates++
	r.stats.Successful++
	r.stats.ConsecutiveFailures = 0
	r.stats.LastSuccessAt = r.clock.Now()
	r.mu.Unlock()

	result := Result{
		Success:         true,
		Sample:          sample,
		Response:        resp,
		DetectedObjects: resp.AllDetectedObjects,
	}
	if resp.CollisionWarning.HasWarning && resp.CollisionWarning.Warning != nil {
		result.Warning = resp.CollisionWarning.Warning
	}

	// fixed fan-out order: update, then warning, then objects
	r.notifyUpdate(result)
	if result.Warning != nil {
		r.notifyWarning(result.Warning)
	}
	if len(result.DetectedObjects) > 0 {
		r.notifyObjects(result.DetectedObjects)
	}
}

// sendWithRetry attempts the send up to cfg.MaxRetries times with a fixed
// delay between attempts.
func (r *Reporter) sendWithRetry(ctx context.Context, req *roadapi.TelemetryRequest, cfg Config) (*roadapi.TelemetryResponse, error) {
	attempts := cfg.MaxRetries
	if !cfg.EnableRetry {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := r.transport.SendLocation(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		monitoring.Logf("reporter: send attempt %d/%d failed: %v", attempt, attempts, err)
		if attempt < attempts {
			r.clock.Sleep(cfg.RetryDelay)
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// recordFailure updates the failure counters and notifies error subscribers.
// It reports false when the cycle is stale and its result was discarded.
func (r *Reporter) recordFailure(gen uint64, msg string) bool {
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		return false
	}
	r.stats.TotalUpdates++
	r.stats.Failed++
	r.stats.ConsecutiveFailures++
	r.stats.LastFailureAt = r.clock.Now()
	consecutive := r.stats.ConsecutiveFailures
	r.mu.Unlock()

	if consecutive >= degradedThreshold {
		monitoring.Logf("reporter: degraded, %d consecutive failures", consecutive)
	}
	r.notifyError(msg)
	return true
}

func (r *Reporter) notifyUpdate(result Result) {
	for _, fn := range r.updateSnapshot() {
		invokeUpdateSub(fn, result)
	}
}

func (r *Reporter) notifyWarning(w *roadapi.CollisionWarning) {
	r.subMu.Lock()
	fns := make([]func(*roadapi.CollisionWarning), 0, len(r.warningSubs))
	for _, fn := range r.warningSubs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		invokeWarningSub(fn, w)
	}
}

func (r *Reporter) notifyObjects(objects []roadapi.DetectedObject) {
	r.subMu.Lock()
	fns := make([]func([]roadapi.DetectedObject), 0, len(r.objectSubs))
	for _, fn := range r.objectSubs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		invokeObjectSub(fn, objects)
	}
}

func (r *Reporter) notifyError(msg string) {
	r.subMu.Lock()
	fns := make([]func(string), 0, len(r.errorSubs))
	for _, fn := range r.errorSubs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		invokeErrorSub(fn, msg)
	}
}

func (r *Reporter) updateSnapshot() []func(Result) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	fns := make([]func(Result), 0, len(r.updateSubs))
	for _, fn := range r.updateSubs {
		fns = append(fns, fn)
	}
	return fns
}

// Per-callback fault isolation: one panicking subscriber never blocks the
// rest of the fan-out.

func invokeUpdateSub(fn func(Result), result Result) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("reporter: update subscriber panicked: %v", r)
		}
	}()
	fn(result)
}

func invokeWarningSub(fn func(*roadapi.CollisionWarning), w *roadapi.CollisionWarning) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("reporter: warning subscriber panicked: %v", r)
		}
	}()
	fn(w)
}

func invokeObjectSub(fn func([]roadapi.DetectedObject), objects []roadapi.DetectedObject) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("reporter: objects subscriber panicked: %v", r)
		}
	}()
	fn(objects)
}

func invokeErrorSub(fn func(string), msg string) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.Logf("reporter: error subscriber panicked: %v", r)
		}
	}()
	fn(msg)
}
