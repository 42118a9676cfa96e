// Package identity manages the stable anonymous device identifier.
//
// The identifier has the form device_<unix-seconds>_<12 random alphanumerics>
// and is persisted under a single key. It is validated against its own format
// on every load and regenerated only when validation fails or an explicit
// reset is requested. Storage failures degrade to a transient in-memory
// identifier; they are never fatal.
package identity

import (
	crand "crypto/rand"
	"fmt"
	"regexp"
	"sync"

	"github.com/smartroad/telemetry/internal/monitoring"
	"github.com/smartroad/telemetry/internal/timeutil"
)

// storageKey is the single persisted-state key holding the identifier.
const storageKey = "device_id"

const randomSuffixLen = 12

var idPattern = regexp.MustCompile(`^device_\d{10}_[A-Za-z0-9]{12}$`)

// Valid reports whether id matches the device identifier format.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// Provider resolves the device identifier. A single Provider instance is
// constructed by the application entry point and shared by everything that
// needs the identifier.
type Provider struct {
	store Store
	clock timeutil.Clock

	mu     sync.Mutex
	cached string
}

// NewProvider creates a Provider over the given store. A nil clock defaults
// to the real clock.
func NewProvider(store Store, clock timeutil.Clock) *Provider {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Provider{store: store, clock: clock}
}

// GetOrCreate returns the persisted identifier, generating and persisting a
// new one when none exists or the stored value fails validation. It never
// fails outward: on storage errors it returns a transient identifier so
// telemetry can proceed for the current session.
func (p *Provider) GetOrCreate() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached
	}

	stored, err := p.store.Get(storageKey)
	if err == nil && Valid(stored) {
		p.cached = stored
		return stored
	}
	if err != nil && err != ErrNotFound {
		monitoring.Logf("identity: read failed, using transient identifier: %v", err)
		return p.generate()
	}
	if stored != "" && !Valid(stored) {
		monitoring.Logf("identity: stored identifier %q failed validation, regenerating", stored)
	}

	id := p.generate()
	if err := p.store.Set(storageKey, id); err != nil {
		monitoring.Logf("identity: persist failed, identifier is transient: %v", err)
		return id
	}
	p.cached = id
	return id
}

// StoredID returns the persisted identifier without creating one. The second
// return value is false when nothing valid is stored.
func (p *Provider) StoredID() (string, bool) {
	stored, err := p.store.Get(storageKey)
	if err != nil || !Valid(stored) {
		return "", false
	}
	return stored, true
}

// Reset clears the persisted identifier and creates a fresh one. Intended for
// testing and support flows only.
func (p *Provider) Reset() string {
	p.mu.Lock()
	p.cached = ""
	if err := p.store.Delete(storageKey); err != nil {
		monitoring.Logf("identity: reset delete failed: %v", err)
	}
	p.mu.Unlock()
	return p.GetOrCreate()
}

// generate builds a fresh identifier from the current unix time and 12 random
// alphanumeric characters. Caller holds p.mu.
func (p *Provider) generate() string {
	return fmt.Sprintf("device_%d_%s", p.clock.Now().Unix(), randomAlphanumeric(randomSuffixLen))
}

const alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomAlphanumeric(n int) string {
	buf := make([]byte, n)
	_, _ = crand.Read(buf)
	for i, b := range buf {
		buf[i] = alphanumerics[int(b)%len(alphanumerics)]
	}
	return string(buf)
}
