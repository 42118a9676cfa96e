package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartroad/telemetry/internal/monitoring"
	"github.com/smartroad/telemetry/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// brokenStore fails every operation, simulating unavailable storage.
type brokenStore struct{}

func (brokenStore) Get(string) (string, error)  { return "", errors.New("storage offline") }
func (brokenStore) Set(string, string) error    { return errors.New("storage offline") }
func (brokenStore) Delete(string) error         { return errors.New("storage offline") }

func TestValid(t *testing.T) {
	t.Parallel()

	assert.True(t, Valid("device_1643095800_abc123def456"))
	assert.False(t, Valid("device_1643095800_short"))
	assert.False(t, Valid("device_164309580_abc123def456"), "9-digit timestamp")
	assert.False(t, Valid("gadget_1643095800_abc123def456"))
	assert.False(t, Valid("device_1643095800_abc123def45!"))
	assert.False(t, Valid(""))
}

func TestGetOrCreate(t *testing.T) {
	t.Parallel()

	t.Run("stable across calls", func(t *testing.T) {
		t.Parallel()
		p := NewProvider(NewMemStore(), nil)
		first := p.GetOrCreate()
		second := p.GetOrCreate()
		assert.True(t, Valid(first))
		assert.Equal(t, first, second)
	})

	t.Run("stable across provider instances sharing a store", func(t *testing.T) {
		t.Parallel()
		store := NewMemStore()
		first := NewProvider(store, nil).GetOrCreate()
		second := NewProvider(store, nil).GetOrCreate()
		assert.Equal(t, first, second)
	})

	t.Run("failing storage still yields a valid transient id", func(t *testing.T) {
		t.Parallel()
		p := NewProvider(brokenStore{}, nil)
		id := p.GetOrCreate()
		assert.True(t, Valid(id), "got %q", id)
	})

	t.Run("invalid stored value is regenerated", func(t *testing.T) {
		t.Parallel()
		store := NewMemStore()
		require.NoError(t, store.Set("device_id", "not-a-device-id"))
		p := NewProvider(store, nil)
		id := p.GetOrCreate()
		assert.True(t, Valid(id))
		assert.NotEqual(t, "not-a-device-id", id)

		persisted, err := store.Get("device_id")
		require.NoError(t, err)
		assert.Equal(t, id, persisted)
	})

	t.Run("timestamp comes from the clock", func(t *testing.T) {
		t.Parallel()
		at := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
		clock := timeutil.NewMockClock(at)
		p := NewProvider(NewMemStore(), clock)
		id := p.GetOrCreate()
		assert.Contains(t, id, "device_1788004800_")
	})
}

func TestStoredID(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	p := NewProvider(store, nil)

	_, ok := p.StoredID()
	assert.False(t, ok, "nothing stored yet")

	created := p.GetOrCreate()
	got, ok := p.StoredID()
	require.True(t, ok)
	assert.Equal(t, created, got)
}

func TestReset(t *testing.T) {
	t.Parallel()

	store := NewMemStore()
	p := NewProvider(store, nil)
	first := p.GetOrCreate()
	second := p.Reset()

	assert.True(t, Valid(second))
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, p.GetOrCreate(), "reset id becomes the stable id")
}
