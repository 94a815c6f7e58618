package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const week = 7 * 24 * time.Hour

func newTestStore(t *testing.T) (*Store, *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	return NewStore(t.TempDir(), week, clk, zaptest.NewLogger(t)), clk
}

func TestIsValidAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	assert.False(t, store.IsValid("apple"))
}

func TestSaveThenLoad(t *testing.T) {
	store, _ := newTestStore(t)

	blob := []byte(`{"cookies":[]}`)
	require.NoError(t, store.Save("apple", blob, "https://example.com", "Example"))

	assert.True(t, store.IsValid("apple"))
	loaded, ok := store.Load("apple")
	require.True(t, ok)
	assert.JSONEq(t, string(blob), string(loaded))
}

func TestIsValidIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save("apple", []byte(`{}`), "", ""))

	first := store.IsValid("apple")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, store.IsValid("apple"))
	}
}

func TestStaleSessionTreatedAsAbsent(t *testing.T) {
	store, clk := newTestStore(t)
	require.NoError(t, store.Save("apple", []byte(`{}`), "", ""))

	clk.Advance(8 * 24 * time.Hour)

	assert.False(t, store.IsValid("apple"))
	_, ok := store.Load("apple")
	assert.False(t, ok)
}

func TestSessionValidJustInsideWindow(t *testing.T) {
	store, clk := newTestStore(t)
	require.NoError(t, store.Save("apple", []byte(`{}`), "", ""))

	clk.Advance(week - time.Minute)
	assert.True(t, store.IsValid("apple"))

	clk.Advance(2 * time.Minute)
	assert.False(t, store.IsValid("apple"))
}

func TestCorruptBlobTreatedAsAbsent(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "apple.json"), []byte("not json{"), 0o600))

	assert.False(t, store.IsValid("apple"))
	_, ok := store.Load("apple")
	assert.False(t, ok)
}

func TestSaveReplacesWholeRecord(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save("apple", []byte(`{"a":1}`), "https://a", "A"))
	require.NoError(t, store.Save("apple", []byte(`{"b":2}`), "https://b", "B"))

	loaded, ok := store.Load("apple")
	require.True(t, ok)
	assert.JSONEq(t, `{"b":2}`, string(loaded))
}

func TestClear(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save("google", []byte(`{}`), "", ""))
	require.NoError(t, store.Clear("google"))
	assert.False(t, store.IsValid("google"))

	// Clearing an absent session is not an error.
	require.NoError(t, store.Clear("google"))
}

func TestServicesAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Save("apple", []byte(`{}`), "", ""))

	assert.True(t, store.IsValid("apple"))
	assert.False(t, store.IsValid("google"))
}
