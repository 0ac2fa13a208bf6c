package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ernie/portal-repository/internal/dependencies/mocks"
	"github.com/ernie/portal-repository/internal/storage"
)

// Epoch is the fixed start time used by test clocks
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// NewStore opens a fresh SQLite store in a temp directory with a mock clock
// set to Epoch. The store is closed when the test finishes.
func NewStore(t testing.TB) (*storage.Store, *mocks.MockClock) {
	t.Helper()
	clk := mocks.NewMockClock(Epoch)
	store, err := storage.New(filepath.Join(t.TempDir(), "portal.db"), clk, NopLogger())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, clk
}
