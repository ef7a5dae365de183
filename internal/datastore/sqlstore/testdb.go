package sqlstore

import (
	"context"
	"testing"
)

// OpenTestStore opens an in-memory SQLite store with all migrations applied.
// The store is closed when the test finishes.
func OpenTestStore(t testing.TB) *Store {
	t.Helper()
	store, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
