// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/viewbeacon/internal/clock"
)

func createTestBadgerDB(t *testing.T) *badger.DB {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open BadgerDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testStoreBasics runs the behavior every Store must share.
func testStoreBasics(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := s.Set(ctx, "viewer", "mux_viewer_id=abc", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := s.Get(ctx, "viewer")
	if err != nil || got != "mux_viewer_id=abc" {
		t.Fatalf("Get = %q, %v; want stored value", got, err)
	}

	if err := s.Delete(ctx, "viewer"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "viewer"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "viewer"); err != nil {
		t.Errorf("deleting an absent key should succeed, got %v", err)
	}
}

func TestMemoryStore_Basics(t *testing.T) {
	t.Parallel()
	testStoreBasics(t, NewMemoryStore(nil))
}

func TestBadgerStore_Basics(t *testing.T) {
	t.Parallel()
	testStoreBasics(t, NewBadgerStore(createTestBadgerDB(t)))
}

func TestMemoryStore_Expiry(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	s := NewMemoryStore(fake)
	ctx := context.Background()

	if err := s.Set(ctx, "session", "session_id=s1", 15*time.Minute); err != nil {
		t.Fatal(err)
	}

	fake.Advance(14 * time.Minute)
	if _, err := s.Get(ctx, "session"); err != nil {
		t.Fatalf("expected entry alive before expiry, got %v", err)
	}

	fake.Advance(time.Minute)
	if _, err := s.Get(ctx, "session"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected entry expired at ttl, got %v", err)
	}
}

func TestOpenBadgerStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenBadgerStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, "viewer", "mux_viewer_id=v1", time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenBadgerStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.Get(ctx, "viewer")
	if err != nil || got != "mux_viewer_id=v1" {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}
}
