package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestSetThenGetRoundTrips(t *testing.T) {
	c := New(t.TempDir(), time.Hour, "", "", 0)
	ctx := context.Background()

	if err := c.Set(ctx, Normattiva, "urn:nir:stato:legge:1990-08-07;241", json.RawMessage(`{"text":"hello"}`)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	data, hit, err := c.Get(ctx, Normattiva, "urn:nir:stato:legge:1990-08-07;241")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !hit {
		t.Fatal("Get reported a miss right after Set")
	}
	if string(data) != `{"text":"hello"}` {
		t.Errorf("Get data = %s, want {\"text\":\"hello\"}", data)
	}
}

func TestGetMissOnUnknownKey(t *testing.T) {
	c := New(t.TempDir(), time.Hour, "", "", 0)
	_, hit, err := c.Get(context.Background(), Normattiva, "does-not-exist")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if hit {
		t.Error("Get reported a hit for an unknown key")
	}
}

func TestGetExpiredEntryIsMissAndDeleted(t *testing.T) {
	c := New(t.TempDir(), time.Millisecond, "", "", 0)
	ctx := context.Background()

	if err := c.Set(ctx, Tree, "key", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, hit, err := c.Get(ctx, Tree, "key")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if hit {
		t.Error("Get reported a hit for an expired entry")
	}

	// Deleted by the lazy-expiry path; a second Get is still a clean miss.
	_, hit, _ = c.Get(ctx, Tree, "key")
	if hit {
		t.Error("expired entry should have been deleted on first expired read")
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	c := New(t.TempDir(), time.Hour, "", "", 0)
	ctx := context.Background()

	_ = c.Set(ctx, Normattiva, "same-key", json.RawMessage(`"a"`))
	_ = c.Set(ctx, EURLex, "same-key", json.RawMessage(`"b"`))

	a, _, _ := c.Get(ctx, Normattiva, "same-key")
	b, _, _ := c.Get(ctx, EURLex, "same-key")
	if string(a) == string(b) {
		t.Errorf("namespaces leaked into each other: Normattiva=%s EURLex=%s", a, b)
	}
}

func TestStatsTrackHitsAndMisses(t *testing.T) {
	c := New(t.TempDir(), time.Hour, "", "", 0)
	ctx := context.Background()

	_, _, _ = c.Get(ctx, Brocardi, "miss-1")
	_ = c.Set(ctx, Brocardi, "hit-1", json.RawMessage(`1`))
	_, _, _ = c.Get(ctx, Brocardi, "hit-1")

	stats := c.GetStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("GetStats() = %+v, want Hits=1 Misses=1", stats)
	}
	if stats.HitRate() != 0.5 {
		t.Errorf("HitRate() = %v, want 0.5", stats.HitRate())
	}
}

func TestHitRateWithNoReadsIsZero(t *testing.T) {
	var s Stats
	if s.HitRate() != 0 {
		t.Errorf("HitRate() on zero Stats = %v, want 0", s.HitRate())
	}
}

func TestRecordWarmupIncrementsCounter(t *testing.T) {
	c := New(t.TempDir(), time.Hour, "", "", 0)
	c.RecordWarmup()
	c.RecordWarmup()
	if got := c.GetStats().Warmups; got != 2 {
		t.Errorf("Warmups = %d, want 2", got)
	}
}
