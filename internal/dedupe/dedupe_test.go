package dedupe

import (
	"fmt"
	"testing"
	"time"
)

func TestEventCacheSeen(t *testing.T) {
	cache := NewEventCache(10)

	if cache.Seen("msg1_1000") {
		t.Fatalf("first sighting reported as seen")
	}
	if !cache.Seen("msg1_1000") {
		t.Fatalf("second sighting not reported as seen")
	}
	if cache.Seen("msg1_2000") {
		t.Fatalf("different create time must be a distinct fingerprint")
	}
}

func TestEventCacheTrimsToRecentHalf(t *testing.T) {
	cache := NewEventCache(10)

	for i := 0; i < 11; i++ {
		cache.Seen(fmt.Sprintf("msg%d", i))
	}

	// The oldest entries were dropped, the recent half survives.
	if !cache.Seen("msg10") {
		t.Fatalf("most recent entry was evicted")
	}
	if cache.Seen("msg0") {
		t.Fatalf("oldest entry should have been evicted")
	}
}

func TestContentCacheWithinTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := NewContentCache(300 * time.Second)
	cache.now = func() time.Time { return now }

	if cache.Seen("周报发一下") {
		t.Fatalf("first sighting reported as duplicate")
	}
	now = now.Add(10 * time.Second)
	if !cache.Seen("周报发一下") {
		t.Fatalf("repeat within TTL not reported as duplicate")
	}
}

func TestContentCacheExpiresAfterTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := NewContentCache(300 * time.Second)
	cache.now = func() time.Time { return now }

	cache.Seen("周报发一下")
	now = now.Add(301 * time.Second)
	if cache.Seen("周报发一下") {
		t.Fatalf("repeat after TTL should not be a duplicate")
	}
}

func TestContentCachePurgesStaleEntries(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := NewContentCache(300 * time.Second)
	cache.now = func() time.Time { return now }

	cache.Seen("旧消息")
	now = now.Add(601 * time.Second)
	cache.Seen("新消息")

	if len(cache.entries) != 1 {
		t.Fatalf("expected stale entry to be purged, have %d entries", len(cache.entries))
	}
}
