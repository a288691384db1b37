package cache

import (
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestCache[K comparable, V any]() (*Cache[K, V], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)}
	c := New[K, V]()
	c.now = clock.now
	return c, clock
}

func TestGetAfterPut(t *testing.T) {
	c, _ := newTestCache[string, int]()
	c.Put("k", 42, time.Minute)

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("Get() ok = false, want true immediately after Put")
	}
	if got != 42 {
		t.Errorf("Get() = %d, want 42", got)
	}
}

func TestGetMissing(t *testing.T) {
	c, _ := newTestCache[string, int]()

	if _, ok := c.Get("nope"); ok {
		t.Error("Get() ok = true for missing key, want false")
	}
}

func TestGetExpired(t *testing.T) {
	c, clock := newTestCache[string, string]()
	c.Put("k", "v", time.Minute)

	clock.advance(time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Error("Get() ok = true at exactly ttl, want false")
	}

	// Expired entries are not deleted; Age still reports them.
	if _, ok := c.Age("k"); !ok {
		t.Error("Age() ok = false for expired entry, want true")
	}
}

func TestGetJustBeforeExpiry(t *testing.T) {
	c, clock := newTestCache[string, string]()
	c.Put("k", "v", time.Minute)

	clock.advance(time.Minute - time.Nanosecond)
	if _, ok := c.Get("k"); !ok {
		t.Error("Get() ok = false just before ttl, want true")
	}
}

func TestPutOverwrites(t *testing.T) {
	c, clock := newTestCache[string, int]()
	c.Put("k", 1, time.Minute)
	clock.advance(30 * time.Second)
	c.Put("k", 2, time.Minute)

	got, ok := c.Get("k")
	if !ok || got != 2 {
		t.Errorf("Get() = %d, %v; want 2, true", got, ok)
	}

	// Overwrite resets the clock.
	age, ok := c.Age("k")
	if !ok || age != 0 {
		t.Errorf("Age() = %v, %v; want 0, true", age, ok)
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache[string, int]()
	c.Put("a", 1, time.Minute)
	c.Put("b", 2, time.Minute)

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) ok = true after Invalidate, want false")
	}
	if _, ok := c.Age("a"); ok {
		t.Error("Age(a) ok = true after Invalidate, want false")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("Get(b) ok = false, want true (untouched key)")
	}
}

func TestInvalidateAll(t *testing.T) {
	c, _ := newTestCache[string, int]()
	c.Put("a", 1, time.Minute)
	c.Put("b", 2, time.Minute)

	c.InvalidateAll()
	if _, ok := c.Get("a"); ok {
		t.Error("Get(a) ok = true after InvalidateAll, want false")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) ok = true after InvalidateAll, want false")
	}
}

func TestAgeMonotonic(t *testing.T) {
	c, clock := newTestCache[string, int]()
	c.Put("k", 1, time.Hour)

	var prev time.Duration
	for i := 0; i < 5; i++ {
		age, ok := c.Age("k")
		if !ok {
			t.Fatal("Age() ok = false, want true")
		}
		if age < prev {
			t.Errorf("Age() = %v, decreased from %v", age, prev)
		}
		prev = age
		clock.advance(10 * time.Second)
	}
}

func TestSliceValues(t *testing.T) {
	c, _ := newTestCache[string, []string]()
	c.Put("jobs", []string{"a", "b"}, time.Minute)

	got, ok := c.Get("jobs")
	if !ok || len(got) != 2 {
		t.Errorf("Get() = %v, %v; want 2-element slice, true", got, ok)
	}
}
