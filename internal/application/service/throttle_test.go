package service

import (
	"testing"
	"time"
)

func TestThrottleBurstPassesOnce(t *testing.T) {
	base := time.Unix(1700000000, 0)
	now := base
	th := NewThrottle(250 * time.Millisecond)
	th.now = func() time.Time { return now }

	passed := 0
	for i := 0; i < 20; i++ {
		now = base.Add(time.Duration(i*10) * time.Millisecond)
		if th.Allow() {
			passed++
		}
	}
	if passed != 1 {
		t.Fatalf("expected 1 update in a 200ms burst, got %d", passed)
	}

	now = base.Add(250 * time.Millisecond)
	if !th.Allow() {
		t.Errorf("update after the interval should pass")
	}
	now = now.Add(249 * time.Millisecond)
	if th.Allow() {
		t.Errorf("update inside the interval should be dropped")
	}
}

func TestThrottleReset(t *testing.T) {
	now := time.Unix(1700000000, 0)
	th := NewThrottle(time.Second)
	th.now = func() time.Time { return now }

	if !th.Allow() {
		t.Fatalf("first update should pass")
	}
	th.Reset()
	if !th.Allow() {
		t.Errorf("update after Reset should pass")
	}
}

func TestLastPriceCacheSwap(t *testing.T) {
	c := NewLastPriceCache()

	if _, ok := c.Swap("btcusdt", dec("1")); ok {
		t.Fatalf("first swap should report no previous price")
	}
	prev, ok := c.Swap("BTCUSDT", dec("2"))
	if !ok || !prev.Equal(dec("1")) {
		t.Fatalf("Swap = %s,%v want 1,true", prev, ok)
	}
	if c.Len() != 1 {
		t.Errorf("expected one entry, got %d", c.Len())
	}
}
