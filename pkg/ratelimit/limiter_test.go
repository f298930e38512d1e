// pkg/ratelimit/limiter_test.go
// Unit tests for rate limiter

package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 5})
	if l == nil {
		t.Fatal("New() returned nil")
	}
	l.Stop()
	// second Stop must not panic
	l.Stop()
}

func TestLimiter_BurstThenReject(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 3})
	defer l.Stop()

	now := time.Now()
	for i := 0; i < 3; i++ {
		if ok, _ := l.allowAt("10.0.0.1", now); !ok {
			t.Fatalf("request %d rejected within burst", i)
		}
	}

	ok, delay := l.allowAt("10.0.0.1", now)
	if ok {
		t.Fatal("request beyond burst allowed")
	}
	if delay <= 0 || delay > time.Second {
		t.Errorf("delay = %v, want (0, 1s]", delay)
	}

	// a token is back after one interval
	if ok, _ := l.allowAt("10.0.0.1", now.Add(time.Second)); !ok {
		t.Error("request after refill rejected")
	}
}

func TestLimiter_RejectionDoesNotAccumulateDebt(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 1})
	defer l.Stop()

	now := time.Now()
	l.allowAt("a", now)
	for i := 0; i < 10; i++ {
		l.allowAt("a", now)
	}

	if ok, _ := l.allowAt("a", now.Add(time.Second)); !ok {
		t.Error("rejected requests pushed the client into debt")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 1})
	defer l.Stop()

	now := time.Now()
	if ok, _ := l.allowAt("a", now); !ok {
		t.Fatal("first request for a rejected")
	}
	if ok, _ := l.allowAt("b", now); !ok {
		t.Fatal("first request for b rejected")
	}
	if ok, _ := l.allowAt("a", now); ok {
		t.Fatal("second request for a allowed")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(Config{Rate: 0})
	defer l.Stop()

	for i := 0; i < 1000; i++ {
		if ok, _ := l.Allow("a"); !ok {
			t.Fatalf("request %d rejected with unlimited rate", i)
		}
	}
}

func TestLimiter_GetStats(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 2})
	defer l.Stop()

	now := time.Now()
	for i := 0; i < 5; i++ {
		l.allowAt("a", now)
	}
	l.allowAt("b", now)

	stats := l.GetStats()
	if stats.TotalRequests != 6 {
		t.Errorf("TotalRequests = %d, want 6", stats.TotalRequests)
	}
	if stats.RejectedRequests != 3 {
		t.Errorf("RejectedRequests = %d, want 3", stats.RejectedRequests)
	}
	if stats.Clients != 2 {
		t.Errorf("Clients = %d, want 2", stats.Clients)
	}
}

func TestLimiter_Evict(t *testing.T) {
	l := New(Config{Rate: 1, Burst: 1, IdleTTL: time.Hour})
	defer l.Stop()

	now := time.Now()
	l.allowAt("old", now.Add(-2*time.Hour))
	l.allowAt("new", now)

	if n := l.Evict(now.Add(-time.Hour)); n != 1 {
		t.Errorf("Evict() = %d, want 1", n)
	}
	if c := l.GetStats().Clients; c != 1 {
		t.Errorf("Clients = %d, want 1", c)
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l := New(Config{Rate: 10000, Burst: 10000})
	defer l.Stop()

	var wg sync.WaitGroup
	numGoroutines := 10
	requestsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < requestsPerGoroutine; j++ {
				l.Allow("shared")
			}
		}()
	}

	wg.Wait()

	stats := l.GetStats()
	expected := int64(numGoroutines * requestsPerGoroutine)
	if stats.TotalRequests != expected {
		t.Errorf("TotalRequests = %d, want %d", stats.TotalRequests, expected)
	}
}
