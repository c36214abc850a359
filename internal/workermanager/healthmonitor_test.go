package workermanager

import "testing"

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	m := &HealthMonitor{breakers: make(map[string]*breakerState)}

	for i := 0; i < breakerFailureThreshold; i++ {
		if !m.allowProbe("w1") {
			t.Fatalf("probe %d should still be allowed before breaker opens", i)
		}
		m.afterProbe("w1", false)
	}

	if m.allowProbe("w1") {
		t.Fatalf("expected breaker to be open after %d consecutive failures", breakerFailureThreshold)
	}
}

func TestBreakerClosesOnSuccess(t *testing.T) {
	m := &HealthMonitor{breakers: make(map[string]*breakerState)}

	m.allowProbe("w1")
	m.afterProbe("w1", false)
	m.allowProbe("w1")
	m.afterProbe("w1", true)

	b := m.breakers["w1"]
	if b.state != "closed" || b.consecutiveFailures != 0 {
		t.Fatalf("expected breaker reset on success, got %+v", b)
	}
}
