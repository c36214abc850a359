package queueengine

import (
	"testing"

	"github.com/geocoder89/dispatch/internal/domain/queuespec"
	"github.com/geocoder89/dispatch/internal/domain/worker"
)

func mkCandidate(name string, load int) candidate {
	return candidate{worker: worker.Worker{Name: name, MaxJobs: 10}, load: load}
}

func TestSelectWorkerRoundRobin(t *testing.T) {
	candidates := []candidate{mkCandidate("b", 0), mkCandidate("a", 0), mkCandidate("c", 0)}

	first, cursor := selectWorker(queuespec.StrategyRoundRobin, candidates, 0)
	if first.Name != "a" {
		t.Fatalf("expected sorted-first worker a, got %s", first.Name)
	}

	second, cursor := selectWorker(queuespec.StrategyRoundRobin, candidates, cursor)
	if second.Name != "b" {
		t.Fatalf("expected round-robin to advance to b, got %s", second.Name)
	}

	third, cursor := selectWorker(queuespec.StrategyRoundRobin, candidates, cursor)
	if third.Name != "c" {
		t.Fatalf("expected round-robin to advance to c, got %s", third.Name)
	}

	fourth, _ := selectWorker(queuespec.StrategyRoundRobin, candidates, cursor)
	if fourth.Name != "a" {
		t.Fatalf("expected round-robin to wrap to a, got %s", fourth.Name)
	}
}

func TestSelectWorkerLeastLoaded(t *testing.T) {
	candidates := []candidate{mkCandidate("a", 3), mkCandidate("b", 1), mkCandidate("c", 2)}

	chosen, _ := selectWorker(queuespec.StrategyLeastLoaded, candidates, 0)
	if chosen.Name != "b" {
		t.Fatalf("expected least loaded worker b, got %s", chosen.Name)
	}
}

func TestSelectWorkerLeastLoadedTieBreaksByName(t *testing.T) {
	candidates := []candidate{mkCandidate("z", 1), mkCandidate("a", 1)}

	chosen, _ := selectWorker(queuespec.StrategyLeastLoaded, candidates, 0)
	if chosen.Name != "a" {
		t.Fatalf("expected tie to break to a ascending, got %s", chosen.Name)
	}
}

func TestSelectWorkerRandomPicksFromCandidates(t *testing.T) {
	candidates := []candidate{mkCandidate("a", 0)}

	chosen, _ := selectWorker(queuespec.StrategyRandom, candidates, 0)
	if chosen.Name != "a" {
		t.Fatalf("expected only candidate a, got %s", chosen.Name)
	}
}

func TestSelectWorkerPriorityDegradesToLeastLoaded(t *testing.T) {
	candidates := []candidate{mkCandidate("a", 5), mkCandidate("b", 0)}

	chosen, _ := selectWorker(queuespec.StrategyPriority, candidates, 0)
	if chosen.Name != "b" {
		t.Fatalf("expected priority to pick least loaded b, got %s", chosen.Name)
	}
}
