package queueengine

import (
	"math/rand"
	"sort"

	"github.com/geocoder89/dispatch/internal/domain/queuespec"
	"github.com/geocoder89/dispatch/internal/domain/worker"
)

// candidate pairs a worker with its current running-job count, so a
// strategy can compute load without a second repository round trip.
type candidate struct {
	worker worker.Worker
	load   int
}

// selectWorker picks one candidate per the queue's strategy. Callers must
// pass a non-empty, already-filtered (eligible, spare-capacity) slice;
// selectWorker itself only orders and picks. Ties are broken by worker name
// ascending for every strategy, matching the spec's tie-breaking rule.
func selectWorker(strategy queuespec.Strategy, candidates []candidate, roundRobinCursor int) (worker.Worker, int) {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].worker.Name < candidates[j].worker.Name
	})

	switch strategy {
	case queuespec.StrategyLeastLoaded:
		return leastLoaded(candidates), roundRobinCursor

	case queuespec.StrategyRandom:
		idx := rand.Intn(len(candidates))
		return candidates[idx].worker, roundRobinCursor

	case queuespec.StrategyPriority:
		// Priority strategy picks the least-loaded worker too - worker
		// priority isn't a modeled attribute, so this degenerates to
		// least_loaded while still being a distinct, named selection path
		// that callers can special-case in the future.
		return leastLoaded(candidates), roundRobinCursor

	case queuespec.StrategyRoundRobin:
		fallthrough
	default:
		idx := roundRobinCursor % len(candidates)
		return candidates[idx].worker, roundRobinCursor + 1
	}
}

func leastLoaded(candidates []candidate) worker.Worker {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.load < best.load {
			best = c
		}
	}
	return best.worker
}
