package substep

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ElementResult is one cohort element's outcome: either a typed result or
// an error, tolerated independently of its siblings (§4.3: "tolerate
// exceptions per element; do not abort the whole fan-out").
type ElementResult[T any] struct {
	Key   string
	Value T
	Err   error
}

// FanOut schedules one invocation of fn per element of keys concurrently,
// bounded by maxConcurrency in-flight at a time (0 means unbounded), and
// gathers results sorted by key (§4.3: "gather results in deterministic
// order (sorted by element identity)").
//
// This generalizes the teacher's SubAgentRunner.Dispatch/TryGetNext
// reserve-slot-then-register pattern (pkg/agent/orchestrator/runner.go)
// from "one goroutine per dispatched sub-agent, bounded by
// MaxConcurrentAgents" to "one goroutine per cohort element, bounded by a
// semaphore" — the fan-out case here is synchronous-gather rather than the
// orchestrator's push-based streaming, since a phase subgraph node must
// have all cohort results before its fan-in can run.
func FanOut[K comparable, T any](
	ctx context.Context,
	keys []K,
	keyName func(K) string,
	maxConcurrency int,
	fn func(ctx context.Context, key K) (T, error),
) []ElementResult[T] {
	if len(keys) == 0 {
		return nil
	}

	sem := newSemaphore(maxConcurrency)
	results := make([]ElementResult[T], len(keys))
	var wg sync.WaitGroup
	wg.Add(len(keys))

	for i, k := range keys {
		i, k := i, k
		sem.acquire()
		go func() {
			defer wg.Done()
			defer sem.release()

			name := keyName(k)
			v, err := fn(ctx, k)
			if err != nil {
				err = fmt.Errorf("element %s: %w", name, err)
			}
			results[i] = ElementResult[T]{Key: name, Value: v, Err: err}
		}()
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results
}

type semaphore struct{ ch chan struct{} }

func newSemaphore(n int) *semaphore {
	if n <= 0 {
		return &semaphore{}
	}
	return &semaphore{ch: make(chan struct{}, n)}
}

func (s *semaphore) acquire() {
	if s.ch != nil {
		s.ch <- struct{}{}
	}
}

func (s *semaphore) release() {
	if s.ch != nil {
		<-s.ch
	}
}
