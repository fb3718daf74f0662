package exposure

import (
	"sync"
)

// pairJob is one (position, factor) regression unit.
type pairJob struct {
	index       int
	positionIdx int
	factorIdx   int
}

// pairOutcome carries a finished fit back for reduction.
type pairOutcome struct {
	index  int
	result PairResult
}

// WorkerPool runs independent (position, factor) OLS fits across a bounded
// set of goroutines. Fits are CPU-bound and embarrassingly parallel; the
// pool keeps result order stable for deterministic aggregation.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new regression worker pool
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// Map runs fit for every (positionIdx, factorIdx) pair and returns results
// in input order.
func (wp *WorkerPool) Map(pairs [][2]int, fit func(positionIdx, factorIdx int) PairResult) []PairResult {
	numPairs := len(pairs)
	if numPairs == 0 {
		return nil
	}

	jobs := make(chan pairJob, numPairs)
	outcomes := make(chan pairOutcome, numPairs)

	workers := wp.numWorkers
	if numPairs < workers {
		workers = numPairs
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				outcomes <- pairOutcome{
					index:  job.index,
					result: fit(job.positionIdx, job.factorIdx),
				}
			}
		}()
	}

	for idx, pair := range pairs {
		jobs <- pairJob{index: idx, positionIdx: pair[0], factorIdx: pair[1]}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]PairResult, numPairs)
	for outcome := range outcomes {
		results[outcome.index] = outcome.result
	}
	return results
}
