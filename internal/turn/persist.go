package turn

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ent0n29/mnemo/internal/memory"
	"github.com/ent0n29/mnemo/internal/observability"
	"github.com/ent0n29/mnemo/internal/policy"
)

var ErrQueueClosed = errors.New("persistence queue closed")

const (
	defaultPersistWorkers   = 2
	defaultPersistQueueSize = 64
)

// persistJob stores the facts mined from one user message.
type persistJob struct {
	conversationID string
	facts          []string
	source         string
	done           chan []string
}

// PersistQueue writes extracted facts to the memory store off the reply path.
type PersistQueue struct {
	store   memory.Store
	metrics *observability.Metrics
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan persistJob
	wg     sync.WaitGroup
}

func NewPersistQueue(store memory.Store, workers, size int, metrics *observability.Metrics, logger *slog.Logger) *PersistQueue {
	if workers <= 0 {
		workers = defaultPersistWorkers
	}
	if size <= 0 {
		size = defaultPersistQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &PersistQueue{
		store:   store,
		metrics: metrics,
		logger:  logger,
		queue:   make(chan persistJob, size),
	}
	q.wg.Add(workers)
	for i := range workers {
		go q.worker(i)
	}
	return q
}

// Submit blocks until the job is queued or ctx is done. The returned channel
// yields the facts that were stored, in submission order.
func (q *PersistQueue) Submit(ctx context.Context, conversationID, source string, facts []string) (<-chan []string, error) {
	job := persistJob{
		conversationID: conversationID,
		facts:          facts,
		source:         source,
		done:           make(chan []string, 1),
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	select {
	case q.queue <- job:
		return job.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (q *PersistQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.queue)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *PersistQueue) worker(id int) {
	defer q.wg.Done()
	q.logger.Debug("persist worker started", "worker_id", id)
	for job := range q.queue {
		job.done <- q.process(job)
	}
	q.logger.Debug("persist worker stopped", "worker_id", id)
}

func (q *PersistQueue) process(job persistJob) []string {
	// Writes outlive the request that produced them.
	ctx := context.Background()
	stored := make([]string, 0, len(job.facts))
	for _, fact := range job.facts {
		id, err := q.store.Insert(ctx, fact, job.source)
		if err != nil {
			q.logger.Error("storing memory failed",
				"conversation_id", job.conversationID,
				"fact", policy.LogPreview(fact, 80),
				"err", err)
			q.countWrite("error")
			continue
		}
		q.logger.Info("memory stored", "conversation_id", job.conversationID, "memory_id", id)
		q.countWrite("ok")
		stored = append(stored, fact)
	}
	return stored
}

func (q *PersistQueue) countWrite(result string) {
	if q.metrics == nil {
		return
	}
	q.metrics.MemoryWrites.WithLabelValues(result).Inc()
}
