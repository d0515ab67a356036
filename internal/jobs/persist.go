package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PersistTask is one durable-store write, retried with backoff.
type PersistTask func(ctx context.Context) error

// PersistQueue decouples durable-store writes from the synchronous state
// mutation that produced them. A failed write is retried and ultimately
// dropped with a log line: the in-memory state already changed and the
// store is a warm-cache/recovery aid, so losing a write is never fatal.
type PersistQueue struct {
	tasks    chan PersistTask
	retries  int
	backoff  time.Duration
	log      zerolog.Logger
	shutdown chan struct{}
	done     chan struct{}
}

func NewPersistQueue(depth, retries int, backoff time.Duration, log zerolog.Logger) *PersistQueue {
	q := &PersistQueue{
		tasks:    make(chan PersistTask, depth),
		retries:  retries,
		backoff:  backoff,
		log:      log.With().Str("component", "persist").Logger(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue submits a task without blocking. A full queue drops the task,
// which only widens the warm-cache gap.
func (q *PersistQueue) Enqueue(task PersistTask) {
	if q == nil {
		return
	}
	select {
	case q.tasks <- task:
	default:
		q.log.Warn().Msg("persist queue full, dropping write")
	}
}

// Close drains outstanding tasks and stops the worker.
func (q *PersistQueue) Close() {
	if q == nil {
		return
	}
	close(q.shutdown)
	<-q.done
}

func (q *PersistQueue) run() {
	defer close(q.done)
	for {
		select {
		case task := <-q.tasks:
			q.execute(task)
		case <-q.shutdown:
			for {
				select {
				case task := <-q.tasks:
					q.execute(task)
				default:
					return
				}
			}
		}
	}
}

func (q *PersistQueue) execute(task PersistTask) {
	var err error
	for attempt := 0; attempt <= q.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(q.backoff * time.Duration(attempt))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = task(ctx)
		cancel()
		if err == nil {
			return
		}
	}
	q.log.Warn().Err(err).Msg("persist task dropped after retries")
}
