package callbackreplay

import (
	"context"
	"log/slog"
	"sync"
)

type Job struct {
	Line    int
	Attempt int
	Payload []byte
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

// Start registers the worker's channel with the pool each time it is idle.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("replay worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("replay worker sending callback", "worker_id", w.ID, "line", job.Line, "attempt", job.Attempt)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("replay worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}
