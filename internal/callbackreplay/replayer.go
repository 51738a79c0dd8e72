package callbackreplay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/frahmantamala/pos-payments/internal/reconciliation"
	"github.com/frahmantamala/pos-payments/internal/transport/middleware"
)

const maxLineBytes = 1 << 20

// ReplayActor is sent as X-Actor-ID so order history tells replays apart from live callbacks.
const ReplayActor = "system:callback-replay"

type Config struct {
	WebhookURL     string
	MaxWorkers     int
	JobQueueSize   int
	RequestTimeout time.Duration
	// Repeat sends every recorded callback this many times, the way a gateway retries.
	Repeat int
}

type Summary struct {
	Sent     int
	Accepted int
	Rejected int
	Failed   int
	Invalid  int
	Skipped  int
	ByStatus map[int]int
}

func (s *Summary) record(statusCode int, ack *reconciliation.Acknowledgement, err error) {
	s.Sent++
	if err != nil {
		s.Failed++
		return
	}
	s.ByStatus[statusCode]++
	if statusCode >= 200 && statusCode < 300 && ack != nil && ack.Accepted {
		s.Accepted++
		return
	}
	s.Rejected++
}

// Replayer posts recorded gateway callbacks, one JSON object per line, to a running webhook.
type Replayer struct {
	webhookURL     string
	maxWorkers     int
	jobQueueSize   int
	requestTimeout time.Duration
	repeat         int
	client         *http.Client
	logger         *slog.Logger
}

func NewReplayer(config Config, client *http.Client, logger *slog.Logger) (*Replayer, error) {
	if config.WebhookURL == "" {
		return nil, errors.New("webhook url is required")
	}

	maxWorkers := config.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	jobQueueSize := config.JobQueueSize
	if jobQueueSize <= 0 {
		jobQueueSize = 100
	}

	requestTimeout := config.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}

	repeat := config.Repeat
	if repeat <= 0 {
		repeat = 1
	}

	if client == nil {
		client = &http.Client{}
	}

	return &Replayer{
		webhookURL:     config.WebhookURL,
		maxWorkers:     maxWorkers,
		jobQueueSize:   jobQueueSize,
		requestTimeout: requestTimeout,
		repeat:         repeat,
		client:         client,
		logger:         logger,
	}, nil
}

// Run blocks until every line has been sent or ctx is done. Jobs still queued when ctx
// ends are counted as skipped.
func (r *Replayer) Run(ctx context.Context, src io.Reader) (*Summary, error) {
	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobQueue := make(chan Job, r.jobQueueSize)
	workerPool := make(chan chan Job, r.maxWorkers)

	var (
		workers  sync.WaitGroup
		inflight sync.WaitGroup
		mu       sync.Mutex
	)
	summary := &Summary{ByStatus: map[int]int{}}

	process := func(job Job) {
		defer inflight.Done()
		statusCode, ack, err := r.send(ctx, job)
		if err != nil {
			r.logger.Error("replayed callback failed", "line", job.Line, "attempt", job.Attempt, "error", err)
		} else {
			r.logger.Info("replayed callback acknowledged",
				"line", job.Line,
				"attempt", job.Attempt,
				"status_code", statusCode,
				"accepted", ack != nil && ack.Accepted)
		}
		mu.Lock()
		summary.record(statusCode, ack, err)
		mu.Unlock()
	}

	for i := 0; i < r.maxWorkers; i++ {
		NewWorker(i, workerPool, r.logger).Start(workerCtx, &workers, process)
	}

	skip := func() {
		mu.Lock()
		summary.Skipped++
		mu.Unlock()
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		r.dispatch(ctx, jobQueue, workerPool, &inflight, skip)
	}()

	invalid, err := r.enqueue(ctx, src, jobQueue)
	close(jobQueue)

	<-dispatched
	inflight.Wait()
	cancel()
	workers.Wait()

	summary.Invalid = invalid

	r.logger.Info("callback replay finished",
		"sent", summary.Sent,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"failed", summary.Failed,
		"invalid", summary.Invalid,
		"skipped", summary.Skipped)

	return summary, err
}

func (r *Replayer) dispatch(ctx context.Context, jobQueue chan Job, workerPool chan chan Job, inflight *sync.WaitGroup, skip func()) {
	for job := range jobQueue {
		if ctx.Err() != nil {
			skip()
			continue
		}

		select {
		case jobChannel := <-workerPool:
			inflight.Add(1)
			jobChannel <- job
		case <-ctx.Done():
			skip()
		}
	}
}

func (r *Replayer) enqueue(ctx context.Context, src io.Reader, jobQueue chan Job) (int, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	invalid := 0
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return invalid, err
		}

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var object map[string]interface{}
		if err := json.Unmarshal(raw, &object); err != nil || object == nil {
			r.logger.Warn("skipping line that is not a JSON object", "line", line)
			invalid++
			continue
		}

		payload := append([]byte(nil), raw...)
		for attempt := 1; attempt <= r.repeat; attempt++ {
			select {
			case jobQueue <- Job{Line: line, Attempt: attempt, Payload: payload}:
			case <-ctx.Done():
				return invalid, ctx.Err()
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return invalid, fmt.Errorf("read callbacks: %w", err)
	}
	return invalid, nil
}

func (r *Replayer) send(ctx context.Context, job Job) (int, *reconciliation.Acknowledgement, error) {
	ctx, cancel := context.WithTimeout(ctx, r.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(job.Payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorHeader, ReplayActor)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	var ack reconciliation.Acknowledgement
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		r.logger.Warn("webhook answered without an acknowledgement", "line", job.Line, "status_code", resp.StatusCode)
		return resp.StatusCode, nil, nil
	}
	return resp.StatusCode, &ack, nil
}
