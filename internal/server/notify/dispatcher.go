package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/subkeeper/internal/logging"
)

var (
	// ErrQueueFull is the Result of a message dropped on a full queue.
	ErrQueueFull = errors.New("notification queue full")
	// ErrClosed is the Result of a message dispatched after Close.
	ErrClosed = errors.New("notification dispatcher closed")
)

type job struct {
	ctx    context.Context
	msg    Message
	result chan Result
}

// Dispatcher runs sends on a fixed number of workers. Dispatch never blocks.
type Dispatcher struct {
	sender Sender
	log    logging.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines reading from a queue of queueSize.
func NewDispatcher(sender Sender, workers, queueSize int, log logging.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	d := &Dispatcher{
		sender: sender,
		log:    log.With("module", "notify"),
		jobs:   make(chan job, queueSize),
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		res := safeSend(j.ctx, d.sender, j.msg)
		if res.Err != nil {
			d.log.Warn(j.ctx, "notification failed", "kind", j.msg.Kind, "to", j.msg.To, "error", res.Err)
		}
		j.result <- res
	}
}

// Dispatch queues msg and returns a channel that receives its Result exactly
// once. The channel is buffered, so callers may ignore it. The send is
// detached from ctx cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) <-chan Result {
	result := make(chan Result, 1)
	j := job{ctx: context.WithoutCancel(ctx), msg: msg, result: result}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		result <- Result{Kind: msg.Kind, To: msg.To, Err: ErrClosed}
		return result
	}

	select {
	case d.jobs <- j:
	default:
		d.log.Warn(ctx, "notification dropped", "kind", msg.Kind, "to", msg.To, "error", ErrQueueFull)
		result <- Result{Kind: msg.Kind, To: msg.To, Err: ErrQueueFull}
	}
	return result
}

// Close stops accepting messages and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()
}
