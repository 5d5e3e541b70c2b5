package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daoledger/daoledger/internal/logging"
	"github.com/daoledger/daoledger/internal/metrics"
)

// Resolver runs phase two as its own serialized invocation.
type Resolver interface {
	ResolveTransfer(ctx context.Context, c Continuation, resp Response) (Outcome, error)
}

// Ticket lets the phase-one caller wait for the settled outcome.
type Ticket struct {
	ID uuid.UUID

	done    chan struct{}
	once    sync.Once
	outcome Outcome
	err     error
}

// NewTicket returns an unsettled ticket for continuation id.
func NewTicket(id uuid.UUID) *Ticket {
	return &Ticket{ID: id, done: make(chan struct{})}
}

func (t *Ticket) settle(outcome Outcome, err error) {
	t.once.Do(func() {
		t.outcome = outcome
		t.err = err
		close(t.done)
	})
}

// Done is closed once the ticket settles.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Wait blocks until the transfer settles or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// ErrStopped settles tickets still queued when the dispatcher stops.
var ErrStopped = errors.New("settlement dispatcher stopped")

type job struct {
	cont   Continuation
	ticket *Ticket
}

// Dispatcher calls receivers on worker goroutines and feeds their answers
// back through the Resolver. Enqueue never blocks.
type Dispatcher struct {
	receivers *Directory
	resolver  Resolver
	logger    *slog.Logger
	metrics   *metrics.Metrics
	workers   int
	timeout   time.Duration

	mu      sync.Mutex
	queue   []job
	stopped bool
	notify  chan struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
}

// Options configures a Dispatcher.
type Options struct {
	Workers int
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// NewDispatcher wires a dispatcher that resolves through resolver.
func NewDispatcher(receivers *Directory, resolver Resolver, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Dispatcher{
		receivers: receivers,
		resolver:  resolver,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		notify:    make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
}

// Start launches the workers. They run until Stop or ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Stop halts the workers and settles queued tickets with ErrStopped. Their
// continuations stay unresolved and are dispatched again after a restart.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	pending := d.queue
	d.queue = nil
	close(d.quit)
	d.mu.Unlock()

	d.wg.Wait()
	for _, j := range pending {
		j.ticket.settle(Outcome{}, ErrStopped)
	}
}

// Enqueue schedules c. A nil ticket is replaced by a fresh one.
func (d *Dispatcher) Enqueue(c Continuation, t *Ticket) *Ticket {
	if t == nil {
		t = NewTicket(c.ID)
	}
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		t.settle(Outcome{}, ErrStopped)
		return t
	}
	d.queue = append(d.queue, job{cont: c, ticket: t})
	d.mu.Unlock()

	select {
	case d.notify <- struct{}{}:
	default:
	}
	return t
}

// Pending returns the number of queued continuations.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) next() (job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return job{}, false
	}
	j := d.queue[0]
	d.queue = d.queue[1:]
	if len(d.queue) > 0 {
		select {
		case d.notify <- struct{}{}:
		default:
		}
	}
	return j, true
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		if j, ok := d.next(); ok {
			d.process(ctx, j)
			continue
		}
		select {
		case <-d.notify:
		case <-d.quit:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, j job) {
	resp := d.call(ctx, j.cont)

	d.mu.Lock()
	resolver := d.resolver
	d.mu.Unlock()
	if resolver == nil {
		j.ticket.settle(Outcome{}, errors.New("settlement resolver not configured"))
		return
	}

	outcome, err := resolver.ResolveTransfer(ctx, j.cont, resp)
	if err != nil {
		d.logger.Error("settlement resolve failed",
			"continuation", j.cont.ID.String(),
			"receiver", j.cont.Receiver,
			"error", err,
		)
		d.metrics.ObserveSettlement("error")
	} else if outcome.Refunded.IsZero() {
		d.metrics.ObserveSettlement("used")
	} else {
		d.metrics.ObserveSettlement("refunded")
	}
	j.ticket.settle(outcome, err)
}

func (d *Dispatcher) call(ctx context.Context, c Continuation) Response {
	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	value, err := d.receivers.Call(callCtx, c.Receiver, c.Notice())
	if err != nil {
		d.logger.Warn("receiver call failed",
			"continuation", c.ID.String(),
			"receiver", c.Receiver,
			"error", err,
		)
		return Failure(err)
	}
	return Response{Value: value}
}
