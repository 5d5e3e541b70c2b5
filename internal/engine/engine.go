// Package engine is the single-writer invocation boundary. Each mutating call
// runs alone, inside a state.Tx, and is journaled before its writes commit.
// Committed events are published afterwards and transfer-and-call
// continuations are handed to the settlement dispatcher.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/config"
	"github.com/daoledger/daoledger/internal/journal"
	"github.com/daoledger/daoledger/internal/logging"
	"github.com/daoledger/daoledger/internal/metrics"
	"github.com/daoledger/daoledger/internal/notification"
	"github.com/daoledger/daoledger/internal/registry"
	"github.com/daoledger/daoledger/internal/settlement"
	"github.com/daoledger/daoledger/internal/state"
)

// Options wires the engine's collaborators. Zero values select in-memory or
// no-op implementations.
type Options struct {
	Genesis         config.Genesis
	Journal         journal.Journal
	Notifier        notification.Notifier
	Receivers       *settlement.Directory
	Storage         registry.StorageAccountant
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	Workers         int
	ReceiverTimeout time.Duration
	Clock           func() time.Time
}

// pendingTransfer indexes an initiated transfer-and-call until it resolves.
// It only gates resolution and restart re-dispatch; amounts always come from
// the continuation the resolver hands back, never from this index.
type pendingTransfer struct {
	seq  uint64
	cont settlement.Continuation
}

// Engine owns the organization state.
type Engine struct {
	mu      sync.RWMutex
	store   *state.Store
	seq     uint64
	pending map[uuid.UUID]pendingTransfer
	started bool

	genesis    config.Genesis
	journal    journal.Journal
	notifier   notification.Notifier
	receivers  *settlement.Directory
	storage    registry.StorageAccountant
	metrics    *metrics.Metrics
	logger     *slog.Logger
	clock      func() time.Time
	dispatcher *settlement.Dispatcher
}

// New builds an engine. Start must be called before use.
func New(opts Options) *Engine {
	if opts.Journal == nil {
		opts.Journal = journal.NewMemory()
	}
	if opts.Receivers == nil {
		opts.Receivers = settlement.NewDirectory()
	}
	if opts.Storage == nil {
		opts.Storage = registry.StaticStorage{Min: opts.Genesis.StorageMinBalance}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	e := &Engine{
		store:     state.NewStore(),
		pending:   make(map[uuid.UUID]pendingTransfer),
		genesis:   opts.Genesis,
		journal:   opts.Journal,
		notifier:  opts.Notifier,
		receivers: opts.Receivers,
		storage:   opts.Storage,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		clock:     opts.Clock,
	}
	e.dispatcher = settlement.NewDispatcher(opts.Receivers, e, settlement.Options{
		Workers: opts.Workers,
		Timeout: opts.ReceiverTimeout,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	return e
}

// Start replays the journal, runs genesis on an empty journal, starts the
// settlement workers and dispatches every transfer-and-call that was
// initiated but never resolved.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	if err := e.replay(ctx); err != nil {
		e.mu.Unlock()
		return err
	}
	initialized := e.store.Begin().Initialized()
	e.mu.Unlock()

	if !initialized {
		if err := e.runGenesis(ctx); err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
	}

	e.dispatcher.Start(ctx)
	for _, c := range e.unresolved() {
		e.logger.Info("redispatching unresolved transfer", "continuation", c.ID.String(), "receiver", c.Receiver)
		e.dispatcher.Enqueue(c, nil)
	}
	return nil
}

// Stop halts the settlement workers. Unresolved transfers resume on the
// next Start.
func (e *Engine) Stop() {
	e.dispatcher.Stop()
}

// Receivers exposes the receiver directory.
func (e *Engine) Receivers() *settlement.Directory {
	return e.receivers
}

func (e *Engine) unresolved() []settlement.Continuation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := make([]pendingTransfer, 0, len(e.pending))
	for _, p := range e.pending {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]settlement.Continuation, len(list))
	for i, p := range list {
		out[i] = p.cont
	}
	return out
}

func (e *Engine) replay(ctx context.Context) error {
	entries, err := e.journal.Entries(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	for _, entry := range entries {
		if entry.Seq != e.seq+1 {
			return fmt.Errorf("journal gap: expected seq %d, found %d", e.seq+1, entry.Seq)
		}
		h, ok := handlers[entry.Op]
		if !ok {
			return fmt.Errorf("journal seq %d: unknown operation %q", entry.Seq, entry.Op)
		}
		tx := e.store.BeginAt(entry.At)
		if _, err := h(e, tx, entry.Caller, entry.Seq, entry.Args); err != nil {
			tx.Rollback()
			return fmt.Errorf("replay seq %d (%s): %w", entry.Seq, entry.Op, err)
		}
		fx := tx.Commit()
		for _, hook := range fx.Hooks {
			hook()
		}
		e.seq = entry.Seq
	}
	if len(entries) > 0 {
		e.logger.Info("journal replayed", "entries", len(entries), "unresolved_transfers", len(e.pending))
	}
	e.metrics.SetProposals(len(e.store.Begin().ProposalIDs()))
	return nil
}

// invoke runs one serialized invocation. Nothing it wrote survives an error;
// on success the entry is journaled, the writes commit and its events are
// published once the lock is released.
func (e *Engine) invoke(ctx context.Context, op, caller string, args any) (any, error) {
	start := time.Now()
	result, events, err := e.apply(ctx, op, caller, args)
	e.metrics.ObserveOperation(op, string(codeOf(err)), time.Since(start))
	if err != nil {
		e.logger.Info("operation rejected", "op", op, "caller", caller, "error", err)
		return nil, err
	}
	e.logger.Debug("operation committed", "op", op, "caller", caller)
	e.publish(ctx, events)
	return result, nil
}

func (e *Engine) apply(ctx context.Context, op, caller string, args any) (any, []notification.Event, error) {
	h, ok := handlers[op]
	if !ok {
		return nil, nil, fmt.Errorf("unknown operation %q", op)
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s arguments: %w", op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry := journal.Entry{
		Seq:    e.seq + 1,
		Op:     op,
		Caller: caller,
		Args:   raw,
		At:     e.clock().UTC().Truncate(time.Microsecond), // timestamptz precision
	}
	tx := e.store.BeginAt(entry.At)
	result, err := h(e, tx, caller, entry.Seq, raw)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if err := e.journal.Append(ctx, entry); err != nil {
		tx.Rollback()
		return nil, nil, fmt.Errorf("journal %s: %w", op, err)
	}
	e.seq = entry.Seq
	fx := tx.Commit()
	for _, hook := range fx.Hooks {
		hook()
	}
	return result, fx.Events, nil
}

func (e *Engine) publish(ctx context.Context, events []notification.Event) {
	if e.notifier == nil {
		return
	}
	for _, ev := range events {
		if err := e.notifier.Send(ctx, ev); err != nil {
			e.logger.Warn("event delivery failed", "kind", ev.Kind, "error", err)
		}
	}
}

// view runs fn against a read-only snapshot of committed state.
func (e *Engine) view(fn func(tx *state.Tx)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.store.Begin())
}

func codeOf(err error) apperr.Code {
	if err == nil {
		return ""
	}
	return apperr.GetCode(err)
}
