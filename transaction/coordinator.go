package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-indexcache/internal/metrics"
)

// StoreTx is the system-of-record transaction handle.
type StoreTx interface {
	Commit() error
	Rollback() error
}

// Beginner opens system-of-record transactions.
type Beginner interface {
	Begin(ctx context.Context) (StoreTx, error)
}

// BeginnerFunc adapts a function to Beginner.
type BeginnerFunc func(ctx context.Context) (StoreTx, error)

func (f BeginnerFunc) Begin(ctx context.Context) (StoreTx, error) {
	return f(ctx)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used for transaction lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the collectors updated on commit and rollback.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

type current struct {
	tx  StoreTx
	log *Log
}

// Coordinator wraps one system-of-record transaction at a time and records a
// compensating action for every cache mutation made while it is open.
//
// A Coordinator is request scoped: create one per logical unit of work and
// let it travel in the context. It is idle until Use opens a transaction and
// returns to idle when the outermost Use commits or rolls back.
type Coordinator struct {
	beginner Beginner
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	current *current
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator(beginner Beginner, opts ...Option) *Coordinator {
	c := &Coordinator{
		beginner: beginner,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Use runs action inside a transaction. The first call opens the transaction
// and finishes it: commit when action returns nil, rollback otherwise. A call
// made while a transaction is already open runs action inline and leaves the
// outcome to the outermost call.
//
// The context passed to action carries the coordinator, so repositories called
// from it register their compensating actions here.
func (c *Coordinator) Use(ctx context.Context, action func(ctx context.Context) error) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	txCtx := WithCoordinator(ctx, c)

	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return action(txCtx)
	}
	state := &current{log: NewLog()}
	c.current = state
	c.mu.Unlock()

	if c.beginner != nil {
		tx, berr := c.beginner.Begin(ctx)
		if berr != nil {
			c.detach()
			return goerrors.Wrap(berr, goerrors.CategoryOperation, "begin transaction")
		}
		c.mu.Lock()
		state.tx = tx
		c.mu.Unlock()
	}
	c.logger.Debug("transaction started")

	defer func() {
		if r := recover(); r != nil {
			c.rollback(ctx, fmt.Errorf("transaction action panicked: %v", r))
			panic(r)
		}
	}()

	if err = action(txCtx); err != nil {
		return c.rollback(ctx, err)
	}
	return c.commit()
}

// UseValue is Use for actions that produce a value. The zero value is
// returned when the transaction rolls back or fails to commit.
func UseValue[T any](ctx context.Context, c *Coordinator, action func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := c.Use(ctx, func(ctx context.Context) error {
		v, err := action(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// AddCompensatingAction appends action to the open transaction log.
// It is a no-op while idle.
func (c *Coordinator) AddCompensatingAction(action Action) {
	if c == nil || action == nil {
		return
	}
	c.mu.Lock()
	state := c.current
	c.mu.Unlock()
	if state == nil {
		return
	}
	state.log.Append(action)
}

// Active reports whether a transaction is open.
func (c *Coordinator) Active() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Pending returns the number of compensating actions recorded so far.
func (c *Coordinator) Pending() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	state := c.current
	c.mu.Unlock()
	if state == nil {
		return 0
	}
	return state.log.Len()
}

// StoreTx returns the open system-of-record transaction, or nil while idle.
func (c *Coordinator) StoreTx() StoreTx {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.tx
}

func (c *Coordinator) detach() *current {
	c.mu.Lock()
	defer c.mu.Unlock()
	state := c.current
	c.current = nil
	return state
}

// commit finishes the system-of-record transaction and drops the log.
// A failed commit is returned as is; nothing is replayed.
func (c *Coordinator) commit() error {
	state := c.detach()
	if state == nil {
		return nil
	}
	state.log.Discard()

	if state.tx != nil {
		if err := state.tx.Commit(); err != nil {
			c.logger.Error("transaction commit failed", "error", err)
			return goerrors.Wrap(err, goerrors.CategoryOperation, "commit transaction")
		}
	}

	c.metrics.Commit()
	c.logger.Debug("transaction committed")
	return nil
}

// rollback aborts the system-of-record transaction, then replays the log
// newest first. The returned error always wraps cause.
func (c *Coordinator) rollback(ctx context.Context, cause error) error {
	state := c.detach()
	if state == nil {
		return cause
	}

	var txErr error
	if state.tx != nil {
		if err := state.tx.Rollback(); err != nil {
			txErr = fmt.Errorf("rollback store transaction: %w", err)
			c.logger.Error("store rollback failed", "error", err)
		}
	}

	// compensations must run even when ctx was cancelled
	ran, failures := state.log.Replay(context.WithoutCancel(ctx))
	if failures.HasErrors() {
		failures.LogErrors(c.logger)
	}
	c.metrics.Rollback(ran, failures.Count())
	c.logger.Debug("transaction rolled back",
		"compensations", ran,
		"failed", failures.Count(),
		"cause", cause,
	)

	if txErr != nil {
		return errors.Join(cause, txErr)
	}
	return cause
}
