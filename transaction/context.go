package transaction

import "context"

type coordinatorContextKey struct{}

// WithCoordinator returns a copy of ctx carrying c.
func WithCoordinator(ctx context.Context, c *Coordinator) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, coordinatorContextKey{}, c)
}

// FromContext returns the coordinator carried by ctx, if any.
func FromContext(ctx context.Context) (*Coordinator, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(coordinatorContextKey{}).(*Coordinator)
	return c, ok && c != nil
}

// Active reports whether ctx carries a coordinator with an open transaction.
func Active(ctx context.Context) bool {
	c, ok := FromContext(ctx)
	return ok && c.Active()
}

// AddCompensatingAction records action on the coordinator carried by ctx.
// Without an open transaction the mutation is already durable and
// nothing is recorded.
func AddCompensatingAction(ctx context.Context, action Action) {
	if c, ok := FromContext(ctx); ok {
		c.AddCompensatingAction(action)
	}
}

// StoreTxFromContext returns the system-of-record transaction opened by the
// coordinator carried by ctx. Store adapters use it to join the transaction.
func StoreTxFromContext(ctx context.Context) (StoreTx, bool) {
	c, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	tx := c.StoreTx()
	return tx, tx != nil
}
