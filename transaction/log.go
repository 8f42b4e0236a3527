package transaction

import (
	"context"
	"fmt"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Action undoes exactly one cache mutation.
type Action func(ctx context.Context) error

// Log is the ordered list of compensating actions recorded while a
// transaction is open. It is owned by one Coordinator.
type Log struct {
	mu      sync.Mutex
	actions []Action
}

// NewLog returns an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Append records action after every action recorded so far.
func (l *Log) Append(action Action) {
	if action == nil {
		return
	}
	l.mu.Lock()
	l.actions = append(l.actions, action)
	l.mu.Unlock()
}

// Len returns the number of recorded actions.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

// Discard drops every recorded action without running it.
func (l *Log) Discard() {
	l.mu.Lock()
	l.actions = nil
	l.mu.Unlock()
}

// Replay drains the log newest first. A failing action does not stop the
// replay; its error is collected and the next action runs.
func (l *Log) Replay(ctx context.Context) (ran int, failures *goerrors.ErrorCollector) {
	l.mu.Lock()
	actions := l.actions
	l.actions = nil
	l.mu.Unlock()

	failures = goerrors.NewCollector(
		goerrors.WithMaxErrors(len(actions)+1),
		goerrors.WithContext(ctx),
	)

	for i := len(actions) - 1; i >= 0; i-- {
		ran++
		if err := runAction(ctx, actions[i]); err != nil {
			failures.Add(goerrors.Wrap(err, goerrors.CategoryOperation, fmt.Sprintf("compensating action %d", i)).
				WithTextCode("COMPENSATION_FAILED").
				WithMetadata(map[string]any{"position": i}))
		}
	}
	return ran, failures
}

func runAction(ctx context.Context, action Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensating action panicked: %v", r)
		}
	}()
	return action(ctx)
}
