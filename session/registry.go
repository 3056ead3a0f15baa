package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sweetpotato0/adaptive-rag/errors"
	"github.com/sweetpotato0/adaptive-rag/message"
	"github.com/sweetpotato0/adaptive-rag/pkg/logging"
)

// Registry is the only owner of conversation memory. Turns against the same
// thread id run one at a time through Acquire.
type Registry struct {
	store  Store
	window int
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	sem  chan struct{}
	refs int
}

// Option configures a Registry.
type Option func(*Registry)

// WithWindow sets how many trailing messages Window returns.
func WithWindow(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.window = n
		}
	}
}

// WithLogger overrides the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry over store. A nil store keeps memory in process.
func NewRegistry(store Store, opts ...Option) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	r := &Registry{
		store:  store,
		window: 10,
		locks:  make(map[string]*threadLock),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.WithComponent("session_registry")
	}
	return r
}

// Acquire blocks until no other turn holds threadID, or ctx is done. The
// returned release func must be called exactly once.
func (r *Registry) Acquire(ctx context.Context, threadID string) (func(), error) {
	if !validThread(threadID) {
		return nil, fmt.Errorf("%w: thread id cannot be empty", errors.ErrInvalidInput)
	}

	r.mu.Lock()
	lock, ok := r.locks[threadID]
	if !ok {
		lock = &threadLock{sem: make(chan struct{}, 1)}
		r.locks[threadID] = lock
	}
	lock.refs++
	r.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		r.unref(threadID, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			r.unref(threadID, lock)
		})
	}, nil
}

func (r *Registry) unref(threadID string, lock *threadLock) {
	r.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(r.locks, threadID)
	}
	r.mu.Unlock()
}

// Memory returns the full stored log for threadID.
func (r *Registry) Memory(ctx context.Context, threadID string) ([]*message.Message, error) {
	msgs, err := r.store.Messages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load memory for %s: %w", threadID, err)
	}
	return msgs, nil
}

// Window returns the trailing messages used to build generation context.
func (r *Registry) Window(ctx context.Context, threadID string) ([]*message.Message, error) {
	msgs, err := r.Memory(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return message.Window(msgs, r.window), nil
}

// AppendTurn stores one human question and the assistant answer.
func (r *Registry) AppendTurn(ctx context.Context, threadID, question, answer string) error {
	err := r.store.Append(ctx, threadID,
		message.NewMessage(message.RoleHuman, question),
		message.NewMessage(message.RoleAssistant, answer),
	)
	if err != nil {
		r.logger.Error("append turn failed", "thread_id", threadID, "error", err)
		return fmt.Errorf("append turn to %s: %w", threadID, err)
	}
	return nil
}

// Reset drops the memory of threadID and returns a fresh thread id. It
// waits for any turn in flight on threadID so that turn's append cannot
// land after the delete.
func (r *Registry) Reset(ctx context.Context, threadID string) (string, error) {
	if validThread(threadID) {
		release, err := r.Acquire(ctx, threadID)
		if err != nil {
			return "", fmt.Errorf("reset %s: %w", threadID, err)
		}
		err = r.store.Delete(ctx, threadID)
		release()
		if err != nil {
			return "", fmt.Errorf("reset %s: %w", threadID, err)
		}
	}
	next := NewThreadID()
	r.logger.Info("session reset", "old_thread_id", threadID, "thread_id", next)
	return next, nil
}

// History returns the answered questions of threadID in order.
func (r *Registry) History(ctx context.Context, threadID string) ([]Exchange, error) {
	msgs, err := r.Memory(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return Exchanges(msgs), nil
}
