// package lock provides per-playlist mutual exclusion for reconciliation.
//
// Every backend is non-blocking: a key that is already held yields
// [shared.ErrReconcileInProgress] and the caller decides whether to retry later.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Release gives up a held lock. It is safe to call more than once.
type Release func() error

// Locker grants exclusive access to a playlist key.
type Locker interface {
	TryAcquire(ctx context.Context, key models.PlaylistKey) (Release, error)
}

// New builds the backend named by cfg.Backend. The file backend stores lock files under root.
func New(cfg shared.LockConfig, root string) (Locker, error) {
	switch cfg.Backend {
	case shared.LockBackendMemory, "":
		return NewMemoryLocker(), nil
	case shared.LockBackendFile:
		return NewFileLocker(root), nil
	case shared.LockBackendRedis:
		return NewRedisLocker(RedisOptions{Addr: cfg.RedisAddr, DB: cfg.RedisDB, TTL: cfg.TTL()})
	default:
		return nil, fmt.Errorf("%w: unknown lock backend %q", shared.ErrInvalidConfig, cfg.Backend)
	}
}

func contended(key models.PlaylistKey) error {
	return fmt.Errorf("%w: %s", shared.ErrReconcileInProgress, key)
}

// once wraps fn so repeated calls return the first result.
func once(fn func() error) Release {
	var (
		o   sync.Once
		err error
	)
	return func() error {
		o.Do(func() { err = fn() })
		return err
	}
}

// MemoryLocker serializes keys within a single process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[models.PlaylistKey]struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[models.PlaylistKey]struct{})}
}

func (m *MemoryLocker) TryAcquire(ctx context.Context, key models.PlaylistKey) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return nil, contended(key)
	}
	m.held[key] = struct{}{}

	return once(func() error {
		m.mu.Lock()
		delete(m.held, key)
		m.mu.Unlock()
		return nil
	}), nil
}

// Held reports whether key is currently locked.
func (m *MemoryLocker) Held(key models.PlaylistKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}
