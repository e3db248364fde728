package billing

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is an in-process Locker. It serializes callers sharing a key
// and honours context cancellation while waiting.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates a Locker for a single process.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock implements Locker.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *MemoryLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// MemoryNonceStore is an in-process NonceStore. Entries older than ttl are forgotten.
type MemoryNonceStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryNonceStore creates a NonceStore remembering nonces for ttl.
func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	return &MemoryNonceStore{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Consume implements NonceStore.
func (s *MemoryNonceStore) Consume(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, at := range s.seen {
		if s.ttl > 0 && now.Sub(at) > s.ttl {
			delete(s.seen, k)
		}
	}

	if _, ok := s.seen[nonce]; ok {
		return false, nil
	}
	s.seen[nonce] = now
	return true, nil
}
