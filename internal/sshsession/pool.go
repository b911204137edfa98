package sshsession

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joeycumines/logiface"
	"github.com/opereon/opereon-sub000/internal/logging"
)

const defaultCacheLimit = 16

// Pool is the LRU-cached set of open Sessions, keyed by Dest.CacheKey
// (user-host-port), matching spec.md's session reuse requirement: two
// operations against the same endpoint share one ControlMaster socket.
type Pool struct {
	cfg Config
	log *logiface.Logger[logiface.Event]

	mu    sync.Mutex
	cache *lru.Cache[string, *Session]
}

// NewPool builds a Pool caching up to limit sessions (defaultCacheLimit if
// limit <= 0). Evicted sessions are closed in the background.
func NewPool(cfg Config, limit int) *Pool {
	if limit <= 0 {
		limit = defaultCacheLimit
	}
	p := &Pool{cfg: cfg, log: logging.For(cfg.Log, "sshsession.pool")}
	cache, _ := lru.NewWithEvict(limit, func(key string, s *Session) {
		go func() {
			if err := s.Close(context.Background()); err != nil {
				p.log.Warning().Str("dest", key).Err(err).Log("evicted ssh session failed to close cleanly")
			}
		}()
	})
	p.cache = cache
	return p
}

// Get returns the cached Session for dest, opening a fresh one (and
// evicting the least-recently-used entry if the pool is at capacity) if
// none exists yet.
func (p *Pool) Get(ctx context.Context, dest Dest) (*Session, error) {
	key := dest.CacheKey()

	p.mu.Lock()
	if s, ok := p.cache.Get(key); ok {
		p.mu.Unlock()
		return s, nil
	}
	s := newSession(dest, p.cfg)
	p.cache.Add(key, s)
	p.mu.Unlock()

	if err := s.Open(ctx); err != nil {
		p.mu.Lock()
		p.cache.Remove(key)
		p.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// CloseAll tears down every cached session, e.g. at engine shutdown.
func (p *Pool) CloseAll(ctx context.Context) {
	p.mu.Lock()
	keys := p.cache.Keys()
	p.mu.Unlock()
	for _, k := range keys {
		p.mu.Lock()
		s, ok := p.cache.Peek(k)
		p.mu.Unlock()
		if ok {
			_ = s.Close(ctx)
		}
	}
}
