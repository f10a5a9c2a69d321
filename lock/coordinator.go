package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/coreops/coreops/metrics"
)

// Coordinator owns the connection to the shared store and hands out Mutex
// handles bound to it. One Coordinator per process, constructed at startup
// and passed to every consumer.
type Coordinator struct {
	client   redis.UniversalClient
	defaults Options
}

// Info is a diagnostic view of a single lock key.
type Info struct {
	Name  string
	Token string
	// TTL is the remaining lease time. Zero when the key is absent,
	// negative when the key carries no expiry at all.
	TTL  time.Duration
	Held bool
}

// Status is the coordinator's contribution to the health snapshot.
type Status struct {
	Reachable   bool
	ActiveLocks int
}

// NewCoordinator returns a Coordinator using the provided client. The
// coordinator takes ownership of the client: Close closes it. Options become
// the defaults for every lock it creates.
func NewCoordinator(client redis.UniversalClient, opts ...Option) *Coordinator {
	defaults := defaultOptions()
	for _, opt := range opts {
		opt(&defaults)
	}
	return &Coordinator{client: client, defaults: defaults}
}

// Initialize verifies the store is reachable. A failure here is the only
// fatal connectivity error in the package; steady-state failures degrade.
func (c *Coordinator) Initialize(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}

// Close releases the store connection.
func (c *Coordinator) Close() error {
	return c.client.Close()
}

// Lock returns a Mutex for name bound to this coordinator's connection.
// The lock is not acquired yet.
func (c *Coordinator) Lock(name string, opts ...Option) *Mutex {
	o := c.defaults
	for _, opt := range opts {
		opt(&o)
	}
	return &Mutex{
		client: c.client,
		name:   name,
		key:    keyPrefix + name,
		opts:   o,
	}
}

// Acquire creates and acquires a Mutex in one call.
func (c *Coordinator) Acquire(ctx context.Context, name string, opts ...Option) (*Mutex, error) {
	m := c.Lock(name, opts...)
	if err := m.Acquire(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Do runs fn while holding the named lock. Release is attempted on every
// exit path: normal return, error, panic, and context cancellation. The
// cross-cutting behavior stays visible at the call site instead of hiding
// in a wrapper type.
func (c *Coordinator) Do(ctx context.Context, name string, fn func(context.Context) error, opts ...Option) error {
	m, err := c.Acquire(ctx, name, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if _, err := m.Release(ctx); err != nil {
			slog.Warn("coreops: lock release failed", "name", name, "error", err)
		}
	}()
	return fn(ctx)
}

// ForceRelease deletes the named lock regardless of who holds it. This is an
// administrative override that can corrupt an in-progress critical section,
// so every use is logged at warning level.
func (c *Coordinator) ForceRelease(ctx context.Context, name string) (bool, error) {
	n, err := c.client.Del(ctx, keyPrefix+name).Result()
	if err != nil {
		return false, err
	}
	slog.Warn("coreops: lock force released", "name", name, "existed", n > 0)
	metrics.LockForcedReleases.Inc()
	return n > 0, nil
}

// Info returns the stored token and remaining lease for name.
func (c *Coordinator) Info(ctx context.Context, name string) (*Info, error) {
	key := keyPrefix + name
	token, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return &Info{Name: name}, nil
	}
	if err != nil {
		return nil, err
	}
	ttl, err := c.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return &Info{Name: name, Token: token, TTL: ttl, Held: true}, nil
}

// CleanupExpired scans the lock namespace and removes keys carrying no
// expiry at all. Correctly created locks always have a lease, so a
// persistent key marks a bug in some creation path; each removal is logged
// to make that path findable. Returns the number of keys removed.
func (c *Coordinator) CleanupExpired(ctx context.Context) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := c.client.PTTL(ctx, key).Result()
		if err != nil {
			return removed, err
		}
		// PTTL reports -1 for keys with no expiry, -2 for keys that
		// vanished between SCAN and here.
		if ttl != -1 {
			continue
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return removed, err
		}
		slog.Warn("coreops: removed lock without expiry", "key", key)
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Status reports store reachability and the number of live lock keys.
// Never returns an error: an unreachable store yields Reachable=false and
// zero counts so health aggregation can degrade instead of failing.
func (c *Coordinator) Status(ctx context.Context) *Status {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return &Status{}
	}
	st := &Status{Reachable: true}
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		st.ActiveLocks++
	}
	if iter.Err() != nil {
		// Partial scan still counts as reachable; the count is best-effort.
		return st
	}
	return st
}
