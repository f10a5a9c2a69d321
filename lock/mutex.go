package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/coreops/coreops/metrics"
)

// keyPrefix namespaces every lock key in the shared store.
const keyPrefix = "coreops:lock:"

// releaseGrace bounds best-effort cleanup when the caller's context is
// already done. Unlocking must still be attempted on cancellation exits,
// otherwise the lease lingers until its expiry.
const releaseGrace = 5 * time.Second

// ErrAcquireTimeout is returned when a lock could not be acquired within the
// configured timeout. It is distinct from infrastructure errors so callers
// can tell contention from a broken store.
var ErrAcquireTimeout = errors.New("coreops: lock acquire timeout")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// Options configures a single lock acquisition.
type Options struct {
	// Timeout bounds the whole Acquire call, retries included.
	Timeout time.Duration
	// RetryInterval is the fixed wait between acquisition attempts.
	// There is no backoff and no fairness queue; any waiter may win a retry.
	RetryInterval time.Duration
	// Lease is the expiry applied to the lock key. It is independent of
	// Timeout and guarantees eventual release if the holder crashes.
	Lease time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithTimeout sets the acquisition timeout.
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

// WithRetryInterval sets the wait between acquisition attempts.
func WithRetryInterval(d time.Duration) Option { return func(o *Options) { o.RetryInterval = d } }

// WithLease sets the lease duration applied on acquisition.
func WithLease(d time.Duration) Option { return func(o *Options) { o.Lease = d } }

func defaultOptions() Options {
	return Options{
		Timeout:       10 * time.Second,
		RetryInterval: 100 * time.Millisecond,
		Lease:         30 * time.Second,
	}
}

// Mutex is a single named lease. It is bound to the coordinator's client and
// owns whatever token its latest successful Acquire stored; only that token
// can release or extend the lease.
//
// A Mutex is not safe for concurrent use by multiple goroutines; create one
// per protected scope instead of sharing instances.
type Mutex struct {
	client redis.UniversalClient
	name   string
	key    string
	token  string
	opts   Options
}

// Name returns the caller-chosen lock name.
func (m *Mutex) Name() string { return m.name }

// Token returns the token of the latest acquisition attempt. Empty until
// Acquire has been called.
func (m *Mutex) Token() string { return m.token }

// Acquire attempts to create the lock key with a fresh token and the
// configured lease, retrying every RetryInterval until Timeout elapses.
// Exhausting the timeout returns ErrAcquireTimeout; context cancellation
// returns ctx.Err(); anything else is a store failure.
func (m *Mutex) Acquire(ctx context.Context) error {
	m.token = uuid.NewString()
	deadline := time.Now().Add(m.opts.Timeout)
	for {
		ok, err := m.client.SetNX(ctx, m.key, m.token, m.opts.Lease).Result()
		if err != nil {
			return err
		}
		if ok {
			metrics.LockAcquisitions.Inc()
			return nil
		}
		metrics.LockContention.Inc()
		if !time.Now().Add(m.opts.RetryInterval).Before(deadline) {
			return ErrAcquireTimeout
		}
		timer := time.NewTimer(m.opts.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Release deletes the lock key if and only if it still holds this mutex's
// token. The check and the delete run as one Lua script, so an expired lease
// re-acquired by someone else can never be deleted from here.
//
// It returns false when the lease had already expired or been taken over;
// that is an expected race outcome, not an error. When ctx is already done
// the release runs on a short detached context so cancellation exits still
// clean up.
func (m *Mutex) Release(ctx context.Context) (bool, error) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()
	n, err := releaseScript.Run(ctx, m.client, []string{m.key}, m.token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n == 1, nil
}

// Extend re-applies an expiry of extra from now, gated on token match.
// Long-running holders call this before the current lease would elapse; the
// design cannot save a holder that lets the lease lapse mid-operation.
// A non-positive extra re-applies the configured lease.
func (m *Mutex) Extend(ctx context.Context, extra time.Duration) (bool, error) {
	if extra <= 0 {
		extra = m.opts.Lease
	}
	n, err := extendScript.Run(ctx, m.client, []string{m.key}, m.token, extra.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n == 1, nil
}

// Held reports whether the lock key currently exists. It is best-effort and
// fails open: a key whose presence cannot be confirmed is reported as not
// held, since an unreachable store must not block local reasoning.
func (m *Mutex) Held(ctx context.Context) bool {
	n, err := m.client.Exists(ctx, m.key).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// cleanupContext returns ctx unchanged while it is still live, or a fresh
// detached context bounded by releaseGrace once ctx is done.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx != nil && ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.Background(), releaseGrace)
}
