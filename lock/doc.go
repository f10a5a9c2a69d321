// Package lock provides distributed mutual exclusion backed by a shared
// Redis keyspace. Every lock is a lease: a namespaced key holding a random
// ownership token with an expiry, so a crashed holder can never block other
// processes forever. Release and extension are token-gated Lua scripts,
// making ownership checks atomic with the action they guard.
package lock
