// Package tracker records the lifecycle of long-lived in-process resources
// so they cannot leak silently. Owners register a resource at creation,
// touch it on use and unregister it at disposal; a background sweep reclaims
// records whose last access is older than a threshold. Owners that discard
// an object without unregistering signal it through MarkDisposed, which a
// single bounded worker drains asynchronously.
package tracker
