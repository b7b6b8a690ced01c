// Package cache provides the content-addressed response cache used to avoid
// repeating identical backend calls. A request fingerprint maps to a cached
// response in a local LRU+TTL store, optionally backed by a shared Redis
// tier. Cache internals never raise: on any internal failure callers see a
// miss and proceed with a fresh backend call.
package cache
