// Package retry provides the concurrency primitives used around backend
// calls: timeout wrapping, retry with backoff, bounded-parallel execution,
// and sequential first-success racing.
//
// All helpers are generic and context-aware. They carry no workflow
// semantics; the workflow runner and the resilient backend compose them.
package retry
