// Package storage is the key-value persistence layer of the notification
// core.
//
// KV has four drivers selected by Open: memory, file (one JSON file per key,
// atomic rename on write), sqlite (modernc.org/sqlite, pure Go) and redis
// (github.com/redis/go-redis/v9). Writer wraps any KV with a background
// goroutine so callers can persist state without waiting on I/O; writes are
// coalesced per key and failures are logged, never returned.
package storage
