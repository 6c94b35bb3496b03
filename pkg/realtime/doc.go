// Package realtime synchronizes the live connection with the notification
// history and user preferences.
//
// A Service subscribes to every inbound event type, runs each event through
// the notifications Engine and publishes a Snapshot to watchers after every
// change. Config, history and connection status are persisted through a
// storage.Persister and restored by Initialize.
package realtime
