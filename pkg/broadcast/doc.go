// Package broadcast provides two in-process fan-out primitives.
//
// Router delivers values synchronously, in registration order, to handlers
// subscribed under a key plus catch-all handlers. It backs inbound message
// routing where ordering matters and handlers must observe a value before
// the next one is routed.
//
// MemoryBroadcaster delivers values asynchronously over buffered channels and
// never blocks the sender. When a subscriber falls behind, its oldest queued
// value is discarded, so readers of state snapshots always converge on the
// latest one:
//
//	b := broadcast.NewMemoryBroadcaster[Snapshot](4)
//	sub := b.Subscribe(ctx)
//	for msg := range sub.Receive() {
//		render(msg.Data)
//	}
package broadcast
