// Package connection keeps a single long-lived duplex channel to the
// notification backend.
//
// A Manager dials the endpoint for an identity, routes decoded inbound
// messages to subscribers by EventType, sends a heartbeat on a fixed
// interval while connected, and reconnects after unexpected drops until
// Config.MaxReconnectAttempts consecutive failures have been recorded.
// Status changes are published to OnStatus subscribers in order and can be
// persisted through a storage.Persister.
//
// The transport is abstracted by Dialer; WebSocketDialer is the production
// implementation.
//
//	mgr := connection.NewManager(cfg, &connection.WebSocketDialer{},
//		connection.WithLogger(log),
//		connection.WithPersister(writer),
//	)
//	unsub := mgr.Subscribe(connection.EventPriceChange, func(m connection.Message) { ... })
//	defer unsub()
//	mgr.Connect(ctx, "0xabc")
package connection
