// Package notifications decides which backend events become user-visible
// notifications, keeps the bounded notification history and hands alerts to
// a Presenter.
//
// # Components
//
//   - Policy: pure mapping from a connection.Message and the user's Config
//     to a Decision. Texts come from an embedded YAML Catalog.
//   - Store: newest-first history capped at DefaultCapacity, persisted under
//     HistoryKey through a storage.Persister.
//   - Engine: runs the Policy, appends to the Store and presents alerts.
//     Presentation failures never remove a stored notification.
//   - Presenters: NoOpPresenter, LogPresenter, MultiPresenter and
//     ThrottledPresenter.
//
// # Usage
//
//	store := notifications.NewStore(notifications.WithStorePersister(writer))
//	engine := notifications.NewEngine(store,
//		notifications.WithPresenter(notifications.NewLogPresenter(log)),
//	)
//	n, created, err := engine.Process(ctx, msg, notifications.DefaultConfig())
package notifications
