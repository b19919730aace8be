// Package repositories implements the local SQLite request store.
//
// [RequestRepository] satisfies requests.Store over the shared application
// database. SQLite has no change notifications of its own, so every write is
// published to a feed.Broker and subscriptions read from that broker.
package repositories
