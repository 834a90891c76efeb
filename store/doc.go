// Package store declares the storage capabilities the repository and unit
// of work depend on: queryable entity collections, staging, and a session
// that commits, manages transactions and exposes its change tracker.
// The database package provides the Bun-backed implementation.
package store
