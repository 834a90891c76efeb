// Package database is the Bun implementation of the storage capability:
// sessions with change tracking and explicit transactions, immutable
// queryables, retry strategies and schema ensure/delete over registered
// models. It also manages connections, configuration, logging, query hooks,
// metrics and driver error classification.
package database
