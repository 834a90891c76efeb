// Package types holds the small value types shared by every layer: query
// filters, page requests and results, tracking modes, futures for the
// asynchronous call forms, and JSON column helpers.
package types
