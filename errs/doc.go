// Package errs defines the error taxonomy of the data-access layer.
//
// Three kinds exist: invalid arguments (raised before any engine call),
// store errors (engine, connectivity and translation failures) and
// concurrency conflicts (stale rows or serialization failures on commit).
// An absent row is never an error; queries return an empty or nil result.
package errs
