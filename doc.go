// Package keel wires the generic repository and unit of work to Bun
// sessions. A Scope holds one session and its unit of work; For returns
// the repository of an entity type within a scope.
package keel
