// Package repository provides the generic query engine, the mutation
// gateway and the unit of work that commits staged changes and drives the
// explicit transaction state machine.
package repository
