/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below matches one of them via errors.Is.
var (
	// ErrInvalidArgument is returned for malformed option combinations.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStore is returned for engine, connectivity and translation failures.
	ErrStore = errors.New("store error")

	// ErrConflict is returned when a commit hits a stale or contended row.
	ErrConflict = errors.New("concurrency conflict")

	// ErrConcurrentUse is returned when a second operation starts on a
	// session while another one is still running.
	ErrConcurrentUse = errors.New("session is already in use by another operation")

	// ErrNoTransaction is returned when committing or rolling back without
	// an open transaction.
	ErrNoTransaction = errors.New("no open transaction")

	// ErrTransactionOpen is returned when opening a second transaction.
	ErrTransactionOpen = errors.New("a transaction is already open")
)

// ArgumentError reports a rejected option value.
type ArgumentError struct {
	Field   string
	Message string
}

func (e *ArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid argument %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// StoreError wraps a failure raised by the storage engine.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: store error", e.Op)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// ConflictError reports that a commit detected a stale-row mismatch or a
// serialization failure. Callers may reload and retry.
type ConflictError struct {
	Op     string
	Entity string
	Err    error
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s: concurrency conflict", e.Op)
	if e.Entity != "" {
		msg += " on " + e.Entity
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() error { return e.Err }

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewArgumentError creates a new ArgumentError.
func NewArgumentError(field, message string) error {
	return &ArgumentError{Field: field, Message: message}
}

// NewStoreError wraps err as a StoreError unless it already carries a
// classification, in which case it is returned unchanged.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsStoreError(err) || IsConflict(err) || IsInvalidArgument(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// NewConflictError creates a new ConflictError.
func NewConflictError(op, entity string, err error) error {
	return &ConflictError{Op: op, Entity: entity, Err: err}
}

// IsInvalidArgument checks if an error is a validation error.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsStoreError checks if an error is an engine error.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}

// IsConflict checks if an error is a concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
