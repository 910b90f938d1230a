// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"errors"
	"strings"
)

const (
	errDoctorNotFound         = "doctor not found"
	errTokenNotFound          = "token not found"
	errSlotNotFound           = "slot not found"
	errInvalidStatus          = "invalid status transition"
	errAlreadyCancelled       = "token already cancelled"
	errCannotCancelCompleted  = "completed token cannot be cancelled"
	errStorageConflict        = "storage conflict"
	errStorageUnavailable     = "storage unavailable"
	errInvalidInput           = "invalid input"
	errIdempotencyKeyConflict = "idempotency key already in use"
)

var (
	// ErrDoctorNotFound is returned when a token targets an unknown or
	// inactive doctor.
	ErrDoctorNotFound = errors.New(errDoctorNotFound)

	// ErrTokenNotFound is returned for operations on a missing token id.
	ErrTokenNotFound = errors.New(errTokenNotFound)

	// ErrSlotNotFound is returned for operations on a missing slot id.
	ErrSlotNotFound = errors.New(errSlotNotFound)

	// ErrInvalidStatus is returned when a token status transition is not
	// allowed by the state machine.
	ErrInvalidStatus = errors.New(errInvalidStatus)

	// ErrAlreadyCancelled guards the cancelled terminal state.
	ErrAlreadyCancelled = errors.New(errAlreadyCancelled)

	// ErrCannotCancelCompleted guards the completed terminal state.
	ErrCannotCancelCompleted = errors.New(errCannotCancelCompleted)

	// ErrStorageConflict is returned by the storage layer on a
	// serialization failure or deadlock. The transaction orchestrator
	// retries these with bounded backoff.
	ErrStorageConflict = errors.New(errStorageConflict)

	// ErrStorageUnavailable is returned on a storage connection or I/O
	// failure. Never retried inside a transaction.
	ErrStorageUnavailable = errors.New(errStorageUnavailable)

	// ErrInvalidInput is returned by the validation layer for malformed
	// dates, unknown enum values and the like.
	ErrInvalidInput = errors.New(errInvalidInput)

	// ErrIdempotencyKeyConflict is returned by the storage layer when an
	// insert collides with an existing idempotency key. Callers gate on the
	// key before inserting, so hitting this indicates a lost race.
	ErrIdempotencyKeyConflict = errors.New(errIdempotencyKeyConflict)
)

func IsErrDoctorNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), errDoctorNotFound)
}

func IsErrTokenNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), errTokenNotFound)
}

func IsErrSlotNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), errSlotNotFound)
}

func IsErrInvalidStatus(err error) bool {
	return err != nil && strings.Contains(err.Error(), errInvalidStatus)
}

func IsErrAlreadyCancelled(err error) bool {
	return err != nil && strings.Contains(err.Error(), errAlreadyCancelled)
}

func IsErrCannotCancelCompleted(err error) bool {
	return err != nil && strings.Contains(err.Error(), errCannotCancelCompleted)
}

func IsErrStorageConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), errStorageConflict)
}

func IsErrStorageUnavailable(err error) bool {
	return err != nil && strings.Contains(err.Error(), errStorageUnavailable)
}

func IsErrInvalidInput(err error) bool {
	return err != nil && strings.Contains(err.Error(), errInvalidInput)
}
