// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package opd implements the allocation engine: the transactional core that
// admits, displaces, backfills and expires outpatient tokens against a
// doctor's slotted schedule. Every externally-visible operation runs inside
// one write transaction; either all of its effects commit (state transitions,
// promotions, audit events) or none do.
package opd

import (
	"context"
	"fmt"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/hashicorp/opd/helper"
	"github.com/hashicorp/opd/helper/libtime"
	"github.com/hashicorp/opd/opd/naming"
	"github.com/hashicorp/opd/opd/state"
	"github.com/hashicorp/opd/opd/structs"
)

const (
	// storageConflictRetries bounds how often an operation is retried after
	// a storage serialization failure before the error surfaces. Three
	// attempts is plenty for realistic OPD loads.
	storageConflictRetries = 3

	retryBackoffBase  = 25 * time.Millisecond
	retryBackoffLimit = 250 * time.Millisecond
)

// Config configures a new Engine.
type Config struct {
	// Logger is the parent logger; sub-loggers are derived per component.
	Logger hclog.Logger

	// Clock supplies "now" for every slot-end and imminence decision.
	// Defaults to the system clock.
	Clock libtime.Clock

	// Namer issues display names for tokens and slots. Defaults to the
	// sequence namer.
	Namer naming.Namer
}

// Engine owns the state store and exposes the operation endpoints.
type Engine struct {
	logger hclog.Logger
	store  *state.StateStore
	clock  libtime.Clock
	namer  naming.Namer

	tokens  *Token
	slots   *Slot
	doctors *Doctor
}

// NewEngine creates an allocation engine with an empty state store.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil || config.Logger == nil {
		return nil, fmt.Errorf("engine config requires a logger")
	}

	logger := config.Logger.Named("opd")

	store, err := state.NewStateStore(&state.StateStoreConfig{Logger: logger})
	if err != nil {
		return nil, err
	}

	clock := config.Clock
	if clock == nil {
		clock = libtime.SystemClock()
	}
	namer := config.Namer
	if namer == nil {
		namer = naming.NewSequenceNamer()
	}

	e := &Engine{
		logger: logger,
		store:  store,
		clock:  clock,
		namer:  namer,
	}
	e.tokens = &Token{engine: e, logger: logger.Named("token")}
	e.slots = &Slot{engine: e, logger: logger.Named("slot")}
	e.doctors = &Doctor{engine: e, logger: logger.Named("doctor")}
	return e, nil
}

// State returns the engine's state store.
func (e *Engine) State() *state.StateStore {
	return e.store
}

// Clock returns the engine's clock.
func (e *Engine) Clock() libtime.Clock {
	return e.clock
}

// Tokens returns the token operations endpoint.
func (e *Engine) Tokens() *Token {
	return e.tokens
}

// Slots returns the slot configuration endpoint.
func (e *Engine) Slots() *Slot {
	return e.slots
}

// Doctors returns the doctor configuration endpoint.
func (e *Engine) Doctors() *Doctor {
	return e.doctors
}

// withWriteTxn wraps one operation in a write transaction with the caller's
// deadline and bounded retry on storage conflicts. The memdb store cannot
// actually conflict (its writers are serialized), but the contract covers
// any ACID store satisfying row-level locking.
//
// The deadline is re-checked after fn and before commit: a timed-out
// operation rolls back whole, emitting nothing.
func (e *Engine) withWriteTxn(ctx context.Context, fn func(txn *state.Txn) error) error {
	for attempt := uint64(0); ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		txn := e.store.WriteTxn()
		err := fn(txn)
		if err == nil {
			if derr := ctx.Err(); derr != nil {
				txn.Abort()
				return derr
			}
			txn.Commit()
			return nil
		}
		txn.Abort()

		if !structs.IsErrStorageConflict(err) || attempt+1 >= storageConflictRetries {
			return err
		}

		backoff := helper.Backoff(retryBackoffBase, retryBackoffLimit, attempt+1)
		backoff += helper.RandomStagger(retryBackoffBase)
		e.logger.Warn("storage conflict, retrying operation",
			"attempt", attempt+1, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
