// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package scheduler implements the allocation core: finding a seat for a
// waiting token, displacing a lower-priority occupant for an emergency, and
// backfilling freed seats from the waiting pool.
//
// The scheduler never opens transactions. It runs against the State view the
// engine hands it, which is bound to the single write transaction wrapping
// the whole operation.
package scheduler

import (
	log "github.com/hashicorp/go-hclog"

	"github.com/hashicorp/opd/helper/libtime"
	"github.com/hashicorp/opd/opd/structs"
)

// State is the transaction-bound view of the store the scheduler reads and
// writes through. *state.Txn implements it.
type State interface {
	// ActiveSlotsByDoctorDate returns a doctor-date's active slots ordered
	// by start time.
	ActiveSlotsByDoctorDate(doctorID, date string) ([]*structs.Slot, error)

	// AllocatedTokensBySlot returns the tokens currently holding seats in
	// the slot.
	AllocatedTokensBySlot(slotID string) ([]*structs.Token, error)

	// WaitingTokensByDoctorDate returns a doctor-date's waiting tokens in
	// promotion order (priority ascending, FIFO within a priority).
	WaitingTokensByDoctorDate(doctorID, date string) ([]*structs.Token, error)

	// UpdateToken writes a new version of an existing token.
	UpdateToken(token *structs.Token) error

	// AppendAuditEvent records an audit event inside the transaction.
	AppendAuditEvent(event *structs.AuditEvent) error
}

// Context carries the collaborators one allocation or backfill pass needs.
type Context struct {
	state  State
	clock  libtime.Clock
	logger log.Logger
}

// NewContext creates a scheduling context bound to an open transaction.
func NewContext(state State, clock libtime.Clock, logger log.Logger) *Context {
	return &Context{
		state:  state,
		clock:  clock,
		logger: logger.Named("scheduler"),
	}
}

// State returns the transaction-bound state view.
func (c *Context) State() State {
	return c.state
}

// Clock returns the injected clock.
func (c *Context) Clock() libtime.Clock {
	return c.clock
}

// Logger returns the scheduler's logger.
func (c *Context) Logger() log.Logger {
	return c.logger
}
