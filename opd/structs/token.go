// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-set/v3"
)

const (
	TokenStatusWaiting   = "waiting"
	TokenStatusAllocated = "allocated"
	TokenStatusCompleted = "completed"
	TokenStatusCancelled = "cancelled"
	TokenStatusNoShow    = "no-show"
	TokenStatusExpired   = "expired"
)

const (
	SourceWalkin = "walkin"
	SourceOnline = "online"
)

// Priority is the clinical/commercial urgency class of a token. Lower value
// means higher priority. Priority is independent of Source: a walk-in patient
// may carry a paid priority.
type Priority uint8

const (
	PriorityEmergency Priority = 1
	PriorityPaid      Priority = 2
	PriorityFollowUp  Priority = 3
	PriorityOnline    Priority = 4
	PriorityWalkin    Priority = 5
)

func (p Priority) String() string {
	switch p {
	case PriorityEmergency:
		return "emergency"
	case PriorityPaid:
		return "paid"
	case PriorityFollowUp:
		return "followup"
	case PriorityOnline:
		return "online"
	case PriorityWalkin:
		return "walkin"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// Valid reports whether p is one of the five known priority classes.
func (p Priority) Valid() bool {
	return p >= PriorityEmergency && p <= PriorityWalkin
}

// ParsePriority parses a case-insensitive priority name.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "emergency":
		return PriorityEmergency, nil
	case "paid":
		return PriorityPaid, nil
	case "followup", "follow-up", "follow_up":
		return PriorityFollowUp, nil
	case "online":
		return PriorityOnline, nil
	case "walkin", "walk-in", "walk_in":
		return PriorityWalkin, nil
	default:
		return 0, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
	}
}

// ParseSource parses a case-insensitive origin channel name.
func ParseSource(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "walkin", "walk-in", "walk_in":
		return SourceWalkin, nil
	case "online":
		return SourceOnline, nil
	default:
		return "", fmt.Errorf("%w: unknown source %q", ErrInvalidInput, s)
	}
}

// terminalStatuses is the set of statuses from which no transition is
// allowed.
var terminalStatuses = set.From([]string{
	TokenStatusCompleted,
	TokenStatusCancelled,
	TokenStatusNoShow,
	TokenStatusExpired,
})

// validStatusTransitions encodes the token state machine. Absent entries are
// terminal. ALLOCATED -> WAITING exists only for emergency displacement.
var validStatusTransitions = map[string][]string{
	TokenStatusWaiting: {
		TokenStatusAllocated,
		TokenStatusCancelled,
		TokenStatusExpired,
	},
	TokenStatusAllocated: {
		TokenStatusCompleted,
		TokenStatusNoShow,
		TokenStatusCancelled,
		TokenStatusWaiting,
	},
}

// ValidTokenStatusTransition reports whether the state machine allows moving
// from one status to another.
func ValidTokenStatusTransition(from, to string) bool {
	for _, next := range validStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Token is a patient's claim to be seen by a doctor on a date. It is distinct
// from an assigned appointment: a token may wait unassigned all day and
// expire at close of business.
type Token struct {
	// ID is the opaque engine identifier.
	ID string

	// DisplayName is the human-readable identifier issued by the naming
	// collaborator. Opaque to the engine.
	DisplayName string

	// IdempotencyKey is the client-supplied key identifying the logical
	// create request. Unique across all tokens; replays are safe.
	IdempotencyKey string

	DoctorID string

	// Date is the schedule day in DateLayout form.
	Date string

	PatientName string
	Phone       string
	Age         int
	Notes       string

	// Source is the origin channel, never an ordering key.
	Source string

	Priority Priority

	Status string

	// SlotID is set iff Status is allocated.
	SlotID string

	CreateTime  time.Time
	AllocatedAt time.Time
	CompletedAt time.Time
	CancelledAt time.Time

	// Raft-style bookkeeping maintained by the state store.
	CreateIndex uint64
	ModifyIndex uint64
}

// Copy returns a deep copy of the token.
func (t *Token) Copy() *Token {
	if t == nil {
		return nil
	}
	nt := new(Token)
	*nt = *t
	return nt
}

// TerminalStatus reports whether the token is in a terminal state.
func (t *Token) TerminalStatus() bool {
	return terminalStatuses.Contains(t.Status)
}

// Allocated reports whether the token currently holds a slot seat.
func (t *Token) Allocated() bool {
	return t.Status == TokenStatusAllocated
}

func (t *Token) transitionErr(to string) error {
	return fmt.Errorf("%w: %s is not reachable from %s", ErrInvalidStatus, to, t.Status)
}

// MarkAllocated binds the token to a slot seat.
func (t *Token) MarkAllocated(slotID string, now time.Time) error {
	if !ValidTokenStatusTransition(t.Status, TokenStatusAllocated) {
		return t.transitionErr(TokenStatusAllocated)
	}
	t.Status = TokenStatusAllocated
	t.SlotID = slotID
	t.AllocatedAt = now
	return nil
}

// MarkWaiting returns a displaced token to the waiting pool, releasing its
// seat.
func (t *Token) MarkWaiting() error {
	if !ValidTokenStatusTransition(t.Status, TokenStatusWaiting) {
		return t.transitionErr(TokenStatusWaiting)
	}
	t.Status = TokenStatusWaiting
	t.SlotID = ""
	t.AllocatedAt = time.Time{}
	return nil
}

// MarkCancelled transitions the token to the cancelled terminal state. The
// terminal guards report dedicated errors so callers can answer repeated
// cancels idempotently at their layer.
func (t *Token) MarkCancelled(now time.Time) error {
	switch t.Status {
	case TokenStatusCancelled:
		return ErrAlreadyCancelled
	case TokenStatusCompleted:
		return ErrCannotCancelCompleted
	}
	if !ValidTokenStatusTransition(t.Status, TokenStatusCancelled) {
		return t.transitionErr(TokenStatusCancelled)
	}
	t.Status = TokenStatusCancelled
	t.SlotID = ""
	t.CancelledAt = now
	return nil
}

// MarkNoShow records that the patient did not show up for an allocated seat.
func (t *Token) MarkNoShow() error {
	if !ValidTokenStatusTransition(t.Status, TokenStatusNoShow) {
		return t.transitionErr(TokenStatusNoShow)
	}
	t.Status = TokenStatusNoShow
	t.SlotID = ""
	return nil
}

// MarkCompleted records a finished consultation.
func (t *Token) MarkCompleted(now time.Time) error {
	if !ValidTokenStatusTransition(t.Status, TokenStatusCompleted) {
		return t.transitionErr(TokenStatusCompleted)
	}
	t.Status = TokenStatusCompleted
	t.SlotID = ""
	t.CompletedAt = now
	return nil
}

// MarkExpired retires a token that waited past close of business.
func (t *Token) MarkExpired() error {
	if !ValidTokenStatusTransition(t.Status, TokenStatusExpired) {
		return t.transitionErr(TokenStatusExpired)
	}
	t.Status = TokenStatusExpired
	t.SlotID = ""
	return nil
}
