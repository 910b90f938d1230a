// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/opd/ci"
)

func TestToken_StatusTransitions(t *testing.T) {
	ci.Parallel(t)
	testCases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{TokenStatusWaiting, TokenStatusAllocated, true},
		{TokenStatusWaiting, TokenStatusCancelled, true},
		{TokenStatusWaiting, TokenStatusExpired, true},
		{TokenStatusWaiting, TokenStatusCompleted, false},
		{TokenStatusWaiting, TokenStatusNoShow, false},
		{TokenStatusAllocated, TokenStatusCompleted, true},
		{TokenStatusAllocated, TokenStatusNoShow, true},
		{TokenStatusAllocated, TokenStatusCancelled, true},
		{TokenStatusAllocated, TokenStatusWaiting, true},
		{TokenStatusAllocated, TokenStatusExpired, false},
		{TokenStatusCompleted, TokenStatusCancelled, false},
		{TokenStatusCancelled, TokenStatusWaiting, false},
		{TokenStatusNoShow, TokenStatusAllocated, false},
		{TokenStatusExpired, TokenStatusAllocated, false},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.allowed, ValidTokenStatusTransition(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestToken_MarkAllocated(t *testing.T) {
	ci.Parallel(t)
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.Local)

	token := &Token{Status: TokenStatusWaiting}
	must.NoError(t, token.MarkAllocated("slot-1", now))
	must.Eq(t, TokenStatusAllocated, token.Status)
	must.Eq(t, "slot-1", token.SlotID)
	must.Eq(t, now, token.AllocatedAt)

	// Terminal states never reach allocated.
	token = &Token{Status: TokenStatusExpired}
	err := token.MarkAllocated("slot-1", now)
	must.Error(t, err)
	must.True(t, IsErrInvalidStatus(err))
}

func TestToken_MarkWaiting_ClearsSeat(t *testing.T) {
	ci.Parallel(t)
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.Local)

	token := &Token{Status: TokenStatusWaiting}
	must.NoError(t, token.MarkAllocated("slot-1", now))
	must.NoError(t, token.MarkWaiting())
	must.Eq(t, TokenStatusWaiting, token.Status)
	must.Eq(t, "", token.SlotID)
	must.True(t, token.AllocatedAt.IsZero())
}

func TestToken_MarkCancelled_TerminalGuards(t *testing.T) {
	ci.Parallel(t)
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.Local)

	token := &Token{Status: TokenStatusWaiting}
	must.NoError(t, token.MarkCancelled(now))
	must.Eq(t, TokenStatusCancelled, token.Status)
	must.Eq(t, now, token.CancelledAt)

	// Repeat cancel reports the dedicated guard error.
	err := token.MarkCancelled(now)
	must.ErrorIs(t, err, ErrAlreadyCancelled)

	completed := &Token{Status: TokenStatusCompleted}
	err = completed.MarkCancelled(now)
	must.ErrorIs(t, err, ErrCannotCancelCompleted)
}

func TestToken_TerminalStatusClearsSlot(t *testing.T) {
	ci.Parallel(t)
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.Local)

	mk := func() *Token {
		token := &Token{Status: TokenStatusWaiting}
		must.NoError(t, token.MarkAllocated("slot-1", now))
		return token
	}

	cancelled := mk()
	must.NoError(t, cancelled.MarkCancelled(now))
	must.Eq(t, "", cancelled.SlotID)

	noShow := mk()
	must.NoError(t, noShow.MarkNoShow())
	must.Eq(t, "", noShow.SlotID)

	completed := mk()
	must.NoError(t, completed.MarkCompleted(now))
	must.Eq(t, "", completed.SlotID)

	for _, token := range []*Token{cancelled, noShow, completed} {
		must.True(t, token.TerminalStatus())
	}
}

func TestToken_MarkExpired(t *testing.T) {
	ci.Parallel(t)
	token := &Token{Status: TokenStatusWaiting}
	must.NoError(t, token.MarkExpired())
	must.Eq(t, TokenStatusExpired, token.Status)

	// Allocated tokens do not expire; they are seen or no-showed.
	allocated := &Token{Status: TokenStatusAllocated, SlotID: "slot-1"}
	must.Error(t, allocated.MarkExpired())
}

func TestParsePriority(t *testing.T) {
	ci.Parallel(t)
	testCases := []struct {
		input    string
		expected Priority
		bad      bool
	}{
		{"emergency", PriorityEmergency, false},
		{"EMERGENCY", PriorityEmergency, false},
		{"paid", PriorityPaid, false},
		{"followup", PriorityFollowUp, false},
		{"follow-up", PriorityFollowUp, false},
		{"online", PriorityOnline, false},
		{"walkin", PriorityWalkin, false},
		{"walk-in", PriorityWalkin, false},
		{"urgent", 0, true},
		{"", 0, true},
	}

	for _, tc := range testCases {
		got, err := ParsePriority(tc.input)
		if tc.bad {
			require.Error(t, err, "input %q", tc.input)
			require.True(t, IsErrInvalidInput(err))
			continue
		}
		require.NoError(t, err, "input %q", tc.input)
		require.Equal(t, tc.expected, got)
	}
}

func TestParseSource(t *testing.T) {
	ci.Parallel(t)
	got, err := ParseSource("WALK-IN")
	must.NoError(t, err)
	must.Eq(t, SourceWalkin, got)

	got, err = ParseSource("online")
	must.NoError(t, err)
	must.Eq(t, SourceOnline, got)

	_, err = ParseSource("phone")
	must.Error(t, err)
	must.True(t, IsErrInvalidInput(err))
}

func TestPriority_Order(t *testing.T) {
	ci.Parallel(t)
	// Lower value means more urgent; the whole engine leans on this.
	must.Less(t, PriorityPaid, PriorityEmergency)
	must.Less(t, PriorityFollowUp, PriorityPaid)
	must.Less(t, PriorityOnline, PriorityFollowUp)
	must.Less(t, PriorityWalkin, PriorityOnline)
}

func TestTokenCreateRequest_Validate(t *testing.T) {
	ci.Parallel(t)
	now := time.Date(2026, 9, 15, 9, 0, 0, 0, time.Local)

	valid := func() *TokenCreateRequest {
		return &TokenCreateRequest{
			IdempotencyKey: "key-1",
			DoctorID:       "doc-1",
			Date:           "15-09-2026",
			PatientName:    "A Patient",
			Source:         SourceWalkin,
			Priority:       PriorityWalkin,
		}
	}

	must.NoError(t, valid().Validate(now))

	r := valid()
	r.Date = "2026-09-15"
	must.Error(t, r.Validate(now))

	r = valid()
	r.Date = "14-09-2026"
	err := r.Validate(now)
	must.Error(t, err)
	must.StrContains(t, err.Error(), "past")

	r = valid()
	r.Priority = Priority(9)
	must.Error(t, r.Validate(now))

	r = valid()
	r.Source = "phone"
	must.Error(t, r.Validate(now))

	r = valid()
	r.Phone = "+919876543210"
	must.NoError(t, r.Validate(now))

	r = valid()
	r.Phone = "not-a-phone"
	must.Error(t, r.Validate(now))

	r = valid()
	r.Phone = "123"
	must.Error(t, r.Validate(now))

	r = valid()
	r.IdempotencyKey = ""
	must.Error(t, r.Validate(now))
}
