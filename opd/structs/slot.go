// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import (
	"fmt"
	"time"
)

// SubCap bounds how many tokens of one priority class a slot may hold. The
// zero value imposes no bound; an explicit variant is used rather than a
// sentinel integer.
type SubCap struct {
	// Limited indicates the cap is enforced.
	Limited bool

	// Limit is the bound, meaningful only when Limited is true.
	Limit int
}

// Unlimited returns a SubCap that imposes no bound.
func Unlimited() SubCap {
	return SubCap{}
}

// CapOf returns a SubCap bounded at n.
func CapOf(n int) SubCap {
	return SubCap{Limited: true, Limit: n}
}

// Admits reports whether one more token fits under the cap given the current
// class count.
func (c SubCap) Admits(count int) bool {
	return !c.Limited || count < c.Limit
}

func (c SubCap) String() string {
	if !c.Limited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", c.Limit)
}

// Slot is a fixed time window on a date for one doctor with a capped number
// of seats.
type Slot struct {
	ID string

	// DisplayName is issued by the naming collaborator; opaque here.
	DisplayName string

	DoctorID string

	// Date is the schedule day in DateLayout form.
	Date string

	// StartTime and EndTime bound the window [start, end) in ClockLayout
	// form.
	StartTime string
	EndTime   string

	// Capacity is the hard upper bound on concurrently allocated tokens.
	Capacity int

	// PaidCap and FollowUpCap bound the paid and follow-up classes. An
	// emergency displacement may bypass a sub-cap, never Capacity.
	PaidCap     SubCap
	FollowUpCap SubCap

	// IsActive soft-deletes the slot; inactive slots are invisible to
	// allocation.
	IsActive bool

	CreateIndex uint64
	ModifyIndex uint64
}

// Copy returns a deep copy of the slot.
func (s *Slot) Copy() *Slot {
	if s == nil {
		return nil
	}
	ns := new(Slot)
	*ns = *s
	return ns
}

// Validate checks the slot definition is internally consistent. It does not
// consult current allocations; the state store layers that check on top.
func (s *Slot) Validate() error {
	if s.DoctorID == "" {
		return fmt.Errorf("%w: slot requires a doctor id", ErrInvalidInput)
	}
	if _, err := ParseDate(s.Date); err != nil {
		return err
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return err
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("%w: slot window %s-%s is empty", ErrInvalidInput, s.StartTime, s.EndTime)
	}
	if s.Capacity < 1 {
		return fmt.Errorf("%w: slot capacity must be at least 1", ErrInvalidInput)
	}
	if s.PaidCap.Limited && (s.PaidCap.Limit < 0 || s.PaidCap.Limit > s.Capacity) {
		return fmt.Errorf("%w: paid cap %s exceeds capacity %d", ErrInvalidInput, s.PaidCap, s.Capacity)
	}
	if s.FollowUpCap.Limited && (s.FollowUpCap.Limit < 0 || s.FollowUpCap.Limit > s.Capacity) {
		return fmt.Errorf("%w: follow-up cap %s exceeds capacity %d", ErrInvalidInput, s.FollowUpCap, s.Capacity)
	}
	return nil
}

// StartsAt resolves the slot start as an instant in the local zone. Validate
// guarantees the fields parse.
func (s *Slot) StartsAt() time.Time {
	day, _ := ParseDate(s.Date)
	min, _ := ParseClock(s.StartTime)
	return day.Add(time.Duration(min) * time.Minute)
}

// EndsAt resolves the slot end as an instant in the local zone.
func (s *Slot) EndsAt() time.Time {
	day, _ := ParseDate(s.Date)
	min, _ := ParseClock(s.EndTime)
	return day.Add(time.Duration(min) * time.Minute)
}

// HasEnded reports whether the window is over at now. The window is
// half-open, so a slot ends exactly at its end time.
func (s *Slot) HasEnded(now time.Time) bool {
	return !now.Before(s.EndsAt())
}

// InProgress reports whether now falls inside the window.
func (s *Slot) InProgress(now time.Time) bool {
	return !now.Before(s.StartsAt()) && now.Before(s.EndsAt())
}

// Imminent reports whether the slot starts within the hour, counting slots
// already in progress but not yet ended. Backfill prefers walk-in patients
// for imminent slots since they are physically present.
func (s *Slot) Imminent(now time.Time) bool {
	if s.HasEnded(now) {
		return false
	}
	return s.StartsAt().Sub(now) <= time.Hour
}

// Window renders the slot boundaries for messages and audit details.
func (s *Slot) Window() string {
	return fmt.Sprintf("%s-%s", s.StartTime, s.EndTime)
}

// SlotCounts is a snapshot of a slot's live allocation tallies, computed from
// the currently allocated tokens under the operation's transaction.
type SlotCounts struct {
	// Allocated counts every allocated token in the slot.
	Allocated int

	// Paid counts allocated tokens of paid priority.
	Paid int

	// FollowUp counts allocated tokens of follow-up priority.
	FollowUp int
}

// TallySlotCounts computes allocation tallies from a slot's occupants.
func TallySlotCounts(occupants []*Token) SlotCounts {
	var counts SlotCounts
	for _, t := range occupants {
		if !t.Allocated() {
			continue
		}
		counts.Allocated++
		switch t.Priority {
		case PriorityPaid:
			counts.Paid++
		case PriorityFollowUp:
			counts.FollowUp++
		}
	}
	return counts
}
