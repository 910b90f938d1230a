// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"fmt"
	"time"

	"github.com/hashicorp/opd/opd/structs"
)

// AllocResult reports one allocation attempt. Token always carries the final
// state of the input token; Slot is nil when it stayed waiting. Displaced
// lists any occupant evicted to make room, in its own final state (it may
// have been re-placed into a later slot or left waiting).
type AllocResult struct {
	Token     *structs.Token
	Slot      *structs.Slot
	Displaced []*structs.Token
}

// Allocated reports whether the token landed in a slot.
func (r *AllocResult) Allocated() bool {
	return r.Slot != nil
}

// Allocate finds a seat for a waiting token. Candidate slots are the
// doctor-date's active slots that have not ended, scanned in start order.
// A slot with a free seat under the capacity predicate takes the token; a
// full slot takes an emergency by evicting its least urgent occupant, which
// is then re-placed by the same procedure. If nothing admits the token it
// stays waiting, eligible for later backfill.
//
// An evicted occupant is never an emergency, so its re-placement can never
// displace anyone: displacement depth is exactly one.
func Allocate(ctx *Context, token *structs.Token) (*AllocResult, error) {
	return allocate(ctx, token, true)
}

func allocate(ctx *Context, token *structs.Token, allowDisplace bool) (*AllocResult, error) {
	if token.Status != structs.TokenStatusWaiting {
		return nil, fmt.Errorf("%w: cannot allocate %s token %s",
			structs.ErrInvalidStatus, token.Status, token.ID)
	}

	now := ctx.Clock().Now()

	slots, err := ctx.State().ActiveSlotsByDoctorDate(token.DoctorID, token.Date)
	if err != nil {
		return nil, err
	}

	for _, slot := range slots {
		if slot.HasEnded(now) {
			continue
		}

		occupants, err := ctx.State().AllocatedTokensBySlot(slot.ID)
		if err != nil {
			return nil, err
		}
		counts := structs.TallySlotCounts(occupants)

		if !Admissible(token.Priority, slot, counts) {
			continue
		}

		if counts.Allocated < slot.Capacity {
			placed, err := place(ctx, token, slot, now)
			if err != nil {
				return nil, err
			}
			return &AllocResult{Token: placed, Slot: slot}, nil
		}

		// The slot is full, so only an emergency reaches this point.
		if !allowDisplace {
			continue
		}
		victim := SelectVictim(occupants)
		if victim == nil {
			// Full of emergencies; nothing may be evicted here.
			continue
		}
		return displace(ctx, token, slot, victim, now)
	}

	return &AllocResult{Token: token}, nil
}

// place binds the token to a seat in the slot.
func place(ctx *Context, token *structs.Token, slot *structs.Slot, now time.Time) (*structs.Token, error) {
	placed := token.Copy()
	if err := placed.MarkAllocated(slot.ID, now); err != nil {
		return nil, err
	}
	if err := ctx.State().UpdateToken(placed); err != nil {
		return nil, err
	}

	ctx.Logger().Debug("allocated token",
		"token_id", placed.ID, "slot_id", slot.ID, "window", slot.Window(),
		"priority", placed.Priority.String())
	return placed, nil
}

// displace evicts the victim back to waiting, seats the emergency in its
// place, and re-runs allocation for the victim with displacement disabled.
func displace(ctx *Context, token *structs.Token, slot *structs.Slot, victim *structs.Token, now time.Time) (*AllocResult, error) {
	evicted := victim.Copy()
	if err := evicted.MarkWaiting(); err != nil {
		return nil, err
	}
	if err := ctx.State().UpdateToken(evicted); err != nil {
		return nil, err
	}

	placed, err := place(ctx, token, slot, now)
	if err != nil {
		return nil, err
	}

	if err := ctx.State().AppendAuditEvent(&structs.AuditEvent{
		Operation: structs.AuditEmergencyDisplacement,
		TokenID:   placed.ID,
		SlotID:    slot.ID,
		DoctorID:  placed.DoctorID,
		Details: map[string]string{
			"displaced_token_id": evicted.ID,
			"displaced_priority": evicted.Priority.String(),
			"window":             slot.Window(),
		},
		CreateTime: now,
	}); err != nil {
		return nil, err
	}

	ctx.Logger().Info("emergency displaced occupant",
		"token_id", placed.ID, "victim_id", evicted.ID, "slot_id", slot.ID)

	// Try to land the evictee somewhere else. Staying waiting is an
	// acceptable outcome.
	res, err := allocate(ctx, evicted, false)
	if err != nil {
		return nil, err
	}

	return &AllocResult{
		Token:     placed,
		Slot:      slot,
		Displaced: []*structs.Token{res.Token},
	}, nil
}
