// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"testing"

	"github.com/shoenig/test/must"

	"github.com/hashicorp/opd/ci"
	"github.com/hashicorp/opd/opd/mock"
	"github.com/hashicorp/opd/opd/state"
	"github.com/hashicorp/opd/opd/structs"
)

func TestAllocate_PlacesInEarliestOpenSlot(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	morning := mock.Slot(doctor.ID, testDate, "09:00", "10:00", 1)
	afternoon := mock.Slot(doctor.ID, testDate, "14:00", "15:00", 1)
	must.NoError(t, store.UpsertSlot(morning))
	must.NoError(t, store.UpsertSlot(afternoon))

	txn, ctx := openContext(t, store, testTime(8, 0))

	token := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(8, 0))
	must.NoError(t, txn.InsertToken(token))

	res, err := Allocate(ctx, token)
	must.NoError(t, err)
	must.True(t, res.Allocated())
	must.Eq(t, morning.ID, res.Slot.ID)
	must.Eq(t, structs.TokenStatusAllocated, res.Token.Status)
	must.Len(t, 0, res.Displaced)

	// A second token overflows into the afternoon slot.
	second := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(8, 1))
	must.NoError(t, txn.InsertToken(second))

	res, err = Allocate(ctx, second)
	must.NoError(t, err)
	must.True(t, res.Allocated())
	must.Eq(t, afternoon.ID, res.Slot.ID)
}

func TestAllocate_SkipsEndedSlots(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	ended := mock.Slot(doctor.ID, testDate, "09:00", "10:00", 5)
	open := mock.Slot(doctor.ID, testDate, "11:00", "12:00", 5)
	must.NoError(t, store.UpsertSlot(ended))
	must.NoError(t, store.UpsertSlot(open))

	txn, ctx := openContext(t, store, testTime(10, 30))

	token := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(10, 30))
	must.NoError(t, txn.InsertToken(token))

	res, err := Allocate(ctx, token)
	must.NoError(t, err)
	must.True(t, res.Allocated())
	must.Eq(t, open.ID, res.Slot.ID)
}

func TestAllocate_NoCapacityStaysWaiting(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "09:00", "10:00", 1)
	must.NoError(t, store.UpsertSlot(slot))

	txn, ctx := openContext(t, store, testTime(8, 0))

	first := mock.Token(doctor.ID, testDate, structs.PriorityOnline, testTime(7, 0))
	must.NoError(t, txn.InsertToken(first))
	_, err := Allocate(ctx, first)
	must.NoError(t, err)

	// A non-emergency finds the only slot full and stays waiting.
	second := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(8, 0))
	must.NoError(t, txn.InsertToken(second))

	res, err := Allocate(ctx, second)
	must.NoError(t, err)
	must.False(t, res.Allocated())
	must.Eq(t, structs.TokenStatusWaiting, res.Token.Status)
	must.Nil(t, res.Slot)
}

// A full paid sub-cap holds a fourth paid token in the waiting queue even
// though half the slot's seats are still free, while other classes keep
// getting seated.
func TestAllocate_PaidCapHoldsDespiteFreeSeats(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "09:00", "10:00", 6)
	slot.PaidCap = structs.CapOf(3)
	must.NoError(t, store.UpsertSlot(slot))

	txn, ctx := openContext(t, store, testTime(8, 0))

	for i := 0; i < 3; i++ {
		paid := mock.Token(doctor.ID, testDate, structs.PriorityPaid, testTime(7, i))
		must.NoError(t, txn.InsertToken(paid))
		res, err := Allocate(ctx, paid)
		must.NoError(t, err)
		must.True(t, res.Allocated())
		must.Eq(t, slot.ID, res.Slot.ID)
	}

	fourth := mock.Token(doctor.ID, testDate, structs.PriorityPaid, testTime(7, 30))
	must.NoError(t, txn.InsertToken(fourth))

	res, err := Allocate(ctx, fourth)
	must.NoError(t, err)
	must.False(t, res.Allocated())
	must.Eq(t, structs.TokenStatusWaiting, res.Token.Status)
	must.Nil(t, res.Slot)

	occupants, err := txn.AllocatedTokensBySlot(slot.ID)
	must.NoError(t, err)
	must.Len(t, 3, occupants)

	// The sub-cap binds the paid class only.
	walkin := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(7, 45))
	must.NoError(t, txn.InsertToken(walkin))

	res, err = Allocate(ctx, walkin)
	must.NoError(t, err)
	must.True(t, res.Allocated())
	must.Eq(t, slot.ID, res.Slot.ID)
}

func TestAllocate_RequiresWaitingStatus(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)
	_, ctx := openContext(t, store, testTime(8, 0))

	token := mock.Token("doc-1", testDate, structs.PriorityWalkin, testTime(8, 0))
	must.NoError(t, token.MarkCancelled(testTime(8, 5)))

	_, err := Allocate(ctx, token)
	must.Error(t, err)
	must.True(t, structs.IsErrInvalidStatus(err))
}

// An emergency displaces the least urgent occupant of a full slot; with no
// other slot open the evictee stays waiting.
func TestAllocate_EmergencyDisplacement(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "09:00", "10:00", 2)
	must.NoError(t, store.UpsertSlot(slot))

	txn, ctx := openContext(t, store, testTime(8, 0))

	walkin := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(7, 0))
	online := mock.Token(doctor.ID, testDate, structs.PriorityOnline, testTime(7, 10))
	must.NoError(t, txn.InsertToken(walkin))
	must.NoError(t, txn.InsertToken(online))
	for _, tok := range []*structs.Token{walkin, online} {
		res, err := Allocate(ctx, tok)
		must.NoError(t, err)
		must.True(t, res.Allocated())
	}

	emergency := mock.Token(doctor.ID, testDate, structs.PriorityEmergency, testTime(8, 0))
	must.NoError(t, txn.InsertToken(emergency))

	res, err := Allocate(ctx, emergency)
	must.NoError(t, err)
	must.True(t, res.Allocated())
	must.Eq(t, slot.ID, res.Slot.ID)

	// The walk-in, not the online booking, lost its seat and went back to
	// waiting.
	must.Len(t, 1, res.Displaced)
	must.Eq(t, walkin.ID, res.Displaced[0].ID)
	must.Eq(t, structs.TokenStatusWaiting, res.Displaced[0].Status)
	must.Eq(t, "", res.Displaced[0].SlotID)

	evicted, err := txn.TokenByID(walkin.ID)
	must.NoError(t, err)
	must.Eq(t, structs.TokenStatusWaiting, evicted.Status)

	kept, err := txn.TokenByID(online.ID)
	must.NoError(t, err)
	must.Eq(t, structs.TokenStatusAllocated, kept.Status)
	must.Eq(t, slot.ID, kept.SlotID)

	occupants, err := txn.AllocatedTokensBySlot(slot.ID)
	must.NoError(t, err)
	must.Len(t, 2, occupants)

	txn.Commit()
	events, err := store.AuditEventsByDoctor(doctor.ID)
	must.NoError(t, err)
	must.Len(t, 1, events)
	must.Eq(t, structs.AuditEmergencyDisplacement, events[0].Operation)
	must.Eq(t, emergency.ID, events[0].TokenID)
	must.Eq(t, walkin.ID, events[0].Details["displaced_token_id"])
}

// A displaced occupant is re-placed into a later slot when one has room.
func TestAllocate_DisplacementRePlacesEvictee(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	first := mock.Slot(doctor.ID, testDate, "09:00", "10:00", 2)
	second := mock.Slot(doctor.ID, testDate, "10:00", "11:00", 3)
	must.NoError(t, store.UpsertSlot(first))
	must.NoError(t, store.UpsertSlot(second))

	txn, ctx := openContext(t, store, testTime(8, 0))

	// Fill the first slot and leave one seat open in the second.
	walkin := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(7, 0))
	online := mock.Token(doctor.ID, testDate, structs.PriorityOnline, testTime(7, 5))
	must.NoError(t, txn.InsertToken(walkin))
	must.NoError(t, txn.InsertToken(online))
	must.NoError(t, seatToken(txn, walkin, first.ID))
	must.NoError(t, seatToken(txn, online, first.ID))
	for i := 0; i < 2; i++ {
		filler := mock.Token(doctor.ID, testDate, structs.PriorityOnline, testTime(7, 10+i))
		must.NoError(t, txn.InsertToken(filler))
		must.NoError(t, seatToken(txn, filler, second.ID))
	}

	emergency := mock.Token(doctor.ID, testDate, structs.PriorityEmergency, testTime(8, 0))
	must.NoError(t, txn.InsertToken(emergency))

	res, err := Allocate(ctx, emergency)
	must.NoError(t, err)
	must.True(t, res.Allocated())
	must.Eq(t, first.ID, res.Slot.ID)

	// The evicted walk-in landed in the later slot instead of waiting.
	must.Len(t, 1, res.Displaced)
	must.Eq(t, walkin.ID, res.Displaced[0].ID)
	must.Eq(t, structs.TokenStatusAllocated, res.Displaced[0].Status)
	must.Eq(t, second.ID, res.Displaced[0].SlotID)
}

// A slot full of emergencies is never displaced from; the incoming emergency
// moves on and stays waiting when nothing else is open.
func TestAllocate_EmergencyNeverDisplaced(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "09:00", "10:00", 1)
	must.NoError(t, store.UpsertSlot(slot))

	txn, ctx := openContext(t, store, testTime(8, 0))

	seated := mock.Token(doctor.ID, testDate, structs.PriorityEmergency, testTime(7, 0))
	must.NoError(t, txn.InsertToken(seated))
	must.NoError(t, seatToken(txn, seated, slot.ID))

	incoming := mock.Token(doctor.ID, testDate, structs.PriorityEmergency, testTime(8, 0))
	must.NoError(t, txn.InsertToken(incoming))

	res, err := Allocate(ctx, incoming)
	must.NoError(t, err)
	must.False(t, res.Allocated())
	must.Eq(t, structs.TokenStatusWaiting, res.Token.Status)

	still, err := txn.TokenByID(seated.ID)
	must.NoError(t, err)
	must.Eq(t, structs.TokenStatusAllocated, still.Status)
}

// seatToken seats an already-inserted waiting token directly, bypassing the
// allocator, to build occupancy fixtures.
func seatToken(txn *state.Txn, token *structs.Token, slotID string) error {
	seated := token.Copy()
	if err := seated.MarkAllocated(slotID, testTime(8, 0)); err != nil {
		return err
	}
	*token = *seated
	return txn.UpdateToken(seated)
}
