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

// With the freed slot imminent, a waiting walk-in wins the seat over a
// higher-priority online booking that has waited longer.
func TestBackfill_ImminentPrefersWalkin(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "10:00", "11:00", 2)
	must.NoError(t, store.UpsertSlot(slot))

	txn, ctx := openContext(t, store, testTime(9, 30))

	// One seat occupied, one just freed.
	paid := mock.Token(doctor.ID, testDate, structs.PriorityPaid, testTime(8, 0))
	must.NoError(t, txn.InsertToken(paid))
	must.NoError(t, seatToken(txn, paid, slot.ID))

	online := mock.Token(doctor.ID, testDate, structs.PriorityOnline, testTime(8, 30))
	walkin := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(9, 0))
	must.NoError(t, txn.InsertToken(online))
	must.NoError(t, txn.InsertToken(walkin))

	res, err := Backfill(ctx, slot)
	must.NoError(t, err)
	must.Len(t, 1, res.Promoted)
	must.Eq(t, walkin.ID, res.Promoted[0].ID)
	must.Eq(t, slot.ID, res.Promoted[0].SlotID)

	// The online booking is still waiting.
	out, err := txn.TokenByID(online.ID)
	must.NoError(t, err)
	must.Eq(t, structs.TokenStatusWaiting, out.Status)
}

// With no walk-in waiting, an imminent slot falls back to the general pool.
func TestBackfill_ImminentFallback(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "10:00", "11:00", 1)
	must.NoError(t, store.UpsertSlot(slot))

	txn, ctx := openContext(t, store, testTime(9, 30))

	online := mock.Token(doctor.ID, testDate, structs.PriorityOnline, testTime(8, 30))
	must.NoError(t, txn.InsertToken(online))

	res, err := Backfill(ctx, slot)
	must.NoError(t, err)
	must.Len(t, 1, res.Promoted)
	must.Eq(t, online.ID, res.Promoted[0].ID)
}

// A slot that is not imminent backfills in plain priority order.
func TestBackfill_NotImminentPriorityOrder(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "14:00", "15:00", 1)
	must.NoError(t, store.UpsertSlot(slot))

	txn, ctx := openContext(t, store, testTime(9, 0))

	walkin := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(8, 0))
	online := mock.Token(doctor.ID, testDate, structs.PriorityOnline, testTime(8, 30))
	must.NoError(t, txn.InsertToken(walkin))
	must.NoError(t, txn.InsertToken(online))

	res, err := Backfill(ctx, slot)
	must.NoError(t, err)
	must.Len(t, 1, res.Promoted)
	must.Eq(t, online.ID, res.Promoted[0].ID)
}

func TestBackfill_EndedSlotIsNoop(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "09:00", "10:00", 2)
	must.NoError(t, store.UpsertSlot(slot))

	txn, ctx := openContext(t, store, testTime(10, 30))

	waiting := mock.Token(doctor.ID, testDate, structs.PriorityWalkin, testTime(8, 0))
	must.NoError(t, txn.InsertToken(waiting))

	res, err := Backfill(ctx, slot)
	must.NoError(t, err)
	must.Len(t, 0, res.Promoted)

	out, err := txn.TokenByID(waiting.ID)
	must.NoError(t, err)
	must.Eq(t, structs.TokenStatusWaiting, out.Status)
}

func TestBackfill_NoWaiting(t *testing.T) {
	ci.Parallel(t)
	store := state.TestStateStore(t)

	doctor := mock.Doctor()
	must.NoError(t, store.UpsertDoctor(doctor))
	slot := mock.Slot(doctor.ID, testDate, "10:00", "11:00", 2)
	must.NoError(t, store.UpsertSlot(slot))

	_, ctx := openContext(t, store, testTime(9, 30))

	res, err := Backfill(ctx, slot)
	must.NoError(t, err)
	must.Len(t, 0, res.Promoted)
}
