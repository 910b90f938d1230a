// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package opd

import (
	"time"

	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/hashicorp/opd/opd/naming"
	"github.com/hashicorp/opd/opd/structs"
)

// Slot is the endpoint for slot configuration and availability snapshots.
// Slot definitions come from the schedule collaborator; the engine enforces
// that reconfiguration never contradicts live allocations.
type Slot struct {
	engine *Engine
	logger hclog.Logger
}

// Upsert registers or updates a slot definition. Tightening capacity or a
// sub-cap below the currently allocated counts is rejected.
func (s *Slot) Upsert(args *structs.SlotUpsertRequest, reply *structs.SlotUpsertResponse) error {
	defer metrics.MeasureSince([]string{"opd", "slot", "upsert"}, time.Now())

	slot := args.Slot.Copy()
	if slot == nil {
		return structs.ErrInvalidInput
	}

	if slot.DisplayName == "" {
		// The probe is status-blind so deactivating a slot can never shrink
		// the sequence and reissue a live slot's name.
		name, err := s.engine.namer.DisplayName(
			naming.KindSlot, slot.DoctorID, slot.Date,
			func() (int, error) {
				txn := s.engine.store.ReadTxn()
				defer txn.Abort()
				return txn.SlotCountByDoctorDate(slot.DoctorID, slot.Date)
			})
		if err != nil {
			return err
		}
		slot.DisplayName = name
	}

	if err := s.engine.store.UpsertSlot(slot); err != nil {
		return err
	}

	stored, err := s.engine.store.SlotByID(slot.ID)
	if err != nil {
		return err
	}
	s.logger.Debug("slot upserted", "slot_id", stored.ID,
		"display_name", stored.DisplayName, "window", stored.Window())
	reply.Slot = stored
	return nil
}

// Availability is a read-only snapshot of a doctor-date's slots with their
// live seat tallies.
func (s *Slot) Availability(args *structs.SlotAvailabilityRequest, reply *structs.SlotAvailabilityResponse) error {
	defer metrics.MeasureSince([]string{"opd", "slot", "availability"}, time.Now())

	now := s.engine.clock.Now()

	txn := s.engine.store.ReadTxn()
	defer txn.Abort()

	slots, err := txn.ActiveSlotsByDoctorDate(args.DoctorID, args.Date)
	if err != nil {
		return err
	}

	for _, slot := range slots {
		occupants, err := txn.AllocatedTokensBySlot(slot.ID)
		if err != nil {
			return err
		}
		counts := structs.TallySlotCounts(occupants)
		reply.Slots = append(reply.Slots, &structs.SlotAvailability{
			Slot:      slot,
			Counts:    counts,
			SeatsFree: slot.Capacity - counts.Allocated,
			Ended:     slot.HasEnded(now),
			Imminent:  slot.Imminent(now),
		})
	}
	return nil
}
