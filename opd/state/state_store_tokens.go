// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"sort"

	"github.com/hashicorp/opd/helper/uuid"
	"github.com/hashicorp/opd/opd/structs"
)

// The methods in this file run against an open transaction and together form
// the state view the scheduler operates on. The engine threads one *Txn
// through an entire operation, so allocation decisions and the writes they
// produce are atomic.

// DoctorByID returns a doctor by id under this transaction, or nil.
func (t *Txn) DoctorByID(id string) (*structs.Doctor, error) {
	existing, err := t.First(TableDoctors, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("doctor lookup failed: %v", err)
	}
	if existing != nil {
		return existing.(*structs.Doctor), nil
	}
	return nil, nil
}

// SlotByID returns a slot by id under this transaction, or nil.
func (t *Txn) SlotByID(id string) (*structs.Slot, error) {
	existing, err := t.First(TableSlots, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("slot lookup failed: %v", err)
	}
	if existing != nil {
		return existing.(*structs.Slot), nil
	}
	return nil, nil
}

// ActiveSlotsByDoctorDate returns the active slots of a doctor-date ordered
// by start time. Soft-deleted slots are invisible to allocation.
func (t *Txn) ActiveSlotsByDoctorDate(doctorID, date string) ([]*structs.Slot, error) {
	iter, err := t.Get(TableSlots, indexDoctorDate, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("slot lookup failed: %v", err)
	}

	var out []*structs.Slot
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		slot := raw.(*structs.Slot)
		if !slot.IsActive {
			continue
		}
		out = append(out, slot)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartsAt().Before(out[j].StartsAt())
	})
	return out, nil
}

// SlotCountByDoctorDate counts every slot of a doctor-date regardless of the
// active flag. The naming collaborator probes this for sequence numbers;
// counting active slots only would reissue the name of a soft-deleted slot's
// successor.
func (t *Txn) SlotCountByDoctorDate(doctorID, date string) (int, error) {
	iter, err := t.Get(TableSlots, indexDoctorDate, doctorID, date)
	if err != nil {
		return 0, fmt.Errorf("slot lookup failed: %v", err)
	}

	var count int
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		count++
	}
	return count, nil
}

// AllocatedTokensBySlot returns the tokens currently holding seats in a slot.
func (t *Txn) AllocatedTokensBySlot(slotID string) ([]*structs.Token, error) {
	iter, err := t.Get(TableTokens, indexSlot, slotID)
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %v", err)
	}

	var out []*structs.Token
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		token := raw.(*structs.Token)
		if !token.Allocated() {
			continue
		}
		out = append(out, token)
	}
	return out, nil
}

// WaitingTokensByDoctorDate returns the waiting tokens of a doctor-date in
// promotion order: priority ascending, then FIFO by create time.
func (t *Txn) WaitingTokensByDoctorDate(doctorID, date string) ([]*structs.Token, error) {
	iter, err := t.Get(TableTokens, indexDoctorDate, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %v", err)
	}

	var out []*structs.Token
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		token := raw.(*structs.Token)
		if token.Status != structs.TokenStatusWaiting {
			continue
		}
		out = append(out, token)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if !out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].CreateTime.Before(out[j].CreateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// TokenByID returns a token by id under this transaction, or nil.
func (t *Txn) TokenByID(id string) (*structs.Token, error) {
	existing, err := t.First(TableTokens, indexID, id)
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %v", err)
	}
	if existing != nil {
		return existing.(*structs.Token), nil
	}
	return nil, nil
}

// TokenByIdempotencyKey returns the token created under the given key, or
// nil. This is the idempotency gate: create consults it before inserting.
func (t *Txn) TokenByIdempotencyKey(key string) (*structs.Token, error) {
	existing, err := t.First(TableTokens, indexIdempotencyKey, key)
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %v", err)
	}
	if existing != nil {
		return existing.(*structs.Token), nil
	}
	return nil, nil
}

// TokenCountByDoctorDate counts every token of a doctor-date regardless of
// status. The naming collaborator probes this for sequence numbers.
func (t *Txn) TokenCountByDoctorDate(doctorID, date string) (int, error) {
	iter, err := t.Get(TableTokens, indexDoctorDate, doctorID, date)
	if err != nil {
		return 0, fmt.Errorf("token lookup failed: %v", err)
	}

	var count int
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		count++
	}
	return count, nil
}

// InsertToken writes a brand new token. The unique idempotency key constraint
// is enforced here inside the write transaction, so two racing creates with
// the same key cannot both insert.
func (t *Txn) InsertToken(token *structs.Token) error {
	existing, err := t.TokenByIdempotencyKey(token.IdempotencyKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return structs.ErrIdempotencyKeyConflict
	}

	token.CreateIndex = t.Index
	token.ModifyIndex = t.Index
	if err := t.Insert(TableTokens, token); err != nil {
		return fmt.Errorf("token insert failed: %v", err)
	}
	return t.bump(TableTokens)
}

// UpdateToken writes a new version of an existing token. Callers must pass a
// copy, never an object read from the store.
func (t *Txn) UpdateToken(token *structs.Token) error {
	existing, err := t.TokenByID(token.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return structs.ErrTokenNotFound
	}

	token.CreateIndex = existing.CreateIndex
	token.ModifyIndex = t.Index
	if err := t.Insert(TableTokens, token); err != nil {
		return fmt.Errorf("token update failed: %v", err)
	}
	return t.bump(TableTokens)
}

// AppendAuditEvent records one audit event under this transaction. Aborted
// transactions take their events down with them.
func (t *Txn) AppendAuditEvent(event *structs.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.Generate()
	}
	event.CreateIndex = t.Index

	if err := t.Insert(TableAuditEvents, event); err != nil {
		return fmt.Errorf("audit event insert failed: %v", err)
	}
	return t.bump(TableAuditEvents)
}

func sortAuditEvents(events []*structs.AuditEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreateIndex != events[j].CreateIndex {
			return events[i].CreateIndex < events[j].CreateIndex
		}
		return events[i].CreateTime.Before(events[j].CreateTime)
	})
}
