// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package state provides the transactional store backing the allocation
// engine. It is built on go-memdb: write transactions are serialized on the
// database's single writer lock, which is strictly stronger than the
// per-(doctor, date) row-lock scope the engine requires. Two concurrent
// admissions can therefore never both observe the same seat as
// last-available.
package state

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"
	memdb "github.com/hashicorp/go-memdb"

	"github.com/hashicorp/opd/opd/structs"
)

// IndexEntry is used with the "index" table for tracking the latest index of
// a table.
type IndexEntry struct {
	Key   string
	Value uint64
}

// StateStoreConfig is used to configure a new state store
type StateStoreConfig struct {
	// Logger is used to output the state store's logs
	Logger hclog.Logger
}

// StateStore is where the engine's whole world lives: doctors, slots, tokens
// and audit events. Every externally-visible engine operation runs against a
// single write transaction obtained from here.
type StateStore struct {
	logger hclog.Logger
	db     *memdb.MemDB
}

// NewStateStore is used to create a new state store
func NewStateStore(config *StateStoreConfig) (*StateStore, error) {
	// Create the MemDB
	db, err := memdb.NewMemDB(stateStoreSchema())
	if err != nil {
		return nil, fmt.Errorf("state store setup failed: %v", err)
	}

	s := &StateStore{
		logger: config.Logger.Named("state_store"),
		db:     db,
	}
	return s, nil
}

// Txn wraps a memdb transaction with the monotonic index assigned to the
// operation it carries. Domain mutators stamp Create/ModifyIndex from it and
// record per-table index entries, mirroring how a replicated log index would
// flow through.
type Txn struct {
	*memdb.Txn

	// Index is the index all writes in this transaction are stamped with.
	// Zero for read transactions.
	Index uint64
}

// WriteTxn begins a write transaction spanning one engine operation. The
// caller must Commit or Abort it; the usual shape is an immediate
// `defer txn.Abort()` with a final Commit.
func (s *StateStore) WriteTxn() *Txn {
	txn := s.db.Txn(true)
	return &Txn{Txn: txn, Index: latestIndexTxn(txn) + 1}
}

// ReadTxn begins a read-only transaction for snapshot queries.
func (s *StateStore) ReadTxn() *Txn {
	return &Txn{Txn: s.db.Txn(false)}
}

// LatestIndex returns the greatest index written to any table.
func (s *StateStore) LatestIndex() uint64 {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return latestIndexTxn(txn)
}

// Index returns the latest index written to the named table.
func (s *StateStore) Index(name string) (uint64, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	out, err := txn.First(tableIndex, indexID, name)
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, nil
	}
	return out.(*IndexEntry).Value, nil
}

func latestIndexTxn(txn *memdb.Txn) uint64 {
	iter, err := txn.Get(tableIndex, indexID)
	if err != nil {
		return 0
	}
	var latest uint64
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		if entry := raw.(*IndexEntry); entry.Value > latest {
			latest = entry.Value
		}
	}
	return latest
}

// bump records the transaction's index against the named table.
func (t *Txn) bump(table string) error {
	if err := t.Insert(tableIndex, &IndexEntry{table, t.Index}); err != nil {
		return fmt.Errorf("index update failed: %v", err)
	}
	return nil
}

// UpsertDoctor is used to register or update a doctor.
func (s *StateStore) UpsertDoctor(doctor *structs.Doctor) error {
	if err := doctor.Validate(); err != nil {
		return err
	}

	txn := s.WriteTxn()
	defer txn.Abort()

	existingRaw, err := txn.First(TableDoctors, indexID, doctor.ID)
	if err != nil {
		return fmt.Errorf("doctor lookup failed: %v", err)
	}

	doctor = doctor.Copy()
	if existingRaw != nil {
		doctor.CreateIndex = existingRaw.(*structs.Doctor).CreateIndex
	} else {
		doctor.CreateIndex = txn.Index
	}
	doctor.ModifyIndex = txn.Index

	if err := txn.Insert(TableDoctors, doctor); err != nil {
		return fmt.Errorf("doctor insert failed: %v", err)
	}
	if err := txn.bump(TableDoctors); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// DoctorByID returns a doctor by id, or nil when absent.
func (s *StateStore) DoctorByID(id string) (*structs.Doctor, error) {
	txn := s.ReadTxn()
	defer txn.Abort()
	return txn.DoctorByID(id)
}

// Doctors returns every registered doctor.
func (s *StateStore) Doctors() ([]*structs.Doctor, error) {
	txn := s.ReadTxn()
	defer txn.Abort()

	iter, err := txn.Get(TableDoctors, indexID)
	if err != nil {
		return nil, fmt.Errorf("doctor lookup failed: %v", err)
	}

	var out []*structs.Doctor
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.Doctor))
	}
	return out, nil
}

// UpsertSlot is used to register or update a slot definition. Updates that
// would tighten capacity or a sub-cap below the count of tokens currently
// allocated are rejected rather than retroactively displacing anyone.
func (s *StateStore) UpsertSlot(slot *structs.Slot) error {
	if err := slot.Validate(); err != nil {
		return err
	}

	txn := s.WriteTxn()
	defer txn.Abort()

	doctor, err := txn.DoctorByID(slot.DoctorID)
	if err != nil {
		return err
	}
	if doctor == nil {
		return structs.ErrDoctorNotFound
	}

	existing, err := txn.SlotByID(slot.ID)
	if err != nil {
		return err
	}

	if existing != nil {
		occupants, err := txn.AllocatedTokensBySlot(slot.ID)
		if err != nil {
			return err
		}
		counts := structs.TallySlotCounts(occupants)
		if slot.Capacity < counts.Allocated {
			return fmt.Errorf("%w: capacity %d below %d allocated tokens",
				structs.ErrInvalidInput, slot.Capacity, counts.Allocated)
		}
		if slot.PaidCap.Limited && slot.PaidCap.Limit < counts.Paid {
			return fmt.Errorf("%w: paid cap %s below %d allocated paid tokens",
				structs.ErrInvalidInput, slot.PaidCap, counts.Paid)
		}
		if slot.FollowUpCap.Limited && slot.FollowUpCap.Limit < counts.FollowUp {
			return fmt.Errorf("%w: follow-up cap %s below %d allocated follow-up tokens",
				structs.ErrInvalidInput, slot.FollowUpCap, counts.FollowUp)
		}
	}

	slot = slot.Copy()
	if existing != nil {
		slot.CreateIndex = existing.CreateIndex
	} else {
		slot.CreateIndex = txn.Index
	}
	slot.ModifyIndex = txn.Index

	if err := txn.Insert(TableSlots, slot); err != nil {
		return fmt.Errorf("slot insert failed: %v", err)
	}
	if err := txn.bump(TableSlots); err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// SlotByID returns a slot by id, or nil when absent.
func (s *StateStore) SlotByID(id string) (*structs.Slot, error) {
	txn := s.ReadTxn()
	defer txn.Abort()
	return txn.SlotByID(id)
}

// TokenByID returns a token by id, or nil when absent.
func (s *StateStore) TokenByID(id string) (*structs.Token, error) {
	txn := s.ReadTxn()
	defer txn.Abort()
	return txn.TokenByID(id)
}

// TokenByIdempotencyKey returns the token created under the given key, or
// nil when absent.
func (s *StateStore) TokenByIdempotencyKey(key string) (*structs.Token, error) {
	txn := s.ReadTxn()
	defer txn.Abort()
	return txn.TokenByIdempotencyKey(key)
}

// AuditEventsByDoctor returns the audit trail of one doctor in commit order.
func (s *StateStore) AuditEventsByDoctor(doctorID string) ([]*structs.AuditEvent, error) {
	txn := s.ReadTxn()
	defer txn.Abort()

	iter, err := txn.Get(TableAuditEvents, indexDoctor, doctorID)
	if err != nil {
		return nil, fmt.Errorf("audit event lookup failed: %v", err)
	}

	var out []*structs.AuditEvent
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		out = append(out, raw.(*structs.AuditEvent))
	}
	sortAuditEvents(out)
	return out, nil
}
