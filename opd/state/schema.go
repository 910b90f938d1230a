// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package state

import (
	"fmt"
	"sync"

	memdb "github.com/hashicorp/go-memdb"
)

const (
	tableIndex = "index"

	TableDoctors     = "doctors"
	TableSlots       = "slots"
	TableTokens      = "tokens"
	TableAuditEvents = "audit_events"
)

const (
	indexID             = "id"
	indexDoctor         = "doctor"
	indexDoctorDate     = "doctor_date"
	indexIdempotencyKey = "idempotency_key"
	indexSlot           = "slot"
)

var (
	schemaFactories SchemaFactories
	factoriesLock   sync.Mutex
)

// SchemaFactory is the factory method for returning a TableSchema
type SchemaFactory func() *memdb.TableSchema
type SchemaFactories []SchemaFactory

// RegisterSchemaFactories is used to register a table schema.
func RegisterSchemaFactories(factories ...SchemaFactory) {
	factoriesLock.Lock()
	defer factoriesLock.Unlock()
	schemaFactories = append(schemaFactories, factories...)
}

func GetFactories() SchemaFactories {
	return schemaFactories
}

func init() {
	// Register all schemas
	RegisterSchemaFactories([]SchemaFactory{
		indexTableSchema,
		doctorTableSchema,
		slotTableSchema,
		tokenTableSchema,
		auditEventTableSchema,
	}...)
}

// stateStoreSchema is used to return the combined schema for the state store.
func stateStoreSchema() *memdb.DBSchema {
	// Create the root DB schema
	db := &memdb.DBSchema{
		Tables: make(map[string]*memdb.TableSchema),
	}

	// Add each of the tables
	for _, schemaFn := range GetFactories() {
		schema := schemaFn()
		if _, ok := db.Tables[schema.Name]; ok {
			panic(fmt.Sprintf("duplicate table name: %s", schema.Name))
		}
		db.Tables[schema.Name] = schema
	}
	return db
}

// indexTableSchema is used for tracking the most recent index used for each
// table.
func indexTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: tableIndex,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field:     "Key",
					Lowercase: true,
				},
			},
		},
	}
}

// doctorTableSchema returns the MemDB schema for the doctors table. The
// allocation engine only ever reads identity and the active flag; lifecycle
// writes come from the slot-config collaborator.
func doctorTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableDoctors,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "ID",
				},
			},
		},
	}
}

// slotTableSchema returns the MemDB schema for the slots table. Slots are
// looked up either directly by id or as the full schedule of a doctor-date.
func slotTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableSlots,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.UUIDFieldIndex{
					Field: "ID",
				},
			},
			indexDoctorDate: {
				Name:         indexDoctorDate,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.CompoundIndex{
					Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{
							Field: "DoctorID",
						},
						&memdb.StringFieldIndex{
							Field: "Date",
						},
					},
				},
			},
		},
	}
}

// tokenTableSchema returns the MemDB schema for the tokens table. The unique
// idempotency_key index is what makes create replays race-free: the insert
// path checks it inside the write transaction.
func tokenTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableTokens,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.UUIDFieldIndex{
					Field: "ID",
				},
			},
			indexIdempotencyKey: {
				Name:         indexIdempotencyKey,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.StringFieldIndex{
					Field: "IdempotencyKey",
				},
			},
			indexDoctorDate: {
				Name:         indexDoctorDate,
				AllowMissing: false,
				Unique:       false,
				Indexer: &memdb.CompoundIndex{
					Indexes: []memdb.Indexer{
						&memdb.StringFieldIndex{
							Field: "DoctorID",
						},
						&memdb.StringFieldIndex{
							Field: "Date",
						},
					},
				},
			},
			// SlotID is empty for every non-allocated token, hence
			// AllowMissing.
			indexSlot: {
				Name:         indexSlot,
				AllowMissing: true,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "SlotID",
				},
			},
		},
	}
}

// auditEventTableSchema returns the MemDB schema for the append-only audit
// event table.
func auditEventTableSchema() *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: TableAuditEvents,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:         indexID,
				AllowMissing: false,
				Unique:       true,
				Indexer: &memdb.UUIDFieldIndex{
					Field: "ID",
				},
			},
			indexDoctor: {
				Name:         indexDoctor,
				AllowMissing: true,
				Unique:       false,
				Indexer: &memdb.StringFieldIndex{
					Field: "DoctorID",
				},
			},
		},
	}
}
