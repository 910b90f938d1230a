// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import "time"

// Audit operations, one per externally-visible engine operation plus the
// displacement event emitted from inside allocation.
const (
	AuditCreateToken           = "CREATE_TOKEN"
	AuditEmergencyDisplacement = "EMERGENCY_DISPLACEMENT"
	AuditCancelToken           = "CANCEL_TOKEN"
	AuditNoShow                = "NO_SHOW"
	AuditCompleteToken         = "COMPLETE_TOKEN"
	AuditExpireTokens          = "EXPIRE_TOKENS"
)

// AuditEvent is an append-only record of an engine operation. Events are
// written inside the operation's transaction, so an aborted operation leaves
// no orphaned events.
type AuditEvent struct {
	ID        string
	Operation string

	// TokenID and SlotID are set when the operation concerns them.
	TokenID string
	SlotID  string

	DoctorID string

	// Details carries operation-specific key-value context.
	Details map[string]string

	CreateTime  time.Time
	CreateIndex uint64
}

// Copy returns a deep copy of the audit event.
func (e *AuditEvent) Copy() *AuditEvent {
	if e == nil {
		return nil
	}
	ne := new(AuditEvent)
	*ne = *e
	if e.Details != nil {
		ne.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			ne.Details[k] = v
		}
	}
	return ne
}
