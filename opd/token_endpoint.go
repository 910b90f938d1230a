// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package opd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/hashicorp/opd/helper/uuid"
	"github.com/hashicorp/opd/opd/naming"
	"github.com/hashicorp/opd/opd/state"
	"github.com/hashicorp/opd/opd/structs"
	"github.com/hashicorp/opd/scheduler"
)

const (
	// slotEndedReason is recorded in audit details when a cancellation or
	// no-show frees a seat in a slot that already ended, so no backfill ran.
	slotEndedReason = "slot already ended"
)

// Token is the endpoint for token lifecycle operations.
type Token struct {
	engine *Engine
	logger hclog.Logger
}

func (t *Token) schedulerContext(txn *state.Txn) *scheduler.Context {
	return scheduler.NewContext(txn, t.engine.clock, t.logger)
}

// Create admits a new token. Replays of the same idempotency key return the
// prior token unchanged, with no mutation and no second audit event.
func (t *Token) Create(ctx context.Context, args *structs.TokenCreateRequest, reply *structs.TokenCreateResponse) error {
	defer metrics.MeasureSince([]string{"opd", "token", "create"}, time.Now())

	now := t.engine.clock.Now()

	return t.engine.withWriteTxn(ctx, func(txn *state.Txn) error {
		// Idempotency gate, ahead of validation: a replay must return the
		// prior token even when the requested date has since passed. The
		// unique index on the key backstops this check inside the same
		// transaction.
		existing, err := txn.TokenByIdempotencyKey(args.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			reply.Token = existing
			if existing.Allocated() {
				slot, err := txn.SlotByID(existing.SlotID)
				if err != nil {
					return err
				}
				reply.Slot = slot
			}
			reply.Message = "duplicate request: returning existing token"
			return nil
		}

		if err := args.Validate(now); err != nil {
			return err
		}

		doctor, err := txn.DoctorByID(args.DoctorID)
		if err != nil {
			return err
		}
		if doctor == nil || !doctor.IsActive {
			return structs.ErrDoctorNotFound
		}

		displayName, err := t.engine.namer.DisplayName(
			naming.KindToken, args.DoctorID, args.Date,
			func() (int, error) {
				return txn.TokenCountByDoctorDate(args.DoctorID, args.Date)
			})
		if err != nil {
			return err
		}

		token := &structs.Token{
			ID:             uuid.Generate(),
			DisplayName:    displayName,
			IdempotencyKey: args.IdempotencyKey,
			DoctorID:       args.DoctorID,
			Date:           args.Date,
			PatientName:    args.PatientName,
			Phone:          args.Phone,
			Age:            args.Age,
			Notes:          args.Notes,
			Source:         args.Source,
			Priority:       args.Priority,
			Status:         structs.TokenStatusWaiting,
			CreateTime:     now,
		}
		if err := txn.InsertToken(token); err != nil {
			return err
		}

		res, err := scheduler.Allocate(t.schedulerContext(txn), token)
		if err != nil {
			return err
		}

		reply.Token = res.Token
		reply.Slot = res.Slot
		reply.Displaced = res.Displaced
		if res.Allocated() {
			reply.Message = fmt.Sprintf("token allocated to slot %s", res.Slot.Window())
		} else {
			reply.Message = "no seats available; token is waiting"
		}

		event := &structs.AuditEvent{
			Operation: structs.AuditCreateToken,
			TokenID:   token.ID,
			DoctorID:  token.DoctorID,
			Details: map[string]string{
				"display_name": token.DisplayName,
				"priority":     token.Priority.String(),
				"source":       token.Source,
				"allocated":    strconv.FormatBool(res.Allocated()),
			},
			CreateTime: now,
		}
		if res.Allocated() {
			event.SlotID = res.Slot.ID
		}
		return txn.AppendAuditEvent(event)
	})
}

// Cancel transitions a token to cancelled and backfills its seat when it held
// one in a slot still running.
func (t *Token) Cancel(ctx context.Context, args *structs.TokenCancelRequest, reply *structs.TokenCancelResponse) error {
	defer metrics.MeasureSince([]string{"opd", "token", "cancel"}, time.Now())

	return t.engine.withWriteTxn(ctx, func(txn *state.Txn) error {
		now := t.engine.clock.Now()

		token, err := txn.TokenByID(args.TokenID)
		if err != nil {
			return err
		}
		if token == nil {
			return structs.ErrTokenNotFound
		}

		cancelled := token.Copy()
		wasSlotID := cancelled.SlotID
		if err := cancelled.MarkCancelled(now); err != nil {
			return err
		}
		if err := txn.UpdateToken(cancelled); err != nil {
			return err
		}

		details := map[string]string{}
		reply.Token = cancelled
		reply.Message = "token cancelled"

		if wasSlotID != "" {
			slot, err := txn.SlotByID(wasSlotID)
			if err != nil {
				return err
			}
			if slot == nil {
				return structs.ErrSlotNotFound
			}
			if slot.HasEnded(now) {
				details["reason"] = slotEndedReason
			} else {
				res, err := scheduler.Backfill(t.schedulerContext(txn), slot)
				if err != nil {
					return err
				}
				reply.Promoted = res.Promoted
				details["promoted"] = strconv.Itoa(len(res.Promoted))
			}
		}

		return txn.AppendAuditEvent(&structs.AuditEvent{
			Operation:  structs.AuditCancelToken,
			TokenID:    cancelled.ID,
			SlotID:     wasSlotID,
			DoctorID:   cancelled.DoctorID,
			Details:    details,
			CreateTime: now,
		})
	})
}

// MarkNoShow records that an allocated patient did not appear, freeing the
// seat for backfill when the slot is still running.
func (t *Token) MarkNoShow(ctx context.Context, args *structs.TokenNoShowRequest, reply *structs.TokenNoShowResponse) error {
	defer metrics.MeasureSince([]string{"opd", "token", "no_show"}, time.Now())

	return t.engine.withWriteTxn(ctx, func(txn *state.Txn) error {
		now := t.engine.clock.Now()

		token, err := txn.TokenByID(args.TokenID)
		if err != nil {
			return err
		}
		if token == nil {
			return structs.ErrTokenNotFound
		}

		noShow := token.Copy()
		wasSlotID := noShow.SlotID
		if err := noShow.MarkNoShow(); err != nil {
			return err
		}
		if err := txn.UpdateToken(noShow); err != nil {
			return err
		}

		details := map[string]string{}
		reply.Token = noShow
		reply.Message = "token marked no-show"

		// MarkNoShow requires the allocated status, so a slot id is always
		// present here.
		slot, err := txn.SlotByID(wasSlotID)
		if err != nil {
			return err
		}
		if slot == nil {
			return structs.ErrSlotNotFound
		}
		if slot.HasEnded(now) {
			details["reason"] = slotEndedReason
		} else {
			res, err := scheduler.Backfill(t.schedulerContext(txn), slot)
			if err != nil {
				return err
			}
			reply.Promoted = res.Promoted
			details["promoted"] = strconv.Itoa(len(res.Promoted))
		}

		return txn.AppendAuditEvent(&structs.AuditEvent{
			Operation:  structs.AuditNoShow,
			TokenID:    noShow.ID,
			SlotID:     wasSlotID,
			DoctorID:   noShow.DoctorID,
			Details:    details,
			CreateTime: now,
		})
	})
}

// Complete records a finished consultation. The seat is not backfilled; the
// consultation consumed it.
func (t *Token) Complete(ctx context.Context, args *structs.TokenCompleteRequest, reply *structs.TokenCompleteResponse) error {
	defer metrics.MeasureSince([]string{"opd", "token", "complete"}, time.Now())

	return t.engine.withWriteTxn(ctx, func(txn *state.Txn) error {
		now := t.engine.clock.Now()

		token, err := txn.TokenByID(args.TokenID)
		if err != nil {
			return err
		}
		if token == nil {
			return structs.ErrTokenNotFound
		}

		completed := token.Copy()
		wasSlotID := completed.SlotID
		if err := completed.MarkCompleted(now); err != nil {
			return err
		}
		if err := txn.UpdateToken(completed); err != nil {
			return err
		}
		reply.Token = completed

		return txn.AppendAuditEvent(&structs.AuditEvent{
			Operation:  structs.AuditCompleteToken,
			TokenID:    completed.ID,
			SlotID:     wasSlotID,
			DoctorID:   completed.DoctorID,
			CreateTime: now,
		})
	})
}

// ExpireWaiting bulk-transitions every waiting token of a doctor-date to
// expired in one transaction. Allocated and terminal tokens are untouched,
// and no allocation is attempted.
func (t *Token) ExpireWaiting(ctx context.Context, args *structs.TokenExpireRequest, reply *structs.TokenExpireResponse) error {
	defer metrics.MeasureSince([]string{"opd", "token", "expire_waiting"}, time.Now())

	if err := args.Validate(); err != nil {
		return err
	}

	return t.engine.withWriteTxn(ctx, func(txn *state.Txn) error {
		now := t.engine.clock.Now()

		waiting, err := txn.WaitingTokensByDoctorDate(args.DoctorID, args.Date)
		if err != nil {
			return err
		}

		for _, token := range waiting {
			expired := token.Copy()
			if err := expired.MarkExpired(); err != nil {
				return err
			}
			if err := txn.UpdateToken(expired); err != nil {
				return err
			}
		}
		reply.Count = len(waiting)

		metrics.IncrCounter([]string{"opd", "token", "expired"}, float32(len(waiting)))

		return txn.AppendAuditEvent(&structs.AuditEvent{
			Operation: structs.AuditExpireTokens,
			DoctorID:  args.DoctorID,
			Details: map[string]string{
				"date":  args.Date,
				"count": strconv.Itoa(len(waiting)),
			},
			CreateTime: now,
		})
	})
}

// WaitingList is a read-only snapshot of a doctor-date's waiting queue in
// promotion order.
func (t *Token) WaitingList(args *structs.WaitingListRequest, reply *structs.WaitingListResponse) error {
	defer metrics.MeasureSince([]string{"opd", "token", "waiting_list"}, time.Now())

	txn := t.engine.store.ReadTxn()
	defer txn.Abort()

	tokens, err := txn.WaitingTokensByDoctorDate(args.DoctorID, args.Date)
	if err != nil {
		return err
	}
	reply.Tokens = tokens
	return nil
}
