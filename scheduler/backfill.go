// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	multierror "github.com/hashicorp/go-multierror"

	"github.com/hashicorp/opd/opd/structs"
)

// BackfillResult reports the waiting tokens promoted after a seat freed.
type BackfillResult struct {
	Promoted []*structs.Token
}

// Backfill promotes waiting tokens after a seat frees in the given slot. It
// is a no-op when the slot has already ended.
//
// When the slot is imminent (starting within the hour, or in progress),
// walk-in tokens are preferred: patients already physically present can
// actually take a seat that is about to be called. If no walk-in is waiting,
// the pass falls back to the full waiting pool so the seat never idles.
//
// Each candidate goes through the general allocator, so a promoted token may
// land in any active future slot, not necessarily the freed one. That is
// intentional: the goal is total utilization, not per-slot fairness.
func Backfill(ctx *Context, freed *structs.Slot) (*BackfillResult, error) {
	now := ctx.Clock().Now()
	result := new(BackfillResult)

	if freed.HasEnded(now) {
		return result, nil
	}

	waiting, err := ctx.State().WaitingTokensByDoctorDate(freed.DoctorID, freed.Date)
	if err != nil {
		return nil, err
	}

	candidates := waiting
	if freed.Imminent(now) {
		var walkins []*structs.Token
		for _, t := range waiting {
			if t.Source == structs.SourceWalkin {
				walkins = append(walkins, t)
			}
		}
		if len(walkins) > 0 {
			candidates = walkins
		}
	}

	var mErr multierror.Error
	for _, token := range candidates {
		res, err := Allocate(ctx, token)
		if err != nil {
			mErr.Errors = append(mErr.Errors, err)
			continue
		}
		if res.Allocated() {
			result.Promoted = append(result.Promoted, res.Token)
		}
	}

	if len(result.Promoted) > 0 {
		ctx.Logger().Debug("backfilled freed slot",
			"slot_id", freed.ID, "window", freed.Window(),
			"promoted", len(result.Promoted))
	}
	return result, mErr.ErrorOrNil()
}
