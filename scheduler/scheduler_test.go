// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"testing"
	"time"

	"github.com/hashicorp/opd/helper/libtime"
	"github.com/hashicorp/opd/helper/testlog"
	"github.com/hashicorp/opd/opd/state"
)

const testDate = "15-09-2026"

func testTime(hour, min int) time.Time {
	return time.Date(2026, 9, 15, hour, min, 0, 0, time.Local)
}

// openContext opens a write transaction against the store and binds a
// scheduling context to it. Seed doctors and slots before calling this; the
// store takes its own write transaction for those.
func openContext(t *testing.T, store *state.StateStore, now time.Time) (*state.Txn, *Context) {
	t.Helper()
	txn := store.WriteTxn()
	t.Cleanup(txn.Abort)
	ctx := NewContext(txn, libtime.NewFixedClock(now), testlog.HCLogger(t))
	return txn, ctx
}
