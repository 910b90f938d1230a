// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"github.com/hashicorp/opd/opd/structs"
)

// Admissible reports whether a token of the given priority may enter the
// slot, given its current occupancy. Emergencies are always admissible; a
// full slot handles them through displacement instead of rejection. Everyone
// else needs a free seat, and paid and follow-up tokens additionally need
// headroom under their class sub-cap.
func Admissible(priority structs.Priority, slot *structs.Slot, counts structs.SlotCounts) bool {
	if priority == structs.PriorityEmergency {
		return true
	}

	if counts.Allocated >= slot.Capacity {
		return false
	}

	switch priority {
	case structs.PriorityPaid:
		return slot.PaidCap.Admits(counts.Paid)
	case structs.PriorityFollowUp:
		return slot.FollowUpCap.Admits(counts.FollowUp)
	default:
		return true
	}
}
