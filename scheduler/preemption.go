// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package scheduler

import (
	"github.com/hashicorp/opd/opd/structs"
)

// SelectVictim picks the occupant an emergency evicts from a full slot: the
// least urgent occupant, breaking ties toward the oldest token. Emergencies
// are never victims; if the slot holds only emergencies the result is nil and
// the caller moves on to the next slot.
func SelectVictim(occupants []*structs.Token) *structs.Token {
	var victim *structs.Token
	for _, occ := range occupants {
		if occ.Priority == structs.PriorityEmergency {
			continue
		}
		if victim == nil {
			victim = occ
			continue
		}
		if occ.Priority > victim.Priority {
			victim = occ
			continue
		}
		if occ.Priority == victim.Priority && occ.CreateTime.Before(victim.CreateTime) {
			victim = occ
		}
	}
	return victim
}
