// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package mock provides fixture constructors for tests.
package mock

import (
	"fmt"
	"time"

	"github.com/hashicorp/opd/helper/uuid"
	"github.com/hashicorp/opd/opd/structs"
)

// Doctor returns an active doctor.
func Doctor() *structs.Doctor {
	return &structs.Doctor{
		ID:         uuid.Generate(),
		Name:       fmt.Sprintf("dr-%s", uuid.Short()),
		Speciality: "general-medicine",
		IsActive:   true,
	}
}

// Slot returns an active slot for the doctor with no sub-caps.
func Slot(doctorID, date, start, end string, capacity int) *structs.Slot {
	return &structs.Slot{
		ID:        uuid.Generate(),
		DoctorID:  doctorID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Capacity:  capacity,
		IsActive:  true,
	}
}

// Token returns a waiting token for the doctor-date.
func Token(doctorID, date string, priority structs.Priority, createTime time.Time) *structs.Token {
	source := structs.SourceWalkin
	if priority == structs.PriorityOnline {
		source = structs.SourceOnline
	}
	return &structs.Token{
		ID:             uuid.Generate(),
		IdempotencyKey: uuid.Generate(),
		DoctorID:       doctorID,
		Date:           date,
		PatientName:    fmt.Sprintf("patient-%s", uuid.Short()),
		Source:         source,
		Priority:       priority,
		Status:         structs.TokenStatusWaiting,
		CreateTime:     createTime,
	}
}
