// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package structs

import "fmt"

// Doctor is the owner of a slotted schedule. Its lifecycle is managed by an
// external collaborator; the allocation engine only reads identity and the
// active flag.
type Doctor struct {
	ID         string
	Name       string
	Speciality string

	// IsActive gates token creation. Tokens against an inactive doctor are
	// rejected with ErrDoctorNotFound.
	IsActive bool

	CreateIndex uint64
	ModifyIndex uint64
}

// Copy returns a deep copy of the doctor.
func (d *Doctor) Copy() *Doctor {
	if d == nil {
		return nil
	}
	nd := new(Doctor)
	*nd = *d
	return nd
}

// Validate checks the doctor definition.
func (d *Doctor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: doctor requires an id", ErrInvalidInput)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: doctor requires a name", ErrInvalidInput)
	}
	return nil
}
