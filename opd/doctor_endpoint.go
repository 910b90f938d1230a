// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package opd

import (
	"time"

	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"

	"github.com/hashicorp/opd/opd/structs"
)

// Doctor is the endpoint for doctor registration. The engine itself only
// reads identity and the active flag.
type Doctor struct {
	engine *Engine
	logger hclog.Logger
}

// Upsert registers or updates a doctor.
func (d *Doctor) Upsert(args *structs.DoctorUpsertRequest, reply *structs.DoctorUpsertResponse) error {
	defer metrics.MeasureSince([]string{"opd", "doctor", "upsert"}, time.Now())

	if args.Doctor == nil {
		return structs.ErrInvalidInput
	}
	if err := d.engine.store.UpsertDoctor(args.Doctor); err != nil {
		return err
	}

	stored, err := d.engine.store.DoctorByID(args.Doctor.ID)
	if err != nil {
		return err
	}
	d.logger.Debug("doctor upserted", "doctor_id", stored.ID, "active", stored.IsActive)
	reply.Doctor = stored
	return nil
}

// List returns every registered doctor.
func (d *Doctor) List(reply *[]*structs.Doctor) error {
	defer metrics.MeasureSince([]string{"opd", "doctor", "list"}, time.Now())

	doctors, err := d.engine.store.Doctors()
	if err != nil {
		return err
	}
	*reply = doctors
	return nil
}
