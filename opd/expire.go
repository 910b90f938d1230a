// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package opd

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/cronexpr"
	hclog "github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/hashicorp/opd/opd/structs"
)

// DefaultExpireSchedule fires end-of-day expiry at 18:00 local time.
const DefaultExpireSchedule = "0 18 * * *"

// EndOfDayExpirer retires the waiting tokens of every active doctor at close
// of business. Queues do not persist across days: whatever was not seen today
// is expired, not carried over.
type EndOfDayExpirer struct {
	engine   *Engine
	logger   hclog.Logger
	spec     string
	schedule *cronexpr.Expression

	l       sync.Mutex
	enabled bool

	// stopCh is used to stop the run goroutine.
	stopCh chan struct{}
}

// NewEndOfDayExpirer creates an expirer on the given cron schedule. It is
// created disabled; call SetEnabled to start it.
func NewEndOfDayExpirer(engine *Engine, schedule string) (*EndOfDayExpirer, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, err
	}
	return &EndOfDayExpirer{
		engine:   engine,
		logger:   engine.logger.Named("expirer"),
		spec:     schedule,
		schedule: expr,
	}, nil
}

// SetEnabled is used to control if the expirer is enabled. It starts or stops
// the background goroutine accordingly and is idempotent.
func (x *EndOfDayExpirer) SetEnabled(enabled bool) {
	x.l.Lock()
	defer x.l.Unlock()

	if enabled == x.enabled {
		return
	}
	x.enabled = enabled

	if enabled {
		x.stopCh = make(chan struct{})
		go x.run(x.stopCh)
		x.logger.Debug("end-of-day expirer enabled", "schedule", x.spec)
	} else {
		close(x.stopCh)
		x.stopCh = nil
	}
}

func (x *EndOfDayExpirer) run(stopCh chan struct{}) {
	for {
		now := x.engine.clock.Now()
		next := x.schedule.Next(now)
		if next.IsZero() {
			x.logger.Error("cron schedule yields no next firing, stopping expirer")
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if err := x.ExpireAll(); err != nil {
				x.logger.Error("end-of-day expiry failed", "error", err)
			}
		}
	}
}

// ExpireAll runs ExpireWaiting for every active doctor for the current date.
// Failures for one doctor do not stop the sweep for the rest.
func (x *EndOfDayExpirer) ExpireAll() error {
	defer metrics.MeasureSince([]string{"opd", "expirer", "sweep"}, time.Now())

	date := x.engine.clock.Now().Format(structs.DateLayout)

	doctors, err := x.engine.store.Doctors()
	if err != nil {
		return err
	}

	var mErr multierror.Error
	var total int
	for _, doctor := range doctors {
		if !doctor.IsActive {
			continue
		}

		var reply structs.TokenExpireResponse
		err := x.engine.Tokens().ExpireWaiting(context.Background(), &structs.TokenExpireRequest{
			DoctorID: doctor.ID,
			Date:     date,
		}, &reply)
		if err != nil {
			mErr.Errors = append(mErr.Errors, err)
			continue
		}
		total += reply.Count
	}

	x.logger.Info("end-of-day expiry complete", "date", date, "expired", total)
	return mErr.ErrorOrNil()
}
