// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package structs holds the domain types shared by the state store, the
// scheduler and the engine endpoints, together with the args/reply structs
// for every engine operation.
package structs

import (
	"fmt"
	"time"
	"unicode"
)

// TokenCreateRequest is the input to Token.Create.
type TokenCreateRequest struct {
	// IdempotencyKey identifies the logical create request. A replay with
	// the same key returns the prior token unchanged, regardless of the rest
	// of the payload.
	IdempotencyKey string

	DoctorID string

	// Date is the schedule day, DD-MM-YYYY.
	Date string

	PatientName string
	Phone       string
	Age         int
	Notes       string

	Source   string
	Priority Priority
}

// Validate rejects malformed input before the engine opens a transaction.
func (r *TokenCreateRequest) Validate(now time.Time) error {
	if r.IdempotencyKey == "" {
		return fmt.Errorf("%w: missing idempotency key", ErrInvalidInput)
	}
	if r.DoctorID == "" {
		return fmt.Errorf("%w: missing doctor id", ErrInvalidInput)
	}
	if r.PatientName == "" {
		return fmt.Errorf("%w: missing patient name", ErrInvalidInput)
	}
	if _, err := ParseDate(r.Date); err != nil {
		return err
	}
	if PastDate(r.Date, now) {
		return fmt.Errorf("%w: date %s is in the past", ErrInvalidInput, r.Date)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %d", ErrInvalidInput, r.Priority)
	}
	if r.Source != SourceWalkin && r.Source != SourceOnline {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidInput, r.Source)
	}
	if r.Age < 0 || r.Age > 150 {
		return fmt.Errorf("%w: implausible age %d", ErrInvalidInput, r.Age)
	}
	if err := validPhone(r.Phone); err != nil {
		return err
	}
	return nil
}

// validPhone accepts an empty phone or 7-15 digits with an optional leading
// plus.
func validPhone(phone string) error {
	if phone == "" {
		return nil
	}
	digits := 0
	for i, r := range phone {
		if r == '+' && i == 0 {
			continue
		}
		if !unicode.IsDigit(r) {
			return fmt.Errorf("%w: bad phone %q", ErrInvalidInput, phone)
		}
		digits++
	}
	if digits < 7 || digits > 15 {
		return fmt.Errorf("%w: bad phone %q", ErrInvalidInput, phone)
	}
	return nil
}

// TokenCreateResponse reports the outcome of a create, including any token
// displaced to make room for an emergency.
type TokenCreateResponse struct {
	Token     *Token
	Slot      *Slot
	Displaced []*Token
	Message   string
}

// TokenCancelRequest is the input to Token.Cancel.
type TokenCancelRequest struct {
	TokenID string
}

// TokenCancelResponse reports the cancelled token and any waiting tokens
// promoted into the freed seat.
type TokenCancelResponse struct {
	Token    *Token
	Promoted []*Token
	Message  string
}

// TokenNoShowRequest is the input to Token.MarkNoShow.
type TokenNoShowRequest struct {
	TokenID string
}

// TokenNoShowResponse reports the no-show token and any promotions.
type TokenNoShowResponse struct {
	Token    *Token
	Promoted []*Token
	Message  string
}

// TokenCompleteRequest is the input to Token.Complete.
type TokenCompleteRequest struct {
	TokenID string
}

// TokenCompleteResponse reports the completed token.
type TokenCompleteResponse struct {
	Token *Token
}

// TokenExpireRequest is the input to Token.ExpireWaiting.
type TokenExpireRequest struct {
	DoctorID string
	Date     string
}

// Validate rejects malformed expiry input.
func (r *TokenExpireRequest) Validate() error {
	if r.DoctorID == "" {
		return fmt.Errorf("%w: missing doctor id", ErrInvalidInput)
	}
	if _, err := ParseDate(r.Date); err != nil {
		return err
	}
	return nil
}

// TokenExpireResponse reports how many waiting tokens were expired.
type TokenExpireResponse struct {
	Count int
}

// WaitingListRequest asks for the ordered waiting queue of a doctor-date.
type WaitingListRequest struct {
	DoctorID string
	Date     string
}

// WaitingListResponse carries the waiting queue in promotion order.
type WaitingListResponse struct {
	Tokens []*Token
}

// SlotAvailability is a read-only snapshot of one slot's seats.
type SlotAvailability struct {
	Slot      *Slot
	Counts    SlotCounts
	SeatsFree int
	Ended     bool
	Imminent  bool
}

// SlotAvailabilityRequest asks for seat snapshots of a doctor-date.
type SlotAvailabilityRequest struct {
	DoctorID string
	Date     string
}

// SlotAvailabilityResponse carries per-slot snapshots in start order.
type SlotAvailabilityResponse struct {
	Slots []*SlotAvailability
}

// DoctorUpsertRequest registers or updates a doctor.
type DoctorUpsertRequest struct {
	Doctor *Doctor
}

// DoctorUpsertResponse carries the stored doctor.
type DoctorUpsertResponse struct {
	Doctor *Doctor
}

// SlotUpsertRequest registers or updates a slot definition.
type SlotUpsertRequest struct {
	Slot *Slot
}

// SlotUpsertResponse carries the stored slot.
type SlotUpsertResponse struct {
	Slot *Slot
}
