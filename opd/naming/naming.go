// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package naming issues the human-readable display identifiers the engine
// attaches to tokens and slots. The engine treats the result as opaque; the
// only contract is uniqueness within (kind, doctor, date).
package naming

import "fmt"

// Kinds of named objects.
const (
	KindToken = "TKN"
	KindSlot  = "SLT"
)

// Probe reports how many objects of the kind already exist for the
// (doctor, date) scope. It runs inside the caller's transaction, so the
// sequence cannot race with a concurrent create.
type Probe func() (int, error)

// Namer issues a display name unique within (kind, doctorID, date).
type Namer interface {
	DisplayName(kind, doctorID, date string, probe Probe) (string, error)
}

// SequenceNamer issues names of the form KIND-NNN, numbering objects within
// a (kind, doctor, date) scope starting at 1.
type SequenceNamer struct{}

// NewSequenceNamer returns the default namer.
func NewSequenceNamer() *SequenceNamer {
	return &SequenceNamer{}
}

func (n *SequenceNamer) DisplayName(kind, doctorID, date string, probe Probe) (string, error) {
	seq, err := probe()
	if err != nil {
		return "", fmt.Errorf("display name probe failed: %v", err)
	}
	return fmt.Sprintf("%s-%03d", kind, seq+1), nil
}
