// Package state holds the three-phase progress record carried by jobs and chunks
// and the single algorithm allowed to mutate it.
package state

import (
	"fmt"
	"strings"
	"time"
)

// Phase is one of the three sequential lifecycle stages of a job or chunk.
type Phase string

const (
	PhasePartitioning Phase = "PARTITIONING"
	PhaseProcessing   Phase = "PROCESSING"
	PhaseDelivering   Phase = "DELIVERING"
)

// Phases lists all phases in pipeline order.
func Phases() []Phase {
	return []Phase{PhasePartitioning, PhaseProcessing, PhaseDelivering}
}

// Valid reports whether p names a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhasePartitioning, PhaseProcessing, PhaseDelivering:
		return true
	default:
		return false
	}
}

// ParsePhase accepts phase names case-insensitively as used in URLs and CLI flags.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToUpper(s))
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// Element tracks one phase. Succeeded, Failed and Ignored only grow; Done is always their sum.
// Pending and Active are independent gauges adjusted by deltas.
type Element struct {
	BeginDate *time.Time `json:"beginDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Succeeded int64      `json:"succeeded"`
	Failed    int64      `json:"failed"`
	Ignored   int64      `json:"ignored"`
	Done      int64      `json:"done"`
	Pending   int64      `json:"pending"`
	Active    int64      `json:"active"`
}

// Ended reports whether the phase has an end date.
func (e Element) Ended() bool {
	return e.EndDate != nil
}

// State is the progress record held by a job and by each chunk.
type State struct {
	Partitioning Element `json:"partitioning"`
	Processing   Element `json:"processing"`
	Delivering   Element `json:"delivering"`
}

// Element returns a copy of the element for phase p.
func (s State) Element(p Phase) Element {
	if e := s.element(p); e != nil {
		return *e
	}
	return Element{}
}

func (s *State) element(p Phase) *Element {
	switch p {
	case PhasePartitioning:
		return &s.Partitioning
	case PhaseProcessing:
		return &s.Processing
	case PhaseDelivering:
		return &s.Delivering
	default:
		return nil
	}
}

// Complete reports whether every phase has ended.
func (s State) Complete() bool {
	return s.Partitioning.Ended() && s.Processing.Ended() && s.Delivering.Ended()
}

// Normalize recomputes derived counters, e.g. after decoding a stored document.
func (s *State) Normalize() {
	for _, p := range Phases() {
		e := s.element(p)
		e.Done = e.Succeeded + e.Failed + e.Ignored
	}
}
