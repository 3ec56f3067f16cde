package state

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidStateChange is returned for changes that would decrease a completion counter.
	ErrInvalidStateChange = errors.New("invalid state change")
	// ErrPhaseOrderingViolation is returned when processing or delivering is ended before partitioning.
	// It indicates a pipeline bug and must not be retried.
	ErrPhaseOrderingViolation = errors.New("phase ordering violation")
)

// Change is a delta against one phase of a State.
type Change struct {
	Phase     Phase      `json:"phase"`
	Succeeded int64      `json:"succeeded"`
	Failed    int64      `json:"failed"`
	Ignored   int64      `json:"ignored"`
	Pending   int64      `json:"pending"`
	Active    int64      `json:"active"`
	BeginDate *time.Time `json:"beginDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Validate checks the change without reference to any state.
func (c Change) Validate() error {
	if !c.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrInvalidStateChange, c.Phase)
	}
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"succeeded", c.Succeeded},
		{"failed", c.Failed},
		{"ignored", c.Ignored},
	} {
		if f.v < 0 {
			return fmt.Errorf("%w: negative %s increment %d", ErrInvalidStateChange, f.name, f.v)
		}
	}
	return nil
}

// Empty reports whether applying c would only touch dates.
func (c Change) Empty() bool {
	return c.Succeeded == 0 && c.Failed == 0 && c.Ignored == 0 && c.Pending == 0 && c.Active == 0
}

// Apply returns the result of applying c to s. s is never modified; on error the
// returned State equals s.
//
// Processing and delivering are stamped complete with now when their done count reaches
// partitioning's done count after partitioning has ended. Partitioning itself only ends
// through an explicit EndDate, since its own done count is the reference.
func Apply(s State, c Change, now time.Time) (State, error) {
	if err := c.Validate(); err != nil {
		return s, err
	}

	next := s
	e := next.element(c.Phase)
	partitioningEnded := next.Partitioning.Ended()

	if c.Phase != PhasePartitioning && c.EndDate != nil && !partitioningEnded {
		return s, fmt.Errorf("%w: %s end date set before partitioning ended", ErrPhaseOrderingViolation, c.Phase)
	}

	if e.BeginDate == nil {
		e.BeginDate = timeOr(c.BeginDate, now)
	}

	added, err := addCounters(*e, c)
	if err != nil {
		return s, err
	}
	*e = added

	if e.Ended() {
		return next, nil
	}
	switch {
	case c.EndDate != nil:
		e.EndDate = timeOr(c.EndDate, now)
	case c.Phase != PhasePartitioning && partitioningEnded && e.Done == next.Partitioning.Done:
		e.EndDate = timeOr(nil, now)
	}
	if c.Phase == PhasePartitioning && e.Ended() {
		settleCaughtUp(&next, now)
	}
	return next, nil
}

// addCounters adds c's deltas to e, refusing any sum that does not fit in an int64.
func addCounters(e Element, c Change) (Element, error) {
	for _, f := range []struct {
		name  string
		v     *int64
		delta int64
	}{
		{"succeeded", &e.Succeeded, c.Succeeded},
		{"failed", &e.Failed, c.Failed},
		{"ignored", &e.Ignored, c.Ignored},
		{"pending", &e.Pending, c.Pending},
		{"active", &e.Active, c.Active},
	} {
		sum, ok := addInt64(*f.v, f.delta)
		if !ok {
			return e, fmt.Errorf("%w: %s counter overflows", ErrInvalidStateChange, f.name)
		}
		*f.v = sum
	}
	done, ok := addInt64(e.Succeeded, e.Failed)
	if ok {
		done, ok = addInt64(done, e.Ignored)
	}
	if !ok {
		return e, fmt.Errorf("%w: done counter overflows", ErrInvalidStateChange)
	}
	e.Done = done
	return e, nil
}

func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// settleCaughtUp ends the later phases whose done count already equals partitioning's
// at the moment partitioning ends. Chunks can finish before the end of job is known.
func settleCaughtUp(s *State, now time.Time) {
	for _, e := range []*Element{&s.Processing, &s.Delivering} {
		if e.Ended() || e.Done != s.Partitioning.Done {
			continue
		}
		if e.BeginDate == nil {
			e.BeginDate = timeOr(nil, now)
		}
		e.EndDate = timeOr(nil, now)
	}
}

func timeOr(t *time.Time, fallback time.Time) *time.Time {
	v := fallback.UTC()
	if t != nil {
		v = t.UTC()
	}
	return &v
}
