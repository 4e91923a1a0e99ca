package id

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// PlanID identifies a plan. Zero is the unset value; allocated IDs start at 1.
type PlanID uint64

// SubscriptionID identifies a subscription. Zero is the unset value;
// allocated IDs start at 1.
type SubscriptionID uint64

// String returns the decimal representation.
func (p PlanID) String() string { return strconv.FormatUint(uint64(p), 10) }

// IsZero reports whether the PlanID is unset.
func (p PlanID) IsZero() bool { return p == 0 }

// String returns the decimal representation.
func (s SubscriptionID) String() string { return strconv.FormatUint(uint64(s), 10) }

// IsZero reports whether the SubscriptionID is unset.
func (s SubscriptionID) IsZero() bool { return s == 0 }

// ParsePlanID parses a decimal plan id.
func ParsePlanID(s string) (PlanID, error) {
	n, err := parseSeq(s)
	return PlanID(n), err
}

// ParseSubscriptionID parses a decimal subscription id.
func ParseSubscriptionID(s string) (SubscriptionID, error) {
	n, err := parseSeq(s)
	return SubscriptionID(n), err
}

func parseSeq(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id: parse %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("id: parse %q: zero is not a valid id", s)
	}
	return n, nil
}

// Sequence hands out monotonically increasing integers starting at 1.
// Each store instance owns its own sequences; there is no process-wide counter.
// A Sequence is safe for concurrent use.
type Sequence struct {
	last atomic.Uint64
}

// Next returns the next value in the sequence.
func (s *Sequence) Next() uint64 { return s.last.Add(1) }

// Current returns the last value handed out, or 0 if Next was never called.
func (s *Sequence) Current() uint64 { return s.last.Load() }
