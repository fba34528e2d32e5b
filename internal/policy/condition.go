package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sentra-sec/sentra/internal/shared"
)

// ConditionKind discriminates the condition variants.
type ConditionKind string

const (
	// KindAttributeEquals requires a context attribute to equal a value.
	KindAttributeEquals ConditionKind = "attribute_equals"
	// KindAttributeIn requires a context attribute to be one of a value set.
	KindAttributeIn ConditionKind = "attribute_in"
	// KindTimeWindow restricts the grant to a daily time window.
	KindTimeWindow ConditionKind = "time_window"
)

// Condition is a tagged predicate evaluated against the check context.
// Conditions are stored as JSONB and interpreted here, never handed to the
// query engine as opaque blobs.
type Condition struct {
	Kind   ConditionKind `json:"kind"`
	Key    string        `json:"key,omitempty"`
	Value  string        `json:"value,omitempty"`
	Values []string      `json:"values,omitempty"`
	Start  string        `json:"start,omitempty"`
	End    string        `json:"end,omitempty"`
	Days   []string      `json:"days,omitempty"`
}

// ConditionSet is a conjunction: every condition must hold.
// An empty set is an unconditional grant.
type ConditionSet []Condition

// Validate checks the condition is well formed. Admin writes call this so
// resolution never encounters malformed data of its own making.
func (c Condition) Validate() error {
	switch c.Kind {
	case KindAttributeEquals:
		if c.Key == "" {
			return fmt.Errorf("policy: attribute_equals requires key: %w", shared.ErrValidation)
		}
	case KindAttributeIn:
		if c.Key == "" || len(c.Values) == 0 {
			return fmt.Errorf("policy: attribute_in requires key and values: %w", shared.ErrValidation)
		}
	case KindTimeWindow:
		if _, err := parseClock(c.Start); err != nil {
			return fmt.Errorf("policy: time_window start %q: %w", c.Start, shared.ErrValidation)
		}
		if _, err := parseClock(c.End); err != nil {
			return fmt.Errorf("policy: time_window end %q: %w", c.End, shared.ErrValidation)
		}
		for _, d := range c.Days {
			if _, ok := weekdays[strings.ToLower(d)]; !ok {
				return fmt.Errorf("policy: time_window day %q: %w", d, shared.ErrValidation)
			}
		}
	default:
		return fmt.Errorf("policy: unknown condition kind %q: %w", c.Kind, shared.ErrValidation)
	}
	return nil
}

// Evaluate reports whether the condition holds for the given context.
// A missing attribute fails the condition; only malformed stored data is an
// error.
func (c Condition) Evaluate(evalCtx map[string]any, now time.Time) (bool, error) {
	switch c.Kind {
	case KindAttributeEquals:
		v, ok := evalCtx[c.Key]
		if !ok {
			return false, nil
		}
		return fmt.Sprint(v) == c.Value, nil
	case KindAttributeIn:
		v, ok := evalCtx[c.Key]
		if !ok {
			return false, nil
		}
		got := fmt.Sprint(v)
		for _, candidate := range c.Values {
			if candidate == got {
				return true, nil
			}
		}
		return false, nil
	case KindTimeWindow:
		return c.evaluateWindow(now)
	default:
		return false, fmt.Errorf("policy: unknown condition kind %q: %w", c.Kind, shared.ErrPolicyConfiguration)
	}
}

func (c Condition) evaluateWindow(now time.Time) (bool, error) {
	start, err := parseClock(c.Start)
	if err != nil {
		return false, fmt.Errorf("policy: time_window start %q: %w", c.Start, shared.ErrPolicyConfiguration)
	}
	end, err := parseClock(c.End)
	if err != nil {
		return false, fmt.Errorf("policy: time_window end %q: %w", c.End, shared.ErrPolicyConfiguration)
	}
	if len(c.Days) > 0 {
		day := strings.ToLower(now.Weekday().String())
		match := false
		for _, d := range c.Days {
			if strings.ToLower(d) == day {
				match = true
				break
			}
		}
		if !match {
			return false, nil
		}
	}
	minute := now.Hour()*60 + now.Minute()
	if end < start {
		// Window wraps past midnight.
		return minute >= start || minute < end, nil
	}
	return minute >= start && minute < end, nil
}

// Evaluate reports whether every condition in the set holds.
func (s ConditionSet) Evaluate(evalCtx map[string]any, now time.Time) (bool, error) {
	for _, c := range s {
		ok, err := c.Evaluate(evalCtx, now)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Validate checks every condition in the set.
func (s ConditionSet) Validate() error {
	for _, c := range s {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParseConditionSet decodes stored condition JSON. Corrupt data surfaces as
// ErrPolicyConfiguration so callers can distinguish it from a plain deny.
func ParseConditionSet(raw []byte) (ConditionSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var set ConditionSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("policy: decode conditions: %v: %w", err, shared.ErrPolicyConfiguration)
	}
	for _, c := range set {
		switch c.Kind {
		case KindAttributeEquals, KindAttributeIn, KindTimeWindow:
		default:
			return nil, fmt.Errorf("policy: unknown condition kind %q: %w", c.Kind, shared.ErrPolicyConfiguration)
		}
	}
	return set, nil
}

// EncodeConditionSet encodes a set for storage. Empty sets encode as NULL.
func EncodeConditionSet(s ConditionSet) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return json.Marshal(s)
}

var weekdays = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {},
	"friday": {}, "saturday": {}, "sunday": {},
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
