package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentra-sec/sentra/internal/shared"
)

func TestConditionAttributeEquals(t *testing.T) {
	cond := Condition{Kind: KindAttributeEquals, Key: "department", Value: "finance"}
	now := time.Now()

	ok, err := cond.Evaluate(map[string]any{"department": "finance"}, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cond.Evaluate(map[string]any{"department": "sales"}, now)
	require.NoError(t, err)
	require.False(t, ok)

	// A missing attribute fails the condition without an error.
	ok, err = cond.Evaluate(map[string]any{}, now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionAttributeIn(t *testing.T) {
	cond := Condition{Kind: KindAttributeIn, Key: "region", Values: []string{"eu", "us"}}
	now := time.Now()

	ok, err := cond.Evaluate(map[string]any{"region": "eu"}, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = cond.Evaluate(map[string]any{"region": "apac"}, now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionTimeWindow(t *testing.T) {
	cond := Condition{Kind: KindTimeWindow, Start: "09:00", End: "17:00", Days: []string{"monday"}}

	// 2026-08-24 is a Monday.
	inside := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	ok, err := cond.Evaluate(nil, inside)
	require.NoError(t, err)
	require.True(t, ok)

	after := time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)
	ok, err = cond.Evaluate(nil, after)
	require.NoError(t, err)
	require.False(t, ok)

	tuesday := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	ok, err = cond.Evaluate(nil, tuesday)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionTimeWindowWrapsMidnight(t *testing.T) {
	cond := Condition{Kind: KindTimeWindow, Start: "22:00", End: "06:00"}

	night := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	ok, err := cond.Evaluate(nil, night)
	require.NoError(t, err)
	require.True(t, ok)

	earlyMorning := time.Date(2026, 8, 25, 5, 0, 0, 0, time.UTC)
	ok, err = cond.Evaluate(nil, earlyMorning)
	require.NoError(t, err)
	require.True(t, ok)

	midday := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	ok, err = cond.Evaluate(nil, midday)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConditionSetConjunction(t *testing.T) {
	set := ConditionSet{
		{Kind: KindAttributeEquals, Key: "department", Value: "finance"},
		{Kind: KindAttributeIn, Key: "region", Values: []string{"eu"}},
	}
	now := time.Now()

	ok, err := set.Evaluate(map[string]any{"department": "finance", "region": "eu"}, now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = set.Evaluate(map[string]any{"department": "finance", "region": "us"}, now)
	require.NoError(t, err)
	require.False(t, ok)

	// Empty set is unconditional.
	ok, err = ConditionSet{}.Evaluate(nil, now)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestConditionValidate(t *testing.T) {
	cases := []struct {
		name string
		cond Condition
		ok   bool
	}{
		{"equals ok", Condition{Kind: KindAttributeEquals, Key: "k", Value: "v"}, true},
		{"equals missing key", Condition{Kind: KindAttributeEquals}, false},
		{"in missing values", Condition{Kind: KindAttributeIn, Key: "k"}, false},
		{"window ok", Condition{Kind: KindTimeWindow, Start: "08:00", End: "18:00"}, true},
		{"window bad clock", Condition{Kind: KindTimeWindow, Start: "25:00", End: "18:00"}, false},
		{"window bad day", Condition{Kind: KindTimeWindow, Start: "08:00", End: "18:00", Days: []string{"someday"}}, false},
		{"unknown kind", Condition{Kind: "geo_fence"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cond.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, shared.ErrValidation)
			}
		})
	}
}

func TestParseConditionSetCorrupt(t *testing.T) {
	_, err := ParseConditionSet([]byte(`{"not":"an array"}`))
	require.True(t, errors.Is(err, shared.ErrPolicyConfiguration))

	_, err = ParseConditionSet([]byte(`[{"kind":"geo_fence"}]`))
	require.True(t, errors.Is(err, shared.ErrPolicyConfiguration))

	set, err := ParseConditionSet(nil)
	require.NoError(t, err)
	require.Nil(t, set)
}
