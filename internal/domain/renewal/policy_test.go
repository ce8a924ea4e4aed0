package renewal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy_RulesFor(t *testing.T) {
	today := time.Date(2026, 10, 17, 15, 30, 0, 0, time.UTC)

	rules := DefaultPolicy().RulesFor(today)

	require.Len(t, rules, 3)
	assert.Equal(t, Rule{OffsetDays: 60, BillingCycle: BillingCycleAnnual, TargetDate: time.Date(2026, 12, 16, 0, 0, 0, 0, time.UTC)}, rules[0])
	assert.Equal(t, Rule{OffsetDays: 30, BillingCycle: BillingCycleAnnual, TargetDate: time.Date(2026, 11, 16, 0, 0, 0, 0, time.UTC)}, rules[1])
	assert.Equal(t, Rule{OffsetDays: 3, BillingCycle: BillingCycleMonthly, Filter: FilterPricePositive, TargetDate: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)}, rules[2])
}

func TestDefaultPolicy_DeterministicAcrossDates(t *testing.T) {
	p := DefaultPolicy()
	allowed := map[int]bool{60: true, 30: true, 3: true}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < 800; d += 7 {
		day := start.AddDate(0, 0, d)
		first := p.RulesFor(day)
		second := p.RulesFor(day)
		require.NotEmpty(t, first)
		assert.Equal(t, first, second)
		for _, r := range first {
			assert.True(t, allowed[r.OffsetDays], "unexpected offset %d", r.OffsetDays)
			assert.Equal(t, day.AddDate(0, 0, r.OffsetDays), r.TargetDate)
		}
	}
}

func TestPolicy_RulesForAcrossLeapDay(t *testing.T) {
	rules := DefaultPolicy().RulesFor(time.Date(2028, 2, 27, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2028-03-01", rules[2].TargetDate.Format(time.DateOnly))
}

func TestPolicy_RulesForDoesNotLeakMutation(t *testing.T) {
	p := DefaultPolicy()
	rules := p.RulesFor(time.Now())
	rules[0].OffsetDays = 999

	assert.Equal(t, []int{60, 30, 3}, p.Offsets())
}

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{"empty", nil},
		{"negative offset", []Rule{{OffsetDays: -1, BillingCycle: BillingCycleAnnual}}},
		{"missing cycle", []Rule{{OffsetDays: 5, BillingCycle: " "}}},
		{"unknown filter", []Rule{{OffsetDays: 5, BillingCycle: BillingCycleAnnual, Filter: "discounted"}}},
		{"duplicate", []Rule{
			{OffsetDays: 30, BillingCycle: "Annual"},
			{OffsetDays: 30, BillingCycle: "annual"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.rules)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestNewPolicy_NormalizesCycle(t *testing.T) {
	p, err := NewPolicy([]Rule{{OffsetDays: 0, BillingCycle: " Weekly "}})
	require.NoError(t, err)
	assert.Equal(t, BillingCycle("weekly"), p.RulesFor(time.Now())[0].BillingCycle)
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - offset_days: 90
    billing_cycle: Annual
  - offset_days: 7
    billing_cycle: monthly
    filter: price_positive
`), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	rules := p.RulesFor(time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	require.Len(t, rules, 2)
	assert.Equal(t, 90, rules[0].OffsetDays)
	assert.Equal(t, BillingCycleAnnual, rules[0].BillingCycle)
	assert.Equal(t, FilterPricePositive, rules[1].Filter)
	assert.Equal(t, "2026-10-24", rules[1].TargetDate.Format(time.DateOnly))
}

func TestLoadPolicy_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPolicy(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: [oops"), 0o644))
	_, err = LoadPolicy(bad)
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rules: []\n"), 0o644))
	_, err = LoadPolicy(empty)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}
