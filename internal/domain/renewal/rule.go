// internal/domain/renewal/rule.go
package renewal

import (
	"fmt"
	"strings"
	"time"
)

// BillingCycle is the renewal cadence class stored on a pricing record.
type BillingCycle string

const (
	BillingCycleAnnual  BillingCycle = "annual"
	BillingCycleMonthly BillingCycle = "monthly"
)

// Normalize lowercases and trims the cycle so that "Annual " and "annual" compare equal.
func (c BillingCycle) Normalize() BillingCycle {
	return BillingCycle(strings.ToLower(strings.TrimSpace(string(c))))
}

// Filter names an extra eligibility predicate applied on top of the date and cycle match.
type Filter string

const (
	FilterNone          Filter = ""
	FilterPricePositive Filter = "price_positive" // national price strictly greater than zero
)

// Valid reports whether the filter is one the query layer knows how to express.
func (f Filter) Valid() bool {
	switch f {
	case FilterNone, FilterPricePositive:
		return true
	default:
		return false
	}
}

// Rule is one (offset, billing cycle) pair evaluated by a run.
type Rule struct {
	OffsetDays   int
	BillingCycle BillingCycle
	Filter       Filter
	TargetDate   time.Time // today + OffsetDays, set by Policy.RulesFor
}

func (r Rule) String() string {
	s := fmt.Sprintf("%s@%dd", r.BillingCycle, r.OffsetDays)
	if r.Filter != FilterNone {
		s += "[" + string(r.Filter) + "]"
	}
	return s
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
