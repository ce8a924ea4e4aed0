// internal/domain/renewal/policy.go
package renewal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is returned when a rule table fails validation.
var ErrInvalidPolicy = errors.New("invalid renewal policy")

// defaultRules is the notification rule table, in evaluation order.
// Annual plans are reminded 60 and 30 days out, paid monthly plans 3 days out.
var defaultRules = []Rule{
	{OffsetDays: 60, BillingCycle: BillingCycleAnnual},
	{OffsetDays: 30, BillingCycle: BillingCycleAnnual},
	{OffsetDays: 3, BillingCycle: BillingCycleMonthly, Filter: FilterPricePositive},
}

// Policy is the window calculator: an immutable, ordered rule table.
type Policy struct {
	rules []Rule
}

// DefaultPolicy returns the built-in rule table.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(defaultRules)
	if err != nil {
		panic(err) // the built-in table is static
	}
	return p
}

// NewPolicy validates and copies rules into a Policy.
func NewPolicy(rules []Rule) (*Policy, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: no rules defined", ErrInvalidPolicy)
	}

	type pair struct {
		offset int
		cycle  BillingCycle
	}
	seen := make(map[pair]bool, len(rules))
	copied := make([]Rule, 0, len(rules))
	for i, r := range rules {
		r.BillingCycle = r.BillingCycle.Normalize()
		if r.OffsetDays < 0 {
			return nil, fmt.Errorf("%w: rule %d has negative offset %d", ErrInvalidPolicy, i, r.OffsetDays)
		}
		if r.BillingCycle == "" {
			return nil, fmt.Errorf("%w: rule %d has no billing cycle", ErrInvalidPolicy, i)
		}
		if !r.Filter.Valid() {
			return nil, fmt.Errorf("%w: rule %d has unknown filter %q", ErrInvalidPolicy, i, r.Filter)
		}
		k := pair{r.OffsetDays, r.BillingCycle}
		if seen[k] {
			return nil, fmt.Errorf("%w: duplicate rule for %s at %d days", ErrInvalidPolicy, r.BillingCycle, r.OffsetDays)
		}
		seen[k] = true
		r.TargetDate = time.Time{}
		copied = append(copied, r)
	}
	return &Policy{rules: copied}, nil
}

type policyFile struct {
	Rules []struct {
		OffsetDays   int    `yaml:"offset_days"`
		BillingCycle string `yaml:"billing_cycle"`
		Filter       string `yaml:"filter"`
	} `yaml:"rules"`
}

// LoadPolicy reads a rule table from a YAML file of the form
//
//	rules:
//	  - offset_days: 60
//	    billing_cycle: annual
//	  - offset_days: 3
//	    billing_cycle: monthly
//	    filter: price_positive
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	var f policyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidPolicy, path, err)
	}
	rules := make([]Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rules = append(rules, Rule{
			OffsetDays:   r.OffsetDays,
			BillingCycle: BillingCycle(r.BillingCycle),
			Filter:       Filter(r.Filter),
		})
	}
	return NewPolicy(rules)
}

// RulesFor returns the rules to evaluate on the given day, each with its target renewal date.
// The result is a fresh slice in table order.
func (p *Policy) RulesFor(today time.Time) []Rule {
	day := DateOnly(today)
	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		r.TargetDate = day.AddDate(0, 0, r.OffsetDays)
		out[i] = r
	}
	return out
}

// Offsets lists the configured offsets in table order.
func (p *Policy) Offsets() []int {
	out := make([]int, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.OffsetDays
	}
	return out
}
