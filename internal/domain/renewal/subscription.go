// internal/domain/renewal/subscription.go
package renewal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is the read-only projection of one subscription matched by one rule.
type LineItem struct {
	SubscriptionID int64
	CompanyID      int64
	CompanyName    string
	RenewalDate    time.Time
	BillingCycle   string
	ReportName     string
	Price          decimal.NullDecimal // absent when the pricing row carries no price
}

// Recipient identifies who receives a notification.
type Recipient struct {
	Email     string
	FirstName string
	LastName  string
}

// HasEmail reports whether the recipient can be addressed at all.
func (r Recipient) HasEmail() bool {
	return strings.TrimSpace(r.Email) != ""
}

// FullName joins first and last name, skipping empty parts.
func (r Recipient) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// Match is one eligibility row: a line item plus the contact fields joined onto it.
// Recipient is zero-valued when the company has no administrative contact.
type Match struct {
	Item      LineItem
	Recipient Recipient
}

// RuleResult pairs a rule with the rows it produced, in fetch order.
type RuleResult struct {
	Rule    Rule
	Matches []Match
}
