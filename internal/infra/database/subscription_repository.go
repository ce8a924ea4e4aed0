package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"renewal_notifier/internal/domain/renewal"

	"github.com/shopspring/decimal"
)

// eligibleSubscriptionsQuery selects subscriptions renewing on a given date for one billing cycle,
// with the primary administrative contact of the owning company: a user of that company that is
// not a sub-account (no super user) and holds admin rights. The contact is LEFT JOINed so that a
// subscription without one still comes back, with NULL contact columns.
const eligibleSubscriptionsQuery = `
	SELECT s.id AS sub_id, c.company_name, c.id AS company_id, s.renewal_date,
	       p.billing_cycle, p.report_name, p.national_price,
	       u.email, u.first_name, u.last_name
	FROM subscriptions_draft s
	JOIN company c ON s.company_id = c.id
	JOIN subscription_pricing p ON s.pricing_id = p.id
	LEFT JOIN users u ON u.company_id = c.id AND u.super_user_id IS NULL AND u.is_admin = TRUE
	WHERE LOWER(p.billing_cycle) = $1
	  AND s.renewal_date = $2%s
	ORDER BY s.id, u.email`

// filterClauses maps rule filters onto SQL. Filters take no bind parameters.
var filterClauses = map[renewal.Filter]string{
	renewal.FilterNone:          "",
	renewal.FilterPricePositive: "\n\t  AND p.national_price > 0",
}

// SubscriptionRepository is the eligibility query layer over a DataSource.
type SubscriptionRepository struct {
	ds DataSource
}

func NewSubscriptionRepository(ds DataSource) *SubscriptionRepository {
	return &SubscriptionRepository{ds: ds}
}

// FetchEligible issues one query for the rule and projects the rows.
func (r *SubscriptionRepository) FetchEligible(ctx context.Context, rule renewal.Rule) ([]renewal.Match, error) {
	clause, ok := filterClauses[rule.Filter]
	if !ok {
		return nil, fmt.Errorf("unsupported filter %q for rule %s", rule.Filter, rule)
	}
	query := fmt.Sprintf(eligibleSubscriptionsQuery, clause)

	rows, err := r.ds.Query(ctx, query,
		string(rule.BillingCycle.Normalize()),
		rule.TargetDate.Format(time.DateOnly),
	)
	if err != nil {
		return nil, fmt.Errorf("error fetching eligible subscriptions for %s: %w", rule, err)
	}

	matches := make([]renewal.Match, 0, len(rows))
	for _, row := range rows {
		m, err := matchFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("error projecting subscription row for %s: %w", rule, err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func matchFromRow(row Row) (renewal.Match, error) {
	var m renewal.Match
	var err error

	if m.Item.SubscriptionID, err = asInt64(row.Get("sub_id")); err != nil {
		return m, fmt.Errorf("sub_id: %w", err)
	}
	if m.Item.CompanyID, err = asInt64(row.Get("company_id")); err != nil {
		return m, fmt.Errorf("company_id: %w", err)
	}
	if m.Item.RenewalDate, err = asDate(row.Get("renewal_date")); err != nil {
		return m, fmt.Errorf("renewal_date: %w", err)
	}
	if m.Item.Price, err = asNullDecimal(row.Get("national_price")); err != nil {
		return m, fmt.Errorf("national_price: %w", err)
	}
	m.Item.CompanyName = asString(row.Get("company_name"))
	m.Item.BillingCycle = asString(row.Get("billing_cycle"))
	m.Item.ReportName = asString(row.Get("report_name"))

	m.Recipient = renewal.Recipient{
		Email:     asString(row.Get("email")),
		FirstName: asString(row.Get("first_name")),
		LastName:  asString(row.Get("last_name")),
	}
	return m, nil
}

// The converters below accept what lib/pq and go-sqlite3 hand back for the same column types.

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case []byte:
		return strconv.ParseInt(string(t), 10, 64)
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func asDate(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return renewal.DateOnly(t), nil
	case []byte:
		return parseDate(string(t))
	case string:
		return parseDate(t)
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) >= len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	return time.Parse(time.DateOnly, s)
}

func asNullDecimal(v any) (decimal.NullDecimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(t)), nil
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(t)), nil
	case []byte:
		d, err := decimal.NewFromString(string(t))
		return decimal.NullDecimal{Decimal: d, Valid: err == nil}, err
	case string:
		d, err := decimal.NewFromString(t)
		return decimal.NullDecimal{Decimal: d, Valid: err == nil}, err
	default:
		return decimal.NullDecimal{}, fmt.Errorf("unexpected type %T", v)
	}
}
