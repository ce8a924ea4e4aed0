// internal/domain/renewal/group.go
package renewal

import "strings"

// Key identifies one notification: a recipient at one offset.
type Key struct {
	Email      string
	OffsetDays int
	FirstName  string
	LastName   string
}

// Recipient returns the contact part of the key.
func (k Key) Recipient() Recipient {
	return Recipient{Email: k.Email, FirstName: k.FirstName, LastName: k.LastName}
}

// Notification is the set of line items bundled into one message.
type Notification struct {
	Key   Key
	Items []LineItem
}

// Notifications maps keys to their line items while remembering first-seen order.
type Notifications struct {
	order []Key
	byKey map[Key]*Notification
}

func newNotifications() *Notifications {
	return &Notifications{byKey: make(map[Key]*Notification)}
}

func (n *Notifications) add(k Key, item LineItem) {
	g, ok := n.byKey[k]
	if !ok {
		g = &Notification{Key: k}
		n.byKey[k] = g
		n.order = append(n.order, k)
	}
	g.Items = append(g.Items, item)
}

// Len is the number of distinct notifications.
func (n *Notifications) Len() int { return len(n.order) }

// All returns notifications in the order their first item was discovered.
func (n *Notifications) All() []*Notification {
	out := make([]*Notification, 0, len(n.order))
	for _, k := range n.order {
		out = append(out, n.byKey[k])
	}
	return out
}

// ItemCount is the total number of grouped line items.
func (n *Notifications) ItemCount() int {
	total := 0
	for _, g := range n.byKey {
		total += len(g.Items)
	}
	return total
}

// Group collapses rule results into one notification per (recipient, offset).
// Items keep rule order, then fetch order. Matches without an email address are left out
// and reported as *RecipientMissingError, one per match.
func Group(results []RuleResult) (*Notifications, []error) {
	out := newNotifications()
	var skipped []error
	for _, res := range results {
		for _, m := range res.Matches {
			if !m.Recipient.HasEmail() {
				skipped = append(skipped, &RecipientMissingError{OffsetDays: res.Rule.OffsetDays, Item: m.Item})
				continue
			}
			k := Key{
				Email:      strings.TrimSpace(m.Recipient.Email),
				OffsetDays: res.Rule.OffsetDays,
				FirstName:  m.Recipient.FirstName,
				LastName:   m.Recipient.LastName,
			}
			out.add(k, m.Item)
		}
	}
	return out, skipped
}
